package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/jobs"
)

// AuthModule owns account and session management.
type AuthModule struct {
	infra *Infrastructure
	svc   *auth.Service
}

// NewAuthModule wires the auth service. Requires InitRiver to have run:
// the service enqueues mail transactionally.
func NewAuthModule(infra *Infrastructure) (*AuthModule, error) {
	svc, err := auth.NewService(auth.Deps{
		Config: infra.Config.Auth,
		Policy: infra.Config.Security.PasswordPolicy,
		Store:  infra.Store,
		Pool:   infra.Pool,
		Queue:  infra.RiverClient,
		Redis:  infra.Redis,
		Codec:  infra.FieldCodec,
		Tokens: infra.Tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	return &AuthModule{infra: infra, svc: svc}, nil
}

func (m *AuthModule) Name() string { return "auth" }

func (m *AuthModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Auth = m.svc
}

// RegisterWorkers adds the credential retention sweep.
func (m *AuthModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewTokenCleanupWorker(m.infra.Store))
}

func (m *AuthModule) Shutdown(context.Context) error { return nil }
