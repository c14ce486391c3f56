package modules

import (
	"context"

	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/usecase"
)

// ClaimsModule owns the claim lifecycle: drafts, submission, admin
// transitions, groups, notes and the draft retention sweep.
type ClaimsModule struct {
	infra *Infrastructure
	svc   *usecase.Claims
}

// NewClaimsModule wires the claim service on the shared store, the
// eligibility engine and the job queue.
func NewClaimsModule(infra *Infrastructure) *ClaimsModule {
	svc := usecase.NewClaims(usecase.Deps{
		Store:  infra.Store,
		Pool:   infra.Pool,
		Engine: infra.Engine,
		Queue:  infra.RiverClient,
	})
	return &ClaimsModule{infra: infra, svc: svc}
}

func (m *ClaimsModule) Name() string { return "claims" }

func (m *ClaimsModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Claims = m.svc
}

// RegisterWorkers adds the periodic draft sweep.
func (m *ClaimsModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewDraftSweepWorker(m.infra.Store, m.infra.Pool))
}

func (m *ClaimsModule) Shutdown(context.Context) error { return nil }
