package modules

import (
	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/config"
)

// NewServerDeps builds base server deps then lets each module
// contribute its own wiring explicitly (ADR-0013: no DI container).
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Config:  cfg,
		Store:   infra.Store,
		Pool:    infra.Pool,
		Redis:   infra.Redis,
		Objects: infra.Objects,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
