// Package app — composition root. ADR-0022: bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/app/modules"
	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/infrastructure"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	infra *modules.Infrastructure
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	// The River client exists before the domain modules: services
	// enqueue through it, and workers join the registry afterwards.
	workers := river.NewWorkers()
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river: %w", err)
	}

	authModule, err := modules.NewAuthModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init auth module: %w", err)
	}
	notifModule, err := modules.NewNotificationsModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init notifications module: %w", err)
	}

	allModules := []modules.Module{
		authModule,
		modules.NewClaimsModule(infra),
		modules.NewDocumentsModule(infra),
		notifModule,
	}
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	schedulePeriodicJobs(infra.RiverClient)

	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	router, err := newRouter(cfg, server, infra.Tokens)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init router: %w", err)
	}

	return &Application{
		Config:  cfg,
		Router:  router,
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		infra:   infra,
	}, nil
}

// schedulePeriodicJobs registers the maintenance cadence: the draft
// sweep every 15 minutes, retention cleanups daily with a run at boot
// so a long-stopped instance catches up immediately.
func schedulePeriodicJobs(client *river.Client[pgx.Tx]) {
	if client == nil {
		return
	}
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(15*time.Minute),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.DraftSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.FileReaperArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.TokenCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
}
