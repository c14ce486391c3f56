package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// Start starts the background machinery: the River workers that carry
// mail, document maintenance and the draft sweep.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}
	return nil
}

// Shutdown gracefully shuts down all application components. Order
// matters: stop consuming jobs first, then let modules clean up, then
// release pools and connections.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		} else {
			logger.Info("River client stopped")
		}
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	a.infra.Close()
}
