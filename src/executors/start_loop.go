package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
)

// StartLoop drives the engine on its fixed tick until the context is
// cancelled or the engine halts on a persistence failure. A tick that
// overruns the interval simply delays the next one; ticks never overlap.
func StartLoop(ctx context.Context, engine *Engine) error {
	config := GetConfig()

	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	logger.WithField("interval", config.TickInterval).Info("engine loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("engine loop stopped")
			return nil

		case <-ticker.C:
			started := time.Now()
			err := engine.Tick(ctx)
			if errors.Is(err, ErrHalted) {
				logger.Error("engine halted, exiting loop")
				return err
			}
			if err != nil {
				logger.WithError(err).Error("tick failed")
				continue
			}
			logger.WithField("elapsed", time.Since(started)).Debug("tick completed")
		}
	}
}
