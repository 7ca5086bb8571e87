package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"papertrader/src/database"
	"papertrader/src/executors"
)

type Engine struct{}

// Start runs the decision loop headless, without the HTTP surface. Useful
// for backfills and local runs against a scratch state file.
func (t *Engine) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database for the trade audit trail
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	eng, err := executors.Bootstrap(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to bootstrap engine")
		return err
	}

	if err := executors.StartLoop(ctx, eng); err != nil {
		logrus.WithError(err).Error("Engine loop failed")
		return err
	}

	return nil
}
