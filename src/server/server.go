package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/executors"
	"papertrader/src/handler"
)

// StartServer runs the control API until SIGINT/SIGTERM, then shuts down
// gracefully. The read side serves deep copies; the control side funnels
// every mutation through the engine's lock.
func StartServer(port string, engine *executors.Engine) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/portfolios", handler.ListPortfoliosHandler(engine))
		r.Get("/portfolios/{id}", handler.GetPortfolioHandler(engine))
		r.Get("/portfolios/{id}/trades", handler.ListTradesHandler(engine))
		r.Post("/portfolios/{id}/active", handler.SetActiveHandler(engine))

		r.Get("/strategies", handler.ListStrategiesHandler())
		r.Get("/strategies/{id}", handler.GetStrategyHandler())

		r.Get("/risk", handler.GetRiskStateHandler(engine))
		r.Post("/risk/emergency-stop", handler.TriggerEmergencyStopHandler(engine))
		r.Delete("/risk/emergency-stop", handler.ResetEmergencyStopHandler(engine))
		r.Put("/risk/daily-loss-limit", handler.SetDailyLossLimitHandler(engine))
	})

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
