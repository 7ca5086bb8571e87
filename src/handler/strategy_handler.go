package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"papertrader/src/strategy"
)

// ListStrategiesHandler returns the registered strategy IDs.
func ListStrategiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, strategy.IDs())
	}
}

// GetStrategyHandler returns one strategy's full configuration.
func GetStrategyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := strategy.Lookup(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "strategy not found", http.StatusNotFound)
			return
		}
		writeJSON(w, cfg)
	}
}
