package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/executors"
	"papertrader/src/model"
)

type portfolioReader interface {
	Portfolios() []*model.Portfolio
	Portfolio(id string) (*model.Portfolio, error)
}

type portfolioSwitcher interface {
	SetActive(id string, active bool) error
}

// ListPortfoliosHandler returns every portfolio document. The engine hands
// out deep copies, so encoding here never races a tick.
func ListPortfoliosHandler(engine portfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.Portfolios())
	}
}

// GetPortfolioHandler returns a single portfolio by ID.
func GetPortfolioHandler(engine portfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := engine.Portfolio(chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, executors.ErrUnknownPortfolio) {
				http.Error(w, "portfolio not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to fetch portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, p)
	}
}

// ListTradesHandler returns the portfolio's bounded trade log, newest last.
// An optional limit query param trims to the most recent N trades.
func ListTradesHandler(engine portfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := engine.Portfolio(chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, executors.ErrUnknownPortfolio) {
				http.Error(w, "portfolio not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to fetch portfolio trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		trades := p.Trades
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			limit, err := strconv.Atoi(limitParam)
			if err != nil || limit <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			if limit < len(trades) {
				trades = trades[len(trades)-limit:]
			}
		}

		writeJSON(w, trades)
	}
}

// SetActiveHandler flips a portfolio's active flag.
func SetActiveHandler(engine portfolioSwitcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Active *bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
			http.Error(w, "body must be {\"active\": true|false}", http.StatusBadRequest)
			return
		}

		id := chi.URLParam(r, "id")
		if err := engine.SetActive(id, *body.Active); err != nil {
			if errors.Is(err, executors.ErrUnknownPortfolio) {
				http.Error(w, "portfolio not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to set portfolio active flag")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{"id": id, "active": *body.Active})
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
