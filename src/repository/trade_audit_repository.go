package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papertrader/src/database"
	"papertrader/src/model"
)

// TradeAuditRepository handles persistence for the append-only trade audit
// trail. Rows are never updated or deleted.
type TradeAuditRepository struct {
	db *gorm.DB
}

// NewTradeAuditRepository creates a new repository instance using the main
// read/write database. Returns nil when the database is disabled so callers
// can skip auditing with a nil check.
func NewTradeAuditRepository() *TradeAuditRepository {
	if database.MainDB == nil {
		return nil
	}

	logger.WithField("component", "TradeAuditRepository").
		Info("Creating new TradeAuditRepository with MainDB")

	return &TradeAuditRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *TradeAuditRepository) WithDB(db *gorm.DB) *TradeAuditRepository {
	return &TradeAuditRepository{db: db}
}

// Append records an executed trade for a portfolio.
func (r *TradeAuditRepository) Append(ctx context.Context, portfolioID string, trade model.Trade) error {
	row := model.TradeAudit{
		TradeID:     trade.ID,
		PortfolioID: portfolioID,
		Action:      string(trade.Action),
		Instrument:  trade.Instrument,
		Price:       trade.Price,
		Quantity:    trade.Quantity,
		Notional:    trade.Notional,
		Fee:         trade.Fee,
		Pnl:         trade.Pnl,
		Reason:      trade.Reason,
		ExecutedAt:  trade.Timestamp,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeAuditRepository",
			"op":        "Append",
			"portfolio": portfolioID,
			"trade_id":  trade.ID,
		}).WithError(err).Error("Failed to append trade audit row")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "TradeAuditRepository",
		"op":        "Append",
		"portfolio": portfolioID,
		"trade_id":  trade.ID,
		"action":    trade.Action,
	}).Debug("Trade audit row appended")

	return nil
}

// FindByPortfolio fetches the latest audit rows for one portfolio, newest
// first.
func (r *TradeAuditRepository) FindByPortfolio(ctx context.Context, portfolioID string, limit int) ([]model.TradeAudit, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []model.TradeAudit
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeAuditRepository",
			"op":        "FindByPortfolio",
			"portfolio": portfolioID,
			"limit":     limit,
		}).WithError(err).Error("Failed to fetch trade audit rows")
		return nil, err
	}

	return rows, nil
}
