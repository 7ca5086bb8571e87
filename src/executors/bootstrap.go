package executors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/portfolio"
	"papertrader/src/repository"
	"papertrader/src/risk"
	"papertrader/src/security"
	"papertrader/src/signals"
)

// Bootstrap wires the full engine: signal adapter (with optional websocket
// price overlay), risk governor restored from the persisted document, fill
// manager and state store. The stream goroutine, if any, lives until ctx is
// cancelled.
func Bootstrap(ctx context.Context) (*Engine, error) {
	config := GetConfig()
	signalConfig := signals.GetConfig()

	apiKey := ""
	if signalConfig.APIKeyEncrypted != "" {
		decrypted, err := security.DecryptString(signalConfig.APIKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt signal API key: %w", err)
		}
		apiKey = decrypted
	}

	client := signals.NewClient(signalConfig.BaseURL, apiKey, signalConfig.Timeout, signalConfig.RetryCount)

	var adapter signals.Adapter = client
	if signalConfig.StreamURL != "" {
		stream := signals.NewPriceStream(signalConfig.StreamURL)
		go stream.Run(ctx)
		adapter = signals.NewStreamAdapter(client, stream)
	}

	store := repository.NewFileStore(config.StatePath)
	doc, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	governor := risk.NewGovernor(risk.GetConfig(), logger.WithField("component", "governor"))
	governor.RestoreState(doc.Risk)

	manager := portfolio.NewManager(
		decimal.NewFromFloat(config.FeeRate),
		logger.WithField("component", "manager"),
	)

	audit := repository.NewTradeAuditRepository()

	engine := NewEngine(
		doc.Portfolios,
		adapter,
		governor,
		manager,
		store,
		audit,
		logger.WithField("component", "engine"),
	)

	logger.WithFields(logger.Fields{
		"portfolios": len(doc.Portfolios),
		"tick":       config.TickInterval,
	}).Info("engine bootstrapped")

	return engine, nil
}
