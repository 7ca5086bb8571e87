package seed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/executors"
	"papertrader/src/model"
	"papertrader/src/repository"
	"papertrader/src/strategy"
)

type demoPortfolio struct {
	name        string
	strategyID  string
	capital     int64
	instruments []string
}

var demoPortfolios = []demoPortfolio{
	{"Balanced Majors", "confluence_normal", 10000, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}},
	{"Trend Rider", "ema_trend", 10000, []string{"BTC/USDT", "ETH/USDT", "AVAX/USDT"}},
	{"Fear Buyer", "dca_fear", 5000, []string{"BTC/USDT", "ETH/USDT"}},
	{"Meme Degen", "martingale_safe", 2000, []string{"DOGE/USDT", "SHIB/USDT"}},
	{"Rotation Desk", "confluence_rotating", 15000, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "AVAX/USDT", "ADA/USDT", "DOT/USDT"}},
	{"Cold Storage", "hodl", 5000, []string{"BTC/USDT"}},
	{"Scalper", "scalp_partial", 3000, []string{"SOL/USDT", "AVAX/USDT"}},
}

type Seed struct{}

// Start provisions the demo portfolios into the state file. Existing
// portfolios are matched by name and left untouched, so the command is safe
// to run repeatedly.
func (t *Seed) Start() error {
	config := executors.GetConfig()
	store := repository.NewFileStore(config.StatePath)

	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	existing := make(map[string]struct{}, len(doc.Portfolios))
	for _, p := range doc.Portfolios {
		existing[p.Name] = struct{}{}
	}

	added := 0
	now := time.Now()
	for _, demo := range demoPortfolios {
		if _, ok := existing[demo.name]; ok {
			continue
		}
		if _, err := strategy.Lookup(demo.strategyID); err != nil {
			return fmt.Errorf("seed %q: %w", demo.name, err)
		}

		capital := decimal.NewFromInt(demo.capital)
		doc.Portfolios = append(doc.Portfolios, &model.Portfolio{
			ID:             uuid.NewString(),
			Name:           demo.name,
			StrategyID:     demo.strategyID,
			Cash:           capital,
			InitialCapital: capital,
			Active:         true,
			Instruments:    demo.instruments,
			Positions:      make(map[string]*model.Position),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		added++

		logger.WithFields(logger.Fields{
			"name":     demo.name,
			"strategy": demo.strategyID,
			"capital":  demo.capital,
		}).Info("seeded portfolio")
	}

	if added == 0 {
		logger.Info("all demo portfolios already present, nothing to do")
		return nil
	}

	if err := store.Save(doc); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	logger.WithField("added", added).Info("seed completed")
	return nil
}
