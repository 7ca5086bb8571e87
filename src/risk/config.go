package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DailyLossLimit     float64           `envconfig:"RISK_DAILY_LOSS_LIMIT" default:"500"`
	CooldownLosses     int               `envconfig:"RISK_COOLDOWN_LOSSES" default:"3"`
	CooldownDuration   string            `envconfig:"RISK_COOLDOWN_DURATION" default:"4h"`
	MaxCorrelated      int               `envconfig:"RISK_MAX_CORRELATED" default:"2"`
	CorrelationGroups  map[string]string `envconfig:"RISK_CORRELATION_GROUPS" default:"BTC/USDT:majors,ETH/USDT:majors,BNB/USDT:majors,SOL/USDT:alt-l1,AVAX/USDT:alt-l1,ADA/USDT:alt-l1,DOT/USDT:alt-l1,DOGE/USDT:meme,SHIB/USDT:meme"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
