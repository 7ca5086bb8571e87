package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TickInterval   time.Duration `envconfig:"ENGINE_TICK_INTERVAL" default:"60s"`
	SignalTimeout  time.Duration `envconfig:"ENGINE_SIGNAL_TIMEOUT" default:"10s"`
	FeeRate        float64       `envconfig:"ENGINE_FEE_RATE" default:"0.001"` // 0.001 = 10 bps per fill
	PersistRetries int           `envconfig:"ENGINE_PERSIST_RETRIES" default:"5"`
	PersistBackoff time.Duration `envconfig:"ENGINE_PERSIST_BACKOFF" default:"2s"`
	StatePath      string        `envconfig:"ENGINE_STATE_PATH" default:"papertrader_state.json"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
