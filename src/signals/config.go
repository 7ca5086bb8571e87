package signals

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL         string        `envconfig:"SIGNAL_BASE_URL" default:"http://localhost:9801"`
	APIKeyEncrypted string        `envconfig:"SIGNAL_API_KEY_ENCRYPTED"`
	Timeout         time.Duration `envconfig:"SIGNAL_TIMEOUT" default:"10s"`
	RetryCount      int           `envconfig:"SIGNAL_RETRY_COUNT" default:"2"`
	StreamURL       string        `envconfig:"SIGNAL_STREAM_URL"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
