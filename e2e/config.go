package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR targets a running relay; empty starts one in process
	RelayAddr  string `envconfig:"RELAY_ADDR"`
	HealthAddr string `envconfig:"HEALTH_ADDR"`
	// E2E_DEBUG_JSON dumps gRPC health request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours       bool `envconfig:"E2E_COLOURS" default:"true"`
	MaxFrameBytes int  `envconfig:"MAX_FRAME_BYTES" default:"16777216"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
