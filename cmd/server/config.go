package main

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port            int           `env:"PORT,default=5010" validate:"min=1,max=65535"`
	WSPort          int           `env:"WS_PORT,default=0" validate:"min=0,max=65535"`
	HealthPort      int           `env:"HEALTH_PORT,default=5011" validate:"min=0,max=65535"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	MaxFrameBytes   int           `env:"MAX_FRAME_BYTES,default=16777216" validate:"min=1024"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=30s" validate:"min=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"min=0"`
	Console         bool          `env:"CONSOLE,default=false"`
	Colours         bool          `env:"CONSOLE_COLOURS,default=true"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Address(port int) string {
	return fmt.Sprintf("%s:%d", c.Host, port)
}
