package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=127.0.0.1:5010" validate:"required,hostname_port"`
	Alias         string `env:"CHAT_ALIAS" validate:"max=32"`
	InboxDir      string `env:"INBOX_DIR,default=recibidos" validate:"required"`
	LogLevel      string `env:"LOG_LEVEL,default=warn"`
	MaxFrameBytes int    `env:"MAX_FRAME_BYTES,default=16777216" validate:"min=1024"`
	WebSocket     bool   `env:"CHAT_WEBSOCKET,default=false"`
	Colours       bool   `env:"CHAT_COLOURS,default=true"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
