// Package config loads and validates the server configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	defaultListen     = "0.0.0.0:6655"
	defaultRoomBuffer = 500
)

// Logging is the logging configuration block.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted logs go to stderr.
	File string

	// Level specifies the log level out of `ERROR`, `WARNING`, `NOTICE`,
	// `INFO` and `DEBUG`.
	Level string
}

func (l *Logging) validate() error {
	switch l.Level {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG", "":
		return nil
	default:
		return fmt.Errorf("config: Logging: Level '%v' invalid", l.Level)
	}
}

// Config is the server configuration.
type Config struct {
	// Listen is the host:port the server listens on.
	Listen string

	// Password gates access to the server. Clients prove knowledge of it
	// via time-windowed auth tokens; it is hashed once at startup and the
	// plaintext is never kept.
	Password string

	// RoomBuffer bounds pending broadcast messages per room subscriber.
	RoomBuffer int

	// MetricsFile, when set, receives a JSON metrics snapshot on shutdown.
	MetricsFile string

	Logging *Logging
}

// FixupAndValidate applies defaults and checks the configuration.
func (c *Config) FixupAndValidate() error {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("config: Listen '%v' invalid: %v", c.Listen, err)
	}
	if c.Password == "" {
		return errors.New("config: Password is missing")
	}
	if c.RoomBuffer == 0 {
		c.RoomBuffer = defaultRoomBuffer
	}
	if c.RoomBuffer < 0 {
		return fmt.Errorf("config: RoomBuffer %v invalid", c.RoomBuffer)
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	return c.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
