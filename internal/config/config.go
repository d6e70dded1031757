// Package config resolves chatd settings from the environment and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// Environment variables consulted before flags are parsed.
const (
	EnvAddress      = "CHAT_ADDRESS"
	EnvPort         = "CHAT_PORT"
	EnvWSAddr       = "CHAT_WS_ADDR"
	EnvWriteTimeout = "CHAT_WRITE_TIMEOUT"
)

// Config holds the chatd runtime settings.
type Config struct {
	// Address is the IP to bind; empty binds every interface.
	Address string
	Port    int
	// WSAddr enables the WebSocket gateway when non-empty.
	WSAddr       string
	WriteTimeout time.Duration
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Address:      "",
		Port:         8080,
		WriteTimeout: 10 * time.Second,
	}
}

// Load applies environment overrides to the defaults, then flags from args.
// Usage output for -h goes to usage; flag.ErrHelp is returned unchanged.
func Load(args []string, getenv func(string) string, usage io.Writer) (Config, error) {
	cfg := Default()
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	if v := getenv(EnvAddress); v != "" {
		cfg.Address = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := getenv(EnvWSAddr); v != "" {
		cfg.WSAddr = v
	}
	if v := getenv(EnvWriteTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", EnvWriteTimeout, err)
		}
		cfg.WriteTimeout = d
	}

	fs := flag.NewFlagSet("chatd", flag.ContinueOnError)
	if usage != nil {
		fs.SetOutput(usage)
	}
	fs.StringVar(&cfg.Address, "addr", cfg.Address, "IP address to listen on (empty for all interfaces)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "Optional host:port for the WebSocket gateway")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Per-write socket deadline (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("config: unexpected arguments %v", fs.Args())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range 1-65535", c.Port)
	}
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return fmt.Errorf("config: invalid IP address %q", c.Address)
	}
	if c.WriteTimeout < 0 {
		return errors.New("config: write timeout must not be negative")
	}
	return nil
}
