// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tochemey/bavarde/internal/validation"
	"github.com/tochemey/bavarde/log"
)

const (
	// EnvPrefix prefixes the environment variables overriding the configuration
	EnvPrefix = "BAVARDE"

	// DefaultHost is the address the server binds to by default
	DefaultHost = "0.0.0.0"
	// DefaultPort is the port the server listens on by default
	DefaultPort = 9999
	// DefaultShutdownTimeout bounds the wait for client sessions at shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultAcceptLoops is the number of goroutines accepting connections
	DefaultAcceptLoops = 4
)

// Config represents the chat server configuration
type Config struct {
	// Host is the address to bind to
	Host string `mapstructure:"host"`
	// Port is the port to listen on. Zero picks a free port.
	Port int `mapstructure:"port"`
	// LogLevel is one of debug, info, warn, error, fatal or panic
	LogLevel string `mapstructure:"log_level"`
	// ShutdownTimeout bounds how long shutdown waits for client sessions
	// to terminate
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AcceptLoops is the number of concurrent accept loops
	AcceptLoops int `mapstructure:"accept_loops"`
	// MaxConnections caps the total number of accepted connections.
	// Zero means unlimited.
	MaxConnections int32 `mapstructure:"max_connections"`
	// Logger is the logger used by the server. It is derived from
	// LogLevel unless set explicitly.
	Logger log.Logger `mapstructure:"-"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		LogLevel:        log.InfoLevel.String(),
		ShutdownTimeout: DefaultShutdownTimeout,
		AcceptLoops:     DefaultAcceptLoops,
	}
}

// New creates an instance of Config from the defaults and the given options
// and validates it
func New(options ...Option) (*Config, error) {
	config := Default()
	for _, opt := range options {
		opt.Apply(config)
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load builds the configuration from, in increasing order of precedence,
// the defaults, the YAML file at path (when not empty), the BAVARDE_*
// environment variables and the flags explicitly set on flags (may be nil).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)
	v.SetDefault("accept_loops", defaults.AcceptLoops)
	v.SetDefault("max_connections", defaults.MaxConnections)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for _, key := range []string{"host", "port", "log_level", "shutdown_timeout", "accept_loops", "max_connections"} {
			flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
			}
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Sanitize(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	_, levelErr := log.ParseLevel(c.LogLevel)
	return validation.New(validation.AllErrors()).
		AddValidator(validation.NewEmptyStringValidator("host", c.Host)).
		AddValidator(validation.NewTCPAddressValidator(c.Address())).
		AddAssertion(levelErr == nil, fmt.Sprintf("invalid log level %q", c.LogLevel)).
		AddAssertion(c.ShutdownTimeout > 0, "shutdown timeout must be positive").
		AddAssertion(c.AcceptLoops > 0, "accept loops must be positive").
		AddAssertion(c.MaxConnections >= 0, "max connections must not be negative").
		Validate()
}

// Sanitize validates the configuration and derives the logger from the
// log level when none was set
func (c *Config) Sanitize() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Logger == nil {
		level, _ := log.ParseLevel(c.LogLevel)
		c.Logger = log.NewZap(level, os.Stdout)
	}
	return nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
