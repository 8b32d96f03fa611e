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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/bavarde/log"
)

func TestNew(t *testing.T) {
	t.Run("With defaults", func(t *testing.T) {
		config, err := New()
		require.NoError(t, err)
		assert.Equal(t, DefaultHost, config.Host)
		assert.Equal(t, DefaultPort, config.Port)
		assert.Equal(t, "info", config.LogLevel)
		assert.Equal(t, DefaultShutdownTimeout, config.ShutdownTimeout)
		assert.Equal(t, DefaultAcceptLoops, config.AcceptLoops)
		assert.Zero(t, config.MaxConnections)
		require.NotNil(t, config.Logger)
		assert.Equal(t, log.InfoLevel, config.Logger.LogLevel())
		assert.Equal(t, "0.0.0.0:9999", config.Address())
	})

	t.Run("With options", func(t *testing.T) {
		config, err := New(
			WithHost("127.0.0.1"),
			WithPort(0),
			WithLogLevel(log.DebugLevel),
			WithShutdownTimeout(time.Second),
			WithAcceptLoops(1),
			WithMaxConnections(10),
			WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:0", config.Address())
		assert.Equal(t, "debug", config.LogLevel)
		assert.Equal(t, time.Second, config.ShutdownTimeout)
		assert.Equal(t, 1, config.AcceptLoops)
		assert.EqualValues(t, 10, config.MaxConnections)
		assert.Equal(t, log.DiscardLogger, config.Logger)
	})

	t.Run("With every violation reported", func(t *testing.T) {
		config, err := New(
			WithHost(""),
			WithPort(70000),
			WithShutdownTimeout(0),
			WithAcceptLoops(0),
			WithMaxConnections(-1),
			OptionFunc(func(c *Config) { c.LogLevel = "loud" }))
		require.Error(t, err)
		assert.Nil(t, config)

		for _, msg := range []string{
			"the [host] is required",
			"invalid address",
			`invalid log level "loud"`,
			"shutdown timeout must be positive",
			"accept loops must be positive",
			"max connections must not be negative",
		} {
			assert.ErrorContains(t, err, msg)
		}
	})
}

func TestOptions(t *testing.T) {
	testCases := []struct {
		name           string
		option         Option
		expectedConfig Config
	}{
		{name: "WithHost", option: WithHost("localhost"), expectedConfig: Config{Host: "localhost"}},
		{name: "WithPort", option: WithPort(7777), expectedConfig: Config{Port: 7777}},
		{name: "WithLogLevel", option: WithLogLevel(log.ErrorLevel), expectedConfig: Config{LogLevel: "error"}},
		{name: "WithShutdownTimeout", option: WithShutdownTimeout(time.Minute), expectedConfig: Config{ShutdownTimeout: time.Minute}},
		{name: "WithAcceptLoops", option: WithAcceptLoops(2), expectedConfig: Config{AcceptLoops: 2}},
		{name: "WithMaxConnections", option: WithMaxConnections(5), expectedConfig: Config{MaxConnections: 5}},
		{name: "WithLogger", option: WithLogger(log.DiscardLogger), expectedConfig: Config{Logger: log.DiscardLogger}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			tc.option.Apply(&cfg)
			assert.Equal(t, tc.expectedConfig, cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("With defaults only", func(t *testing.T) {
		config, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultHost, config.Host)
		assert.Equal(t, DefaultPort, config.Port)
		assert.Equal(t, DefaultShutdownTimeout, config.ShutdownTimeout)
	})

	t.Run("With config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bavarde.yaml")
		content := []byte("host: 127.0.0.1\nport: 4242\nlog_level: warn\nshutdown_timeout: 3s\naccept_loops: 2\nmax_connections: 100\n")
		require.NoError(t, os.WriteFile(path, content, 0o600))

		config, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:4242", config.Address())
		assert.Equal(t, "warn", config.LogLevel)
		assert.Equal(t, log.WarningLevel, config.Logger.LogLevel())
		assert.Equal(t, 3*time.Second, config.ShutdownTimeout)
		assert.Equal(t, 2, config.AcceptLoops)
		assert.EqualValues(t, 100, config.MaxConnections)
	})

	t.Run("With environment overriding the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bavarde.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: 4242\n"), 0o600))
		t.Setenv("BAVARDE_PORT", "5353")
		t.Setenv("BAVARDE_SHUTDOWN_TIMEOUT", "250ms")

		config, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 5353, config.Port)
		assert.Equal(t, 250*time.Millisecond, config.ShutdownTimeout)
	})

	t.Run("With flags overriding the environment", func(t *testing.T) {
		t.Setenv("BAVARDE_PORT", "5353")
		flags := pflag.NewFlagSet("bavarde", pflag.ContinueOnError)
		flags.IntP("port", "p", DefaultPort, "")
		flags.String("host", DefaultHost, "")
		require.NoError(t, flags.Parse([]string{"-p", "6000"}))

		config, err := Load("", flags)
		require.NoError(t, err)
		assert.Equal(t, 6000, config.Port)
		assert.Equal(t, DefaultHost, config.Host)
	})

	t.Run("With missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		require.Error(t, err)
	})

	t.Run("With invalid values", func(t *testing.T) {
		t.Setenv("BAVARDE_LOG_LEVEL", "loud")
		_, err := Load("", nil)
		require.ErrorContains(t, err, "configuration validation failed")
	})
}
