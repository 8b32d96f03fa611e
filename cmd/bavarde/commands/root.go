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

// Package commands implements the bavarde command line.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tochemey/bavarde/config"
	"github.com/tochemey/bavarde/internal/osutil"
	"github.com/tochemey/bavarde/server"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// stopGrace is added to the shutdown timeout when bounding Stop
const stopGrace = time.Second

type rootOptions struct {
	configFile string
	quiet      bool
}

// NewRootCommand creates the bavarde command. Running it starts the chat
// server in the foreground until a shutdown signal is received or the
// command context is cancelled.
func NewRootCommand() *cobra.Command {
	opts := new(rootOptions)
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "bavarde",
		Short: "bavarde - a small TCP chat server",
		Long: `bavarde relays short messages between clients logged in under a handle.

Settings are read, in increasing order of precedence, from the defaults, the
YAML file given with --config, BAVARDE_* environment variables and flags.

Examples:
  # Listen on the default port
  bavarde

  # Listen on port 7777, errors only
  bavarde -p 7777 -q

  # Override the log level from the environment
  BAVARDE_LOG_LEVEL=debug bavarde`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")
	flags.StringP("host", "H", defaults.Host, "address to listen on")
	flags.IntP("port", "p", defaults.Port, "port to listen on")
	flags.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.Duration("shutdown-timeout", defaults.ShutdownTimeout, "how long to wait for sessions to end on shutdown")
	flags.Int("accept-loops", defaults.AcceptLoops, "number of concurrent accept loops")
	flags.Int32("max-connections", defaults.MaxConnections, "maximum number of accepted connections, 0 for no limit")

	cmd.AddCommand(newVersionCommand())
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("bavarde %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	if opts.quiet {
		if err := cmd.Flags().Set("log-level", "error"); err != nil {
			return err
		}
	}

	cfg, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	stop := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+stopGrace)
		defer cancel()
		return srv.Stop(stopCtx)
	}

	done := make(chan struct{})
	osutil.RegisterExitHook(stop)
	osutil.HandleSignals(cfg.Logger, done)

	<-ctx.Done()
	close(done)
	return stop()
}
