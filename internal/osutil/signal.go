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

package osutil

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tochemey/bavarde/log"
)

var (
	signalMu, regMu sync.Mutex
	exitHook        ExitHook
	// exit terminates the process once the hook has run
	exit = os.Exit
)

// ExitHook is executed on receiving SIGHUP, SIGINT or SIGTERM.
type ExitHook func() error

// ShutdownSignals are the signals that trigger an orderly shutdown
var ShutdownSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}

// RegisterExitHook registers the ExitHook in a thread-safe manner
func RegisterExitHook(hook ExitHook) {
	regMu.Lock()
	exitHook = hook
	regMu.Unlock()
}

// HandleSignals waits in the background for one of the ShutdownSignals,
// runs the registered ExitHook and exits the process with a success status.
// Closing cancel stops listening for signals.
func HandleSignals(logger log.Logger, cancel <-chan struct{}) {
	notifier := make(chan os.Signal, 1)
	signal.Notify(notifier, ShutdownSignals...)
	go func() {
		select {
		case sig := <-notifier:
			regMu.Lock()
			hook := exitHook
			regMu.Unlock()

			// a single shutdown runs at a time
			signalMu.Lock()
			defer signalMu.Unlock()
			logger.Infof("received an OS signal (%s) to shutdown", sig.String())

			if hook != nil {
				if err := hook(); err != nil {
					logger.Error(err)
				}
			}

			signal.Stop(notifier)
			exit(0)
		case <-cancel:
			signal.Stop(notifier)
		}
	}()
}
