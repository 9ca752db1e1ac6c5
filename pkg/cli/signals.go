package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext returns a context canceled on SIGINT or SIGTERM. Calling
// stop restores the default signal behavior, so a second signal after it
// kills the process.
func ShutdownContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ReloadSignals delivers a value for every SIGHUP until ctx is done.
// Signals arriving while a previous one is unhandled are coalesced.
func ReloadSignals(ctx context.Context) <-chan struct{} {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	reload := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}()
	return reload
}
