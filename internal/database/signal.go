package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext derives a context from parent that is cancelled on SIGTERM or SIGINT.
// onSignal, if non-nil, is called with the received signal before cancellation, so the
// running stage can log that it is being interrupted. The returned CancelFunc stops
// signal delivery and must be called when the run finishes.
func SignalContext(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
