package ctxutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// ErrInterrupted is the cancellation cause of a context stopped by a signal.
var ErrInterrupted = errors.New("interrupted")

// WithInterrupt returns a context that is cancelled, with a cause wrapping
// ErrInterrupted, on the first SIGINT or SIGTERM. The returned stop function
// releases the signal handler and cancels the context.
func WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := cancelOnSignal(parent, sigs)
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func cancelOnSignal(parent context.Context, sigs <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case sig := <-sigs:
			cancel(fmt.Errorf("%w by %s", ErrInterrupted, sig))
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(nil) }
}

// Interrupted reports whether ctx was cancelled by a signal.
func Interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrInterrupted)
}

// Cause returns nil while ctx is live, ctx.Err() if it ended without a
// separate cause, and otherwise an error wrapping both ctx.Err() and the
// cause.
func Cause(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == err {
		return err
	}
	return fmt.Errorf("%w, cause: %w", err, cause)
}
