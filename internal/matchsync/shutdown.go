package matchsync

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// SetupSignalHandler returns a context cancelled on SIGTERM or SIGINT.
// onShutdown runs before cancellation; a second signal forces exit.
func SetupSignalHandler(logger logrus.FieldLogger, onShutdown func(context.Context)) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutdown requested")

		if onShutdown != nil {
			onShutdown(ctx)
		}
		cancel()

		sig = <-sigCh
		logger.WithField("signal", sig.String()).Warn("second signal, forcing exit")
		os.Exit(1)
	}()

	return ctx
}
