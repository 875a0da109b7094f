package main

import (
	"context"
	"io"
	"os"

	"github.com/crazyfrankie/grpcbus/config"
	"github.com/crazyfrankie/grpcbus/tracing"
)

// newTracing builds the tracing handler described by cfg. The returned
// function flushes pending spans and closes the output.
func newTracing(cfg config.Tracing) (*tracing.Handler, func(context.Context) error, error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, closeFn = f, f.Close
	}

	tp, err := tracing.NewProvider(w, cfg.SampleRatio)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	var filters []tracing.Filter
	if len(cfg.Methods) > 0 {
		filters = append(filters, tracing.MethodFilter(cfg.Methods...))
	}
	if len(cfg.Services) > 0 {
		filters = append(filters, tracing.ServicePrefixFilter(cfg.Services...))
	}
	if len(cfg.ExcludeMethods) > 0 {
		filters = append(filters, tracing.Not(tracing.MethodFilter(cfg.ExcludeMethods...)))
	}

	h := tracing.NewHandler(
		tracing.WithTracerProvider(tp),
		tracing.WithPropagators(tracing.Propagator()),
		tracing.WithFilter(tracing.All(filters...)),
		tracing.WithMessageEvents(cfg.MessageEvents),
	)
	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := closeFn(); err == nil {
			err = cerr
		}
		return err
	}
	return h, shutdown, nil
}
