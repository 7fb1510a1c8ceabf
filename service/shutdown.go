// Package service provides functionality common to services and command line runs.
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

type (
	// Shutdowner represents a resource that can shutdown.
	Shutdowner interface {
		Shutdown(context.Context) error
	}

	// ShutdownFunc adapts a function to a [Shutdowner], like a store Close method.
	ShutdownFunc func(context.Context) error
)

// Shutdown calls f(ctx).
func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// ShutdownHandler handles the shutdown of multiple resources.
type ShutdownHandler struct {
	waitPeriod time.Duration
	services   []Shutdowner
}

// NewShutdownHandler creates a new [ShutdownHandler] with the given [gracefulShutdownPeriod].
func NewShutdownHandler(gracefulShutdownPeriod time.Duration) *ShutdownHandler {
	return &ShutdownHandler{waitPeriod: gracefulShutdownPeriod}
}

// Add will add the given service to the handler.
// Must be called before [ShutdownHandler.Wait] or [ShutdownHandler.Shutdown] is called.
func (s *ShutdownHandler) Add(service Shutdowner) {
	s.services = append(s.services, service)
}

// Wait will wait for the given [ctx] to be cancelled and then call [ShutdownHandler.Shutdown].
func (s *ShutdownHandler) Wait(ctx context.Context) error {
	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown shuts down all services concurrently and waits for all of them to finish.
// Each service gets the wait period provided on NewShutdownHandler. The errors of all
// services are joined.
func (s *ShutdownHandler) Shutdown() error {
	var g errgroup.Group
	errs := make([]error, len(s.services))

	for i, service := range s.services {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.waitPeriod)
			defer cancel()
			errs[i] = service.Shutdown(ctx)
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}
