// Package plugin loads external source plugins and adapts them to the
// calculation engine's read-only source interfaces.
package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	domainPlugin "github.com/felixgeelhaar/kalk/pkg/domain/plugin"
)

// DefaultCallTimeout bounds a single plugin call.
const DefaultCallTimeout = 30 * time.Second

// ResilientSource wraps a plugin Source with a per-call timeout and a retry so a
// slow or flapping ERP backend cannot block a recompute forever.
type ResilientSource struct {
	inner       domainPlugin.Source
	callTimeout time.Duration
	retryConfig retry.Config
}

var _ calculation.Sources = (*ResilientSource)(nil)

func NewResilientSource(inner domainPlugin.Source, callTimeout time.Duration) *ResilientSource {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &ResilientSource{
		inner:       inner,
		callTimeout: callTimeout,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// call runs fn under timeout and retry. It is a function rather than a method
// because methods cannot take type parameters.
func call[T any](ctx context.Context, s *ResilientSource, fn func() (T, error)) (T, error) {
	r := retry.New[T](s.retryConfig)
	t := timeout.New[T](timeout.Config{DefaultTimeout: s.callTimeout})
	return t.Execute(ctx, s.callTimeout, func(ctx context.Context) (T, error) {
		return r.Do(ctx, func(ctx context.Context) (T, error) {
			return await(ctx, fn)
		})
	})
}

// await returns when fn does or when ctx ends, whichever comes first. Plugin
// calls cannot be cancelled, so an abandoned call finishes in the background.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *ResilientSource) ListProjects(ctx context.Context) ([]calculation.Project, error) {
	return call(ctx, s, s.inner.ListProjects)
}

func (s *ResilientSource) GetProject(ctx context.Context, projectID string) (*calculation.Project, error) {
	p, err := call(ctx, s, func() (*calculation.Project, error) {
		return s.inner.GetProject(projectID)
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", calculation.ErrProjectNotFound, projectID)
	}
	return p, nil
}

func (s *ResilientSource) GetOffer(ctx context.Context, offerID string) (*calculation.Offer, error) {
	if offerID == "" {
		return nil, nil
	}
	return call(ctx, s, func() (*calculation.Offer, error) {
		return s.inner.GetOffer(offerID)
	})
}

func (s *ResilientSource) ListAssignments(ctx context.Context, projectID string) ([]calculation.EmployeeAssignment, error) {
	return call(ctx, s, func() ([]calculation.EmployeeAssignment, error) {
		return s.inner.ListAssignments(projectID)
	})
}

func (s *ResilientSource) ListTimeEntries(ctx context.Context, projectID string) ([]calculation.TimeEntry, error) {
	return call(ctx, s, func() ([]calculation.TimeEntry, error) {
		return s.inner.ListTimeEntries(projectID)
	})
}
