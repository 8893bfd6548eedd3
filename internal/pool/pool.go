// Package pool runs independent tasks under a concurrency ceiling.
//
// Dispatch always walks every item in input order, whatever happens to earlier
// tasks. Only the aggregation differs: FailFast reports the first failure as soon
// as dispatch is done and a failure is known, while collect-all waits for every
// task and reports one settled outcome per item. Nothing is ever cancelled; tasks
// still running when a fail-fast Run returns keep running in the background.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/datallboy/gosplice/internal/domain"
)

type Options struct {
	Concurrency int
	FailFast    bool
}

// Settled is the outcome of one task. Err is a *domain.PoolTaskError when set.
type Settled[R any] struct {
	Value R
	Err   error
}

func (s Settled[R]) Fulfilled() bool { return s.Err == nil }

// Result holds Values in fail-fast mode and Settled in collect-all mode, both in input order.
type Result[R any] struct {
	Values  []R
	Settled []Settled[R]
}

// Run invokes work once per item with at most opts.Concurrency tasks in flight.
func Run[T, R any](ctx context.Context, items []T, work func(context.Context, T) (R, error), opts Options) (*Result[R], error) {
	if opts.Concurrency < 1 {
		return nil, &domain.ConfigurationError{
			Field: "concurrency",
			Err:   fmt.Errorf("must be at least 1, got %d", opts.Concurrency),
		}
	}

	settled := make([]Settled[R], len(items))

	var (
		once     sync.Once
		firstErr error
		failed   = make(chan struct{})
	)

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for i, item := range items {
		// Go blocks while the window is full, which is what paces dispatch
		g.Go(func() error {
			v, err := work(ctx, item)
			if err != nil {
				err = &domain.PoolTaskError{Index: i, Err: err}
				once.Do(func() {
					firstErr = err
					close(failed)
				})
			}
			settled[i] = Settled[R]{Value: v, Err: err}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	if opts.FailFast {
		select {
		case <-failed:
			return nil, firstErr
		case <-done:
		}

		if firstErr != nil {
			return nil, firstErr
		}

		values := make([]R, len(settled))
		for i, s := range settled {
			values[i] = s.Value
		}
		return &Result[R]{Values: values}, nil
	}

	<-done
	return &Result[R]{Settled: settled}, nil
}

// All is Run in fail-fast mode.
func All[T, R any](ctx context.Context, items []T, work func(context.Context, T) (R, error), concurrency int) ([]R, error) {
	res, err := Run(ctx, items, work, Options{Concurrency: concurrency, FailFast: true})
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// AllSettled is Run in collect-all mode. The error is only ever a configuration error.
func AllSettled[T, R any](ctx context.Context, items []T, work func(context.Context, T) (R, error), concurrency int) ([]Settled[R], error) {
	res, err := Run(ctx, items, work, Options{Concurrency: concurrency})
	if err != nil {
		return nil, err
	}
	return res.Settled, nil
}
