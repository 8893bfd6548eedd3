package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gosplice/internal/domain"
)

var errTask3 = errors.New("task 3 always fails")

// tracker records dispatch and the peak number of concurrently running tasks.
type tracker struct {
	mu       sync.Mutex
	started  []int
	inFlight int
	peak     int
	finished atomic.Int32
}

func (tr *tracker) work(delay func(n int) time.Duration) func(context.Context, int) (string, error) {
	return func(_ context.Context, n int) (string, error) {
		tr.mu.Lock()
		tr.started = append(tr.started, n)
		tr.inFlight++
		if tr.inFlight > tr.peak {
			tr.peak = tr.inFlight
		}
		tr.mu.Unlock()

		time.Sleep(delay(n))

		tr.mu.Lock()
		tr.inFlight--
		tr.mu.Unlock()
		tr.finished.Add(1)

		if n == 3 {
			return "", errTask3
		}
		return fmt.Sprintf("item-%d", n), nil
	}
}

func (tr *tracker) startedCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.started)
}

func TestAllSettledKeepsInputOrder(t *testing.T) {
	tr := &tracker{}
	// later items finish first
	delay := func(n int) time.Duration { return time.Duration(6-n) * 5 * time.Millisecond }

	got, err := AllSettled(context.Background(), []int{1, 2, 3, 4, 5}, tr.work(delay), 2)
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, s := range got {
		n := i + 1
		if n == 3 {
			assert.False(t, s.Fulfilled())
			assert.ErrorIs(t, s.Err, errTask3)

			var taskErr *domain.PoolTaskError
			require.ErrorAs(t, s.Err, &taskErr)
			assert.Equal(t, 2, taskErr.Index)
			continue
		}
		assert.True(t, s.Fulfilled(), "item %d", n)
		assert.Equal(t, fmt.Sprintf("item-%d", n), s.Value)
	}

	assert.LessOrEqual(t, tr.peak, 2)
	assert.EqualValues(t, 5, tr.finished.Load())
}

func TestAllFailFastRejectsWithoutCancelling(t *testing.T) {
	tr := &tracker{}
	delay := func(n int) time.Duration {
		if n == 3 {
			return time.Millisecond
		}
		return 20 * time.Millisecond
	}

	values, err := All(context.Background(), []int{1, 2, 3, 4, 5}, tr.work(delay), 2)
	assert.Nil(t, values)
	require.ErrorIs(t, err, errTask3)

	// 4 and 5 were dispatched and still run to completion
	require.Eventually(t, func() bool { return tr.startedCount() == 5 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return tr.finished.Load() == 5 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, tr.peak, 2)
}

func TestAllSuccessReturnsValuesInOrder(t *testing.T) {
	work := func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n * n, nil
	}

	values, err := All(context.Background(), []int{1, 2, 3, 4}, work, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16}, values)
}

func TestDispatchFollowsInputOrder(t *testing.T) {
	tr := &tracker{}
	noDelay := func(int) time.Duration { return 0 }

	_, err := AllSettled(context.Background(), []int{1, 2, 3, 4, 5}, tr.work(noDelay), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, tr.started)
	assert.Equal(t, 1, tr.peak)
}

func TestInvalidConcurrencyStartsNothing(t *testing.T) {
	var calls atomic.Int32
	work := func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	}

	for _, c := range []int{0, -1} {
		_, err := Run(context.Background(), []int{1, 2}, work, Options{Concurrency: c})

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	}
	assert.Zero(t, calls.Load())
}

func TestEmptyInput(t *testing.T) {
	work := func(context.Context, int) (int, error) { return 0, nil }

	values, err := All(context.Background(), nil, work, 2)
	require.NoError(t, err)
	assert.Empty(t, values)

	settled, err := AllSettled(context.Background(), []int{}, work, 2)
	require.NoError(t, err)
	assert.Empty(t, settled)
}

func TestPoolIsReusable(t *testing.T) {
	work := func(_ context.Context, s string) (int, error) { return len(s), nil }

	for range 3 {
		values, err := All(context.Background(), []string{"a", "bb", "ccc"}, work, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, values)
	}
}
