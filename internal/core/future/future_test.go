package future

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := New[int]()
	var got []int
	f.Then(func(v int, err error) {
		require.NoError(t, err)
		got = append(got, v)
	})

	assert.False(t, f.Settled())
	_, _, ok := f.Result()
	assert.False(t, ok)

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	v, err, ok := f.Result()
	require.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{1}, got)

	// Callbacks on a settled future run immediately.
	f.Then(func(v int, _ error) { got = append(got, v*10) })
	assert.Equal(t, []int{1, 10}, got)
}

func TestFutureReject(t *testing.T) {
	boom := errors.New("boom")
	f := Failed[string](boom)
	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	g := New[string]()
	g.Reject(nil)
	_, err, _ = g.Result()
	assert.ErrorIs(t, err, ErrNilRejection)
}

func TestFutureWaitHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFutureResolvedFromAnotherGoroutine(t *testing.T) {
	f := New[int]()
	go f.Resolve(42)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	<-f.Done()
}

func TestMap(t *testing.T) {
	src := New[string]()
	n := Map(src, strconv.Atoi)
	src.Resolve("12")
	v, err, ok := n.Result()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	bad := Map(Resolved("x"), strconv.Atoi)
	_, err, _ = bad.Result()
	assert.Error(t, err)

	boom := errors.New("boom")
	failed := Map(Failed[string](boom), strconv.Atoi)
	_, err, _ = failed.Result()
	assert.ErrorIs(t, err, boom)
}

// Three signals arriving in any order complete the aggregate exactly once.
func TestAggregateOrders(t *testing.T) {
	for _, order := range [][]int{{1, 3, 2}, {2, 1, 3}, {3, 2, 1}} {
		a := NewAggregate(3)
		completions := 0
		a.OnComplete(func(err error) {
			assert.NoError(t, err)
			completions++
		})
		for i, sig := range order {
			assert.False(t, a.IsComplete(), "order %v before signal %d", order, sig)
			require.NoError(t, a.Done())
			assert.Equal(t, 2-i, a.Remaining())
		}
		assert.True(t, a.IsComplete())
		assert.Equal(t, 1, completions, "order %v", order)
	}
}

func TestAggregateExtraSignal(t *testing.T) {
	a := NewAggregate(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Done())
	}
	assert.ErrorIs(t, a.Done(), ErrAggregateCompleted)
	assert.ErrorIs(t, a.Fail(errors.New("late")), ErrAggregateCompleted)
	assert.NoError(t, a.Err())
}

func TestAggregateAddAfterCompletePanics(t *testing.T) {
	a := NewAggregate(1)
	require.NoError(t, a.Done())
	assert.PanicsWithValue(t, ErrAggregateCompleted, func() { a.Add(1) })

	zero := NewAggregate(0)
	assert.True(t, zero.IsComplete())
	assert.Panics(t, func() { zero.Add(1) })
	assert.Panics(t, func() { NewAggregate(-1) })
}

func TestAggregateDynamicAdd(t *testing.T) {
	a := NewAggregate(1)
	a.Add(2)
	require.NoError(t, a.Done())
	require.NoError(t, a.Done())
	assert.False(t, a.IsComplete())
	a.Add(1)
	require.NoError(t, a.Done())
	assert.False(t, a.IsComplete())
	require.NoError(t, a.Done())
	assert.True(t, a.IsComplete())
}

func TestAggregateFirstFailureWins(t *testing.T) {
	first := errors.New("first")
	a := NewAggregate(3)
	require.NoError(t, a.Fail(first))
	require.NoError(t, a.Fail(errors.New("second")))
	assert.False(t, a.IsComplete())
	require.NoError(t, a.Done())

	assert.ErrorIs(t, a.Wait(context.Background()), first)

	var got error
	a.OnComplete(func(err error) { got = err })
	assert.ErrorIs(t, got, first)
}

func TestAggregateConcurrentSignals(t *testing.T) {
	const n = 64
	a := NewAggregate(n)
	var completions int
	var mu sync.Mutex
	a.OnComplete(func(error) {
		mu.Lock()
		completions++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < n+8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Done()
		}()
	}
	wg.Wait()

	select {
	case <-a.Completed():
	default:
		t.Fatal("aggregate not completed")
	}
	assert.Equal(t, 1, completions)
}
