// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoAwaitReturnsResult(t *testing.T) {
	tk := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	v, err := tk.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGoAwaitPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	tk := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	_, err := tk.Await(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestAwaitRespectsCallerCancellation(t *testing.T) {
	block := make(chan struct{})
	tk := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-block
		return 1, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tk.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	close(block)
}

func TestDonePolling(t *testing.T) {
	block := make(chan struct{})
	tk := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-block
		return 1, nil
	})
	assert.False(t, tk.Done())
	close(block)
	_, _ = tk.Await(context.Background())
	assert.True(t, tk.Done())
}

func TestThreadContextRoundTrip(t *testing.T) {
	ctx := WithThreadContext(context.Background(), ThreadContext{ModuleName: "arm_controller", CurrentExecutor: "main"})
	tc, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "arm_controller", tc.ModuleName)
	assert.Equal(t, "main", tc.CurrentExecutor)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestSingleThreadExecutorPreservesOrder(t *testing.T) {
	e := NewSingleThread("single", 0)
	defer e.Shutdown()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		e.Post(func(ctx context.Context) {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	<-done
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSingleThreadInlineSetsCurrentExecutor(t *testing.T) {
	e := NewSingleThread("single", 0)
	defer e.Shutdown()

	var got string
	e.Inline(context.Background(), func(ctx context.Context) {
		tc, _ := FromContext(ctx)
		got = tc.CurrentExecutor
	})
	assert.Equal(t, "single", got)
}

func TestThreadPoolRunsAllJobs(t *testing.T) {
	e := NewThreadPool("pool", 4, 0)
	defer e.Shutdown()

	var n int64
	const jobs = 50
	var doneCh = make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		e.Post(func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
			doneCh <- struct{}{}
		})
	}
	for i := 0; i < jobs; i++ {
		<-doneCh
	}
	assert.EqualValues(t, jobs, atomic.LoadInt64(&n))
}

func TestStrandSerializesPostedWork(t *testing.T) {
	e := NewStrand("strand")
	var active int32
	var maxActive int32
	done := make(chan struct{})
	const n = 20
	counter := int32(0)

	for i := 0; i < n; i++ {
		e.Post(func(ctx context.Context) {
			cur := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if cur <= m || atomic.CompareAndSwapInt32(&maxActive, m, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			if atomic.AddInt32(&counter, 1) == n {
				close(done)
			}
		})
	}
	<-done
	assert.Equal(t, int32(1), maxActive)
}

func TestTimeWheelFiresAfterDelay(t *testing.T) {
	e := NewTimeWheel("wheel", 5*time.Millisecond)
	defer e.Shutdown()

	fired := make(chan struct{})
	e.ScheduleAfter(20*time.Millisecond, func(ctx context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestAsyncScopeCancelPropagates(t *testing.T) {
	s := NewAsyncScope(context.Background())
	observed := make(chan error, 1)
	Spawn(s, func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		observed <- ctx.Err()
		return struct{}{}, nil
	})
	assert.True(t, s.Ok())
	s.Complete()
	assert.False(t, s.Ok())
	assert.ErrorIs(t, <-observed, context.Canceled)
}

func TestAsyncScopeWaitBlocksUntilSpawnedTasksExit(t *testing.T) {
	s := NewAsyncScope(context.Background())
	var ran int32
	release := make(chan struct{})
	Spawn(s, func(ctx context.Context) (struct{}, error) {
		<-release
		atomic.StoreInt32(&ran, 1)
		return struct{}{}, nil
	})

	waitDone := make(chan struct{})
	go func() {
		s.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatal("Wait returned before spawned task completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-waitDone
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestAnyReturnsFirstCompletion(t *testing.T) {
	slow := Go(context.Background(), func(ctx context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "slow", nil
	})
	fast := Go(context.Background(), func(ctx context.Context) (string, error) {
		return "fast", nil
	})

	idx, val, err := Any(context.Background(), slow, fast)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "fast", val)
}

func TestLoopRunsFixedCountThenStops(t *testing.T) {
	var n int32
	Loop(context.Background(), time.Millisecond, func(ctx context.Context) bool {
		return atomic.AddInt32(&n, 1) < 5
	})
	assert.EqualValues(t, 5, n)
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	Loop(ctx, time.Millisecond, func(ctx context.Context) bool {
		atomic.AddInt32(&n, 1)
		return true
	})
	assert.True(t, atomic.LoadInt32(&n) > 0)
}
