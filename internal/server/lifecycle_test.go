package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	once    sync.Once
	startFn func() error
	onStop  func()
}

func newMockService() *mockService {
	return &mockService{stop: make(chan struct{})}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.stop
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
	if m.onStop != nil {
		m.onStop()
	}
	m.once.Do(func() { close(m.stop) })
}

func runAsync(lc *Lifecycle, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
		return nil
	}
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := newMockService()
	svc2 := newMockService()
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(lc, ctx)

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		svc := newMockService()
		svc.onStop = func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
		lc.Add(name, svc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(lc, ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestLifecycleReturnsFirstServiceError(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	healthy := newMockService()
	boom := errors.New("boom")
	failing := newMockService()
	failing.startFn = func() error { return boom }
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	err := waitDone(t, runAsync(lc, context.Background()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "service failing")
	assert.True(t, healthy.stopped.Load(), "a failure must stop the other services")
}

func TestLifecycleReturnsWhenAllServicesFinish(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc := newMockService()
	svc.startFn = func() error { return nil }
	lc.Add("oneshot", svc)

	assert.NoError(t, waitDone(t, runAsync(lc, context.Background())))
	assert.True(t, svc.stopped.Load())
}

func TestLifecycleNoServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	assert.NoError(t, waitDone(t, runAsync(lc, context.Background())))
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}

func TestFuncService_NilStop(t *testing.T) {
	svc := &FuncService{StartFn: func() error { return nil }}
	assert.NotPanics(t, svc.Stop)
}
