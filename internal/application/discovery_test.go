package application

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	mu      sync.Mutex
	healthy map[string]bool
	calls   atomic.Int64
}

func newStubChecker() *stubChecker {
	return &stubChecker{healthy: make(map[string]bool)}
}

func (s *stubChecker) set(url string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy[url] = healthy
}

func (s *stubChecker) Check(_ context.Context, url string) bool {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy[url]
}

type failingDirectory struct {
	services []*domain.ServiceInfo
	failID   string

	mu      sync.Mutex
	written map[string]domain.ServiceStatus
}

func (f *failingDirectory) List(context.Context) ([]*domain.ServiceInfo, error) {
	return f.services, nil
}

func (f *failingDirectory) Update(_ context.Context, info *domain.ServiceInfo) error {
	if info.ID == f.failID {
		return domain.ErrRegistryUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[info.ID] = info.Status
	return nil
}

func TestDiscovery_FlipsStatus(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	up := testService("svc-up", "booking-service")
	up.URL = "http://up:1"
	down := testService("svc-down", "booking-service")
	down.URL = "http://down:1"
	require.NoError(t, registry.Register(ctx, up))
	require.NoError(t, registry.Register(ctx, down))

	checker := newStubChecker()
	checker.set("http://up:1/health", true)
	checker.set("http://down:1/health", false)

	discovery := NewDiscovery(registry, checker, DiscoveryConfig{Interval: time.Hour})
	discovery.CheckAll(ctx)

	got, err := registry.Get(ctx, "svc-down")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, got.Status)

	got, err = registry.Get(ctx, "svc-up")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	checker.set("http://down:1/health", true)
	discovery.CheckAll(ctx)

	got, err = registry.Get(ctx, "svc-down")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status, "a recovered service flips back to active")
}

func TestDiscovery_OneFailureDoesNotAbortOthers(t *testing.T) {
	dir := &failingDirectory{
		services: []*domain.ServiceInfo{
			{ID: "bad", Name: "a", URL: "http://a:1", Status: domain.StatusActive},
			{ID: "good", Name: "b", URL: "http://b:1", Status: domain.StatusActive},
		},
		failID:  "bad",
		written: make(map[string]domain.ServiceStatus),
	}
	checker := newStubChecker()

	discovery := NewDiscovery(dir, checker, DiscoveryConfig{})
	discovery.CheckAll(context.Background())

	assert.Equal(t, int64(2), checker.calls.Load())
	assert.Equal(t, domain.StatusInactive, dir.written["good"])
	_, wrote := dir.written["bad"]
	assert.False(t, wrote)
}

// gatedChecker blocks every probe until release is closed.
type gatedChecker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedChecker) Check(ctx context.Context, _ string) bool {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return false
}

func TestDiscovery_DoesNotResurrectDeregisteredService(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))

	checker := &gatedChecker{started: make(chan struct{}), release: make(chan struct{})}
	discovery := NewDiscovery(registry, checker, DiscoveryConfig{})

	done := make(chan struct{})
	go func() {
		discovery.CheckAll(ctx)
		close(done)
	}()

	<-checker.started
	require.NoError(t, registry.Deregister(ctx, "svc-1"))
	close(checker.release)
	<-done

	_, err := registry.Get(ctx, "svc-1")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestDiscovery_ListFailureIsTolerated(t *testing.T) {
	registry, mr := setupRegistry(t)
	mr.SetError("ERR store unavailable")

	discovery := NewDiscovery(registry, newStubChecker(), DiscoveryConfig{})
	assert.NotPanics(t, func() { discovery.CheckAll(context.Background()) })
}

func TestDiscovery_StartStop(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	svc := testService("svc-1", "booking-service")
	svc.URL = backend.URL
	require.NoError(t, registry.Register(ctx, svc))

	discovery := NewDiscovery(registry, NewHTTPHealthChecker(time.Second), DiscoveryConfig{Interval: 20 * time.Millisecond})
	discovery.Start(ctx)
	discovery.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := registry.Get(ctx, "svc-1")
		return err == nil && got.Status == domain.StatusInactive
	}, 2*time.Second, 10*time.Millisecond)

	discovery.Stop()
	after := hits.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, hits.Load(), "no checks after Stop")

	discovery.Stop()
}

func TestDiscovery_StopsWithParentContext(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	discovery := NewDiscovery(registry, newStubChecker(), DiscoveryConfig{Interval: 10 * time.Millisecond})
	discovery.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		discovery.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(errors.New("Stop did not return after parent cancel"))
	}
}
