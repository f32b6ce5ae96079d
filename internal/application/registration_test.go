package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistrar(t *testing.T) (*Registrar, *Registry, *LoadBalancer) {
	t.Helper()
	registry, _ := setupRegistry(t)
	lb := NewLoadBalancer(registry, newStubChecker(), LoadBalancerConfig{})
	r := NewRegistrar(registry, lb)
	r.now = func() time.Time { return time.Unix(0, 1700000000000000000) }
	return r, registry, lb
}

func TestRegistrar_Register(t *testing.T) {
	r, registry, lb := setupRegistrar(t)
	ctx := context.Background()

	resp, err := r.Register(ctx, &domain.RegisterRequest{Name: "tracking-service", URL: "http://localhost:4001"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "tracking-service1700000000000000000", resp.InstanceID)

	info, err := registry.Get(ctx, resp.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, info.Status)
	assert.Equal(t, "/health", info.HealthCheck)

	pool := lb.Instances("tracking-service")
	require.Len(t, pool, 1)
	assert.Equal(t, resp.InstanceID, pool[0].ID)
	assert.Equal(t, 1, pool[0].Weight)
}

func TestRegistrar_RegisterInvalid(t *testing.T) {
	r, _, lb := setupRegistrar(t)

	_, err := r.Register(context.Background(), &domain.RegisterRequest{Name: "x", URL: "not a url"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Empty(t, lb.Snapshot())
}

func TestRegistrar_RegistryDownLeavesPoolUntouched(t *testing.T) {
	registry, mr := setupRegistry(t)
	lb := NewLoadBalancer(registry, newStubChecker(), LoadBalancerConfig{})
	r := NewRegistrar(registry, lb)
	mr.SetError("ERR store unavailable")

	_, err := r.Register(context.Background(), &domain.RegisterRequest{Name: "svc", URL: "http://localhost:1"})
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	assert.Empty(t, lb.Instances("svc"))
}

func TestRegistrar_Deregister(t *testing.T) {
	r, registry, lb := setupRegistrar(t)
	ctx := context.Background()

	resp, err := r.Register(ctx, &domain.RegisterRequest{Name: "booking-service", URL: "http://localhost:4002"})
	require.NoError(t, err)

	require.NoError(t, r.Deregister(ctx, resp.InstanceID))

	assert.Empty(t, lb.Instances("booking-service"))
	_, err = registry.Get(ctx, resp.InstanceID)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestRegistrar_SameNameDistinctIDs(t *testing.T) {
	registry, _ := setupRegistry(t)
	lb := NewLoadBalancer(registry, newStubChecker(), LoadBalancerConfig{})
	r := NewRegistrar(registry, lb)
	ctx := context.Background()

	var ids []string
	for range 3 {
		resp, err := r.Register(ctx, &domain.RegisterRequest{Name: "svc", URL: "http://localhost:1"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp.InstanceID, "svc"))
		ids = append(ids, resp.InstanceID)
	}

	assert.Len(t, lb.Instances("svc"), 3)
	list, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
