package application

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewStore(client, cache.Config{Enabled: true, TTL: time.Minute, Prefix: "cache"})
	return NewRegistry(store, RegistryConfig{}), mr
}

func testService(id, name string) *domain.ServiceInfo {
	return &domain.ServiceInfo{
		ID:          id,
		Name:        name,
		URL:         "http://localhost:4000",
		Status:      domain.StatusActive,
		HealthCheck: "/health",
		Version:     "1.0.0",
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))

	got, err := registry.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "booking-service", got.Name)
	assert.Equal(t, domain.StatusActive, got.Status)

	assert.True(t, mr.Exists(DefaultRegistryKey))
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))

	updated := testService("svc-1", "booking-service")
	updated.URL = "http://localhost:5000"
	updated.Version = "2.0.0"
	require.NoError(t, registry.Register(ctx, updated))

	services, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "http://localhost:5000", services[0].URL)
	assert.Equal(t, "2.0.0", services[0].Version)
}

func TestRegistry_RegisterRequiresID(t *testing.T) {
	registry, _ := setupRegistry(t)

	err := registry.Register(context.Background(), &domain.ServiceInfo{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRegistry_Deregister(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))
	require.NoError(t, registry.Deregister(ctx, "svc-1"))

	_, err := registry.Get(ctx, "svc-1")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)

	assert.NoError(t, registry.Deregister(ctx, "never-registered"), "absent id is not an error")
}

func TestRegistry_List(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	services, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, services)

	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))
	require.NoError(t, registry.Register(ctx, testService("svc-2", "tracking-service")))
	mr.HSet(DefaultRegistryKey, "corrupt", "{not json")

	services, err = registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 2, "unreadable records are skipped")
}

func TestRegistry_Discover(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	inactive := testService("svc-1", "booking-service")
	inactive.Status = domain.StatusInactive
	require.NoError(t, registry.Register(ctx, inactive))

	_, err := registry.Discover(ctx, "booking-service")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)

	require.NoError(t, registry.Register(ctx, testService("svc-2", "booking-service")))

	got, err := registry.Discover(ctx, "booking-service")
	require.NoError(t, err)
	assert.Equal(t, "svc-2", got.ID)
}

func TestRegistry_StoreOutage(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	mr.SetError("ERR store unavailable")

	assert.ErrorIs(t, registry.Register(ctx, testService("svc-1", "x")), domain.ErrRegistryUnavailable)
	assert.ErrorIs(t, registry.Deregister(ctx, "svc-1"), domain.ErrRegistryUnavailable)

	_, err := registry.List(ctx)
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)

	_, err = registry.Get(ctx, "svc-1")
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	assert.NotErrorIs(t, err, domain.ErrServiceNotFound, "an outage is not a miss")
}

func TestRegistry_UpdateOnlyExisting(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	assert.ErrorIs(t, registry.Update(ctx, testService("svc-1", "booking-service")), domain.ErrServiceNotFound)
	_, err := registry.Get(ctx, "svc-1")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound, "update never creates a record")

	require.NoError(t, registry.Register(ctx, testService("svc-1", "booking-service")))
	inactive := testService("svc-1", "booking-service")
	inactive.Status = domain.StatusInactive
	require.NoError(t, registry.Update(ctx, inactive))

	got, err := registry.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, got.Status)
}

func TestRegistry_UpdateStoreFailure(t *testing.T) {
	registry, mr := setupRegistry(t)
	mr.SetError("ERR store unavailable")

	assert.ErrorIs(t, registry.Update(context.Background(), testService("svc-1", "x")), domain.ErrRegistryUnavailable)
}
