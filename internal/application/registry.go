package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apascualco/careway/internal/domain"
)

const DefaultRegistryKey = "services:registry"

// HashStore is the hash-map storage the registry persists into.
type HashStore interface {
	HashSet(ctx context.Context, key, field string, value []byte) error
	HashSetIfExists(ctx context.Context, key, field string, value []byte) (bool, error)
	HashGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDelete(ctx context.Context, key, field string) error
}

type RegistryConfig struct {
	Key string
}

// Registry is the durable id -> ServiceInfo directory. Store failures are
// reported as domain.ErrRegistryUnavailable.
type Registry struct {
	store HashStore
	key   string
}

func NewRegistry(store HashStore, cfg RegistryConfig) *Registry {
	key := cfg.Key
	if key == "" {
		key = DefaultRegistryKey
	}
	return &Registry{store: store, key: key}
}

// Register upserts info under its id, replacing any previous record.
func (r *Registry) Register(ctx context.Context, info *domain.ServiceInfo) error {
	if info == nil || info.ID == "" {
		return fmt.Errorf("%w: service id is required", domain.ErrInvalidRequest)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	if err := r.store.HashSet(ctx, r.key, info.ID, data); err != nil {
		slog.ErrorContext(ctx, "service registration failed",
			slog.String("service_id", info.ID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: register %s: %v", domain.ErrRegistryUnavailable, info.ID, err)
	}
	return nil
}

// Update replaces an existing record. It returns domain.ErrServiceNotFound
// when the id is no longer registered, so a record deleted concurrently is
// never written back.
func (r *Registry) Update(ctx context.Context, info *domain.ServiceInfo) error {
	if info == nil || info.ID == "" {
		return fmt.Errorf("%w: service id is required", domain.ErrInvalidRequest)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	updated, err := r.store.HashSetIfExists(ctx, r.key, info.ID, data)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", domain.ErrRegistryUnavailable, info.ID, err)
	}
	if !updated {
		return domain.ErrServiceNotFound
	}
	return nil
}

// Deregister removes the record. A missing id is not an error.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	if err := r.store.HashDelete(ctx, r.key, id); err != nil {
		slog.ErrorContext(ctx, "service deregistration failed",
			slog.String("service_id", id),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: deregister %s: %v", domain.ErrRegistryUnavailable, id, err)
	}
	return nil
}

func (r *Registry) List(ctx context.Context) ([]*domain.ServiceInfo, error) {
	raw, err := r.store.HashGetAll(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", domain.ErrRegistryUnavailable, err)
	}

	services := make([]*domain.ServiceInfo, 0, len(raw))
	for id, data := range raw {
		var info domain.ServiceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			slog.WarnContext(ctx, "skipping unreadable registry record",
				slog.String("service_id", id),
				slog.Any("error", err),
			)
			continue
		}
		services = append(services, &info)
	}
	return services, nil
}

// Get returns domain.ErrServiceNotFound for an unknown id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.ServiceInfo, error) {
	data, found, err := r.store.HashGet(ctx, r.key, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrRegistryUnavailable, id, err)
	}
	if !found {
		return nil, domain.ErrServiceNotFound
	}

	var info domain.ServiceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: record %s is unreadable: %v", domain.ErrRegistryUnavailable, id, err)
	}
	return &info, nil
}

// Discover returns an active record for the named service.
func (r *Registry) Discover(ctx context.Context, name string) (*domain.ServiceInfo, error) {
	services, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		if s.Name == name && s.IsActive() {
			return s, nil
		}
	}
	return nil, domain.ErrServiceNotFound
}
