package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apascualco/careway/internal/domain"
)

// Registrar admits new instances: the record goes to the registry and the
// instance joins its service pool.
type Registrar struct {
	registry *Registry
	balancer *LoadBalancer
	now      func() time.Time
}

func NewRegistrar(registry *Registry, balancer *LoadBalancer) *Registrar {
	return &Registrar{registry: registry, balancer: balancer, now: time.Now}
}

func (r *Registrar) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	id := req.InstanceID(r.now())
	if err := r.registry.Register(ctx, req.ServiceInfo(id)); err != nil {
		return nil, err
	}
	r.balancer.AddInstance(req.Name, domain.NewServiceInstance(id, req.URL, req.Weight))

	slog.InfoContext(ctx, "service registered",
		slog.String("service", req.Name),
		slog.String("instance_id", id),
		slog.String("url", req.URL),
	)

	return &domain.RegisterResponse{
		Success:    true,
		InstanceID: id,
		Service:    req.Name,
	}, nil
}

// Deregister removes the record and drops the instance from its pool. The
// pool is trimmed even when the registry write fails.
func (r *Registrar) Deregister(ctx context.Context, id string) error {
	service, removed := r.balancer.RemoveInstanceByID(id)
	if removed {
		slog.InfoContext(ctx, "instance removed from pool",
			slog.String("service", service),
			slog.String("instance_id", id),
		)
	}
	return r.registry.Deregister(ctx, id)
}
