package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/careway/internal/domain"
)

const DefaultCheckInterval = 30 * time.Second

type ServiceDirectory interface {
	List(ctx context.Context) ([]*domain.ServiceInfo, error)
	Update(ctx context.Context, info *domain.ServiceInfo) error
}

type DiscoveryConfig struct {
	Interval time.Duration
}

// Discovery polls every registry record's health endpoint and flips its
// status between active and inactive. It never touches balancer pools.
type Discovery struct {
	registry ServiceDirectory
	checker  HealthChecker
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDiscovery(registry ServiceDirectory, checker HealthChecker, cfg DiscoveryConfig) *Discovery {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Discovery{
		registry: registry,
		checker:  checker,
		interval: interval,
	}
}

// Start runs the polling loop until Stop is called or ctx is done.
// Calling Start on a running loop is a no-op.
func (d *Discovery) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop(ctx)
	}()
}

func (d *Discovery) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Discovery) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs one round of health checks over the registry.
func (d *Discovery) CheckAll(ctx context.Context) {
	services, err := d.registry.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "discovery could not list services", slog.Any("error", err))
		return
	}

	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(s *domain.ServiceInfo) {
			defer wg.Done()
			d.check(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (d *Discovery) check(ctx context.Context, s *domain.ServiceInfo) {
	healthy := d.checker.Check(ctx, s.HealthURL())

	next := s.Status
	switch {
	case !healthy && s.Status != domain.StatusInactive:
		next = domain.StatusInactive
	case healthy && s.Status != domain.StatusActive:
		next = domain.StatusActive
	}
	if next == s.Status {
		return
	}

	if ctx.Err() != nil {
		return
	}

	updated := *s
	updated.Status = next
	if err := d.registry.Update(ctx, &updated); err != nil {
		if errors.Is(err, domain.ErrServiceNotFound) {
			slog.DebugContext(ctx, "service deregistered during health check",
				slog.String("service_id", s.ID),
			)
			return
		}
		slog.ErrorContext(ctx, "discovery could not update service status",
			slog.String("service_id", s.ID),
			slog.String("service", s.Name),
			slog.String("status", string(next)),
			slog.Any("error", err),
		)
		return
	}

	slog.InfoContext(ctx, "service status changed",
		slog.String("service_id", s.ID),
		slog.String("service", s.Name),
		slog.String("from", string(s.Status)),
		slog.String("to", string(next)),
	)
}
