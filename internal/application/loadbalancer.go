package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/apascualco/careway/internal/domain"
)

const instanceHealthPath = "/health"

type Deregisterer interface {
	Deregister(ctx context.Context, id string) error
}

// PoolObserver receives pool size changes and evictions.
type PoolObserver interface {
	PoolSize(service string, size int)
	Evicted(service string)
}

type noopObserver struct{}

func (noopObserver) PoolSize(string, int) {}
func (noopObserver) Evicted(string)       {}

type LoadBalancerConfig struct {
	Strategy           Strategy
	HealthCheckEnabled bool
	Interval           time.Duration
	UnhealthyThreshold int
	Observer           PoolObserver
}

// LoadBalancer owns the per-service instance pools. Selection, connection
// accounting and eviction are serialized by mu.
type LoadBalancer struct {
	mu       sync.Mutex
	pools    map[string][]*domain.ServiceInstance
	failures map[string]int

	strategy  Strategy
	registry  Deregisterer
	checker   HealthChecker
	observer  PoolObserver
	interval  time.Duration
	threshold int
	enabled   bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLoadBalancer(registry Deregisterer, checker HealthChecker, cfg LoadBalancerConfig) *LoadBalancer {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = NewRoundRobinStrategy()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	threshold := cfg.UnhealthyThreshold
	if threshold <= 0 {
		threshold = 1
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &LoadBalancer{
		pools:     make(map[string][]*domain.ServiceInstance),
		failures:  make(map[string]int),
		strategy:  strategy,
		registry:  registry,
		checker:   checker,
		observer:  observer,
		interval:  interval,
		threshold: threshold,
		enabled:   cfg.HealthCheckEnabled,
	}
}

func (lb *LoadBalancer) Strategy() string {
	return lb.strategy.Name()
}

// AddInstance appends inst to the service pool. Ids are not deduplicated.
func (lb *LoadBalancer) AddInstance(service string, inst *domain.ServiceInstance) {
	lb.mu.Lock()
	lb.pools[service] = append(lb.pools[service], inst)
	size := len(lb.pools[service])
	lb.mu.Unlock()

	lb.observer.PoolSize(service, size)
	slog.Info("instance added to pool",
		slog.String("service", service),
		slog.String("instance_id", inst.ID),
		slog.String("url", inst.URL),
		slog.Int("pool_size", size),
	)
}

// GetInstance selects an instance and counts one in-flight request on it.
// Every successful call must be paired with ReleaseInstance.
func (lb *LoadBalancer) GetInstance(service string) (*domain.ServiceInstance, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	pool := lb.pools[service]
	if len(pool) == 0 {
		return nil, domain.NewUnavailableError(service)
	}

	inst := lb.strategy.Select(service, pool)
	if inst == nil {
		return nil, domain.NewUnavailableError(service)
	}
	inst.Acquire(time.Now())
	return inst, nil
}

func (lb *LoadBalancer) ReleaseInstance(inst *domain.ServiceInstance) {
	if inst == nil {
		return
	}
	inst.Release()
}

// RemoveInstance splices the instance out of the service pool.
func (lb *LoadBalancer) RemoveInstance(service, id string) bool {
	lb.mu.Lock()
	removed, size := lb.removeLocked(service, id)
	lb.mu.Unlock()

	if removed {
		lb.observer.PoolSize(service, size)
	}
	return removed
}

// RemoveInstanceByID removes the instance from whichever pool holds it and
// returns that pool's service name.
func (lb *LoadBalancer) RemoveInstanceByID(id string) (string, bool) {
	lb.mu.Lock()
	var (
		service string
		size    int
		removed bool
	)
	for name := range lb.pools {
		if removed, size = lb.removeLocked(name, id); removed {
			service = name
			break
		}
	}
	lb.mu.Unlock()

	if removed {
		lb.observer.PoolSize(service, size)
	}
	return service, removed
}

func (lb *LoadBalancer) removeLocked(service, id string) (bool, int) {
	pool := lb.pools[service]
	for i, inst := range pool {
		if inst.ID == id {
			next := make([]*domain.ServiceInstance, 0, len(pool)-1)
			next = append(next, pool[:i]...)
			next = append(next, pool[i+1:]...)
			if len(next) == 0 {
				delete(lb.pools, service)
			} else {
				lb.pools[service] = next
			}
			delete(lb.failures, id)
			return true, len(next)
		}
	}
	return false, len(pool)
}

func (lb *LoadBalancer) pooledLocked(service, id string) bool {
	for _, inst := range lb.pools[service] {
		if inst.ID == id {
			return true
		}
	}
	return false
}

// Instances returns a copy of the service pool.
func (lb *LoadBalancer) Instances(service string) []*domain.ServiceInstance {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	pool := lb.pools[service]
	out := make([]*domain.ServiceInstance, len(pool))
	copy(out, pool)
	return out
}

// Snapshot returns a read-only view of every pool.
func (lb *LoadBalancer) Snapshot() map[string][]domain.InstanceSnapshot {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	out := make(map[string][]domain.InstanceSnapshot, len(lb.pools))
	for service, pool := range lb.pools {
		views := make([]domain.InstanceSnapshot, 0, len(pool))
		for _, inst := range pool {
			views = append(views, inst.Snapshot())
		}
		out[service] = views
	}
	return out
}

// Start runs the eviction loop when health checks are enabled.
func (lb *LoadBalancer) Start(ctx context.Context) {
	if !lb.enabled {
		slog.Debug("load balancer health checks disabled")
		return
	}

	lb.loopMu.Lock()
	defer lb.loopMu.Unlock()
	if lb.cancel != nil {
		return
	}

	ctx, lb.cancel = context.WithCancel(ctx)
	lb.wg.Add(1)
	go func() {
		defer lb.wg.Done()

		ticker := time.NewTicker(lb.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				lb.CheckInstances(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (lb *LoadBalancer) Stop() {
	lb.loopMu.Lock()
	cancel := lb.cancel
	lb.cancel = nil
	lb.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	lb.wg.Wait()
}

type poolMember struct {
	service string
	inst    *domain.ServiceInstance
}

// CheckInstances probes every pooled instance once and evicts those that
// reached the failure threshold.
func (lb *LoadBalancer) CheckInstances(ctx context.Context) {
	lb.mu.Lock()
	var members []poolMember
	for service, pool := range lb.pools {
		for _, inst := range pool {
			members = append(members, poolMember{service: service, inst: inst})
		}
	}
	lb.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m poolMember) {
			defer wg.Done()
			healthy := lb.checker.Check(ctx, strings.TrimSuffix(m.inst.URL, "/")+instanceHealthPath)
			if ctx.Err() != nil {
				return
			}
			lb.recordHealth(ctx, m, healthy)
		}(m)
	}
	wg.Wait()
}

func (lb *LoadBalancer) recordHealth(ctx context.Context, m poolMember, healthy bool) {
	lb.mu.Lock()
	if healthy {
		delete(lb.failures, m.inst.ID)
		lb.mu.Unlock()
		return
	}

	if !lb.pooledLocked(m.service, m.inst.ID) {
		delete(lb.failures, m.inst.ID)
		lb.mu.Unlock()
		return
	}

	lb.failures[m.inst.ID]++
	failures := lb.failures[m.inst.ID]
	if failures < lb.threshold {
		lb.mu.Unlock()
		slog.WarnContext(ctx, "instance health check failed",
			slog.String("service", m.service),
			slog.String("instance_id", m.inst.ID),
			slog.Int("failures", failures),
		)
		return
	}

	removed, size := lb.removeLocked(m.service, m.inst.ID)
	lb.mu.Unlock()
	if !removed {
		return
	}

	lb.observer.PoolSize(m.service, size)
	lb.observer.Evicted(m.service)
	slog.WarnContext(ctx, "evicting unhealthy instance",
		slog.String("service", m.service),
		slog.String("instance_id", m.inst.ID),
		slog.String("url", m.inst.URL),
		slog.Int("pool_size", size),
	)

	if err := lb.registry.Deregister(ctx, m.inst.ID); err != nil {
		slog.ErrorContext(ctx, "failed to deregister evicted instance",
			slog.String("instance_id", m.inst.ID),
			slog.Any("error", err),
		)
	}
}
