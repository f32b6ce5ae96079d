package application

import (
	"fmt"
	"math/rand/v2"

	"github.com/apascualco/careway/internal/domain"
)

const (
	StrategyRoundRobin      = "round-robin"
	StrategyLeastConnection = "least-connection"
	StrategyRandom          = "random"
)

// Strategy picks one instance from a non-empty pool. Implementations are
// called with the balancer lock held and need no locking of their own.
type Strategy interface {
	Name() string
	Select(service string, pool []*domain.ServiceInstance) *domain.ServiceInstance
}

func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyRoundRobin:
		return NewRoundRobinStrategy(), nil
	case StrategyLeastConnection:
		return LeastConnectionStrategy{}, nil
	case StrategyRandom:
		return NewRandomStrategy(nil), nil
	default:
		return nil, fmt.Errorf("unknown load balancer strategy %q", name)
	}
}

type RoundRobinStrategy struct {
	cursors map[string]int
}

func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{cursors: make(map[string]int)}
}

func (r *RoundRobinStrategy) Name() string { return StrategyRoundRobin }

func (r *RoundRobinStrategy) Select(service string, pool []*domain.ServiceInstance) *domain.ServiceInstance {
	if len(pool) == 0 {
		return nil
	}
	idx := r.cursors[service] % len(pool)
	r.cursors[service] = (idx + 1) % len(pool)
	return pool[idx]
}

// LeastConnectionStrategy picks the instance with the fewest in-flight
// requests; ties go to the earliest in the pool.
type LeastConnectionStrategy struct{}

func (LeastConnectionStrategy) Name() string { return StrategyLeastConnection }

func (LeastConnectionStrategy) Select(_ string, pool []*domain.ServiceInstance) *domain.ServiceInstance {
	var best *domain.ServiceInstance
	for _, inst := range pool {
		if best == nil || inst.CurrentConnections() < best.CurrentConnections() {
			best = inst
		}
	}
	return best
}

type RandomStrategy struct {
	intn func(n int) int
}

// NewRandomStrategy uses intn for index selection, or math/rand/v2 when nil.
func NewRandomStrategy(intn func(n int) int) *RandomStrategy {
	if intn == nil {
		intn = rand.IntN
	}
	return &RandomStrategy{intn: intn}
}

func (r *RandomStrategy) Name() string { return StrategyRandom }

func (r *RandomStrategy) Select(_ string, pool []*domain.ServiceInstance) *domain.ServiceInstance {
	if len(pool) == 0 {
		return nil
	}
	return pool[r.intn(len(pool))]
}
