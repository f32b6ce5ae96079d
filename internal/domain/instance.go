package domain

import (
	"net/url"
	"sync/atomic"
	"time"
)

// ServiceInstance is one routable backend process in a balancer pool.
// Connection count and last-used stamp are updated concurrently by the
// balancer and read by anything holding the pointer.
type ServiceInstance struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Weight int    `json:"weight"`

	connections atomic.Int64
	lastUsed    atomic.Int64
}

func NewServiceInstance(id, rawURL string, weight int) *ServiceInstance {
	if weight <= 0 {
		weight = 1
	}
	return &ServiceInstance{ID: id, URL: rawURL, Weight: weight}
}

func (i *ServiceInstance) CurrentConnections() int64 {
	return i.connections.Load()
}

func (i *ServiceInstance) LastUsed() time.Time {
	n := i.lastUsed.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Acquire increments the in-flight count and stamps last use.
func (i *ServiceInstance) Acquire(now time.Time) {
	i.connections.Add(1)
	i.lastUsed.Store(now.UnixNano())
}

// Release decrements the in-flight count, floored at zero.
func (i *ServiceInstance) Release() {
	for {
		cur := i.connections.Load()
		if cur <= 0 {
			return
		}
		if i.connections.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Host returns host[:port] of the instance URL, or "" when it does not parse.
func (i *ServiceInstance) Host() string {
	u, err := url.Parse(i.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

type InstanceSnapshot struct {
	ID                 string    `json:"id"`
	URL                string    `json:"url"`
	Weight             int       `json:"weight"`
	CurrentConnections int64     `json:"currentConnections"`
	LastUsed           time.Time `json:"lastUsed,omitzero"`
}

func (i *ServiceInstance) Snapshot() InstanceSnapshot {
	return InstanceSnapshot{
		ID:                 i.ID,
		URL:                i.URL,
		Weight:             i.Weight,
		CurrentConnections: i.CurrentConnections(),
		LastUsed:           i.LastUsed(),
	}
}
