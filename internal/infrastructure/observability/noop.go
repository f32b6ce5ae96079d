package observability

import "time"

type Noop struct{}

func (Noop) ObserveUpstream(string, int, time.Duration) {}
func (Noop) CacheLookup(bool)                           {}
func (Noop) RateLimited(string)                         {}
func (Noop) PoolSize(string, int)                       {}
func (Noop) Evicted(string)                             {}
