package proxy

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MultiCaller wraps several same-capability Proxy instances behind one
// Caller, round-robining the starting provider on each call and failing
// over to the next entry in rank order when a call errors (spec §13
// top-N resolution: a count>1 dependency slot resolves to a small set of
// redundant providers instead of a single one).
type MultiCaller struct {
	callers []Caller
	next    int64
}

// NewMultiCaller builds a MultiCaller over callers, which must already be
// ordered by resolver rank (best candidate first).
func NewMultiCaller(callers []Caller) *MultiCaller {
	return &MultiCaller{callers: callers}
}

// Call tries each wrapped Caller in round-robin-then-failover order,
// returning the first successful result. All entries are attempted once
// before the call is considered exhausted.
func (m *MultiCaller) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if len(m.callers) == 0 {
		return nil, newCallError(KindProtocol, fmt.Errorf("multicaller: no providers bound"))
	}

	start := int(atomic.AddInt64(&m.next, 1)-1) % len(m.callers)
	var lastErr error
	for i := 0; i < len(m.callers); i++ {
		c := m.callers[(start+i)%len(m.callers)]
		result, err := c.Call(ctx, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close releases every wrapped Proxy's local session state.
func (m *MultiCaller) Close() {
	for _, c := range m.callers {
		if p, ok := c.(*Proxy); ok {
			p.Close()
		}
	}
}
