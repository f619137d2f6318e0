package cache_mem

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/davarch/pipeline-lineage/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// Memo memoizes one value per key. Concurrent callers for the same key share
// a single fetch; only successful fetches are stored.
type Memo[V any] struct {
	name  string
	mu    sync.RWMutex
	vals  map[string]V
	group singleflight.Group
}

func NewMemo[V any](name string) *Memo[V] {
	return &Memo[V]{name: name, vals: make(map[string]V)}
}

func (m *Memo[V]) load(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok
}

func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vals)
}

func (m *Memo[V]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	var zero V

	if v, ok := m.load(key); ok {
		metrics.CacheLookups.WithLabelValues(m.name, "hit").Inc()
		return v, nil
	}
	metrics.CacheLookups.WithLabelValues(m.name, "miss").Inc()

	for {
		var own bool
		ch := m.group.DoChan(key, func() (any, error) {
			own = true
			if v, ok := m.load(key); ok {
				return v, nil
			}
			v, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.vals[key] = v
			m.mu.Unlock()
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case r := <-ch:
			if r.Err == nil {
				return r.Val.(V), nil
			}
			// another caller's flight died with that caller's context; ours is live
			if !own && isContextErr(r.Err) && ctx.Err() == nil {
				continue
			}
			return zero, r.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func key(parts ...string) string {
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, "|")
}
