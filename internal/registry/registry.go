// Package registry provides a bounded, concurrency-safe cache of
// embedding model handles keyed by model name.
//
// Each model category (dense, sparse, late-interaction) owns one
// Registry with an independent capacity. Handles are expensive to
// construct and memory-heavy; the registry amortizes construction
// across requests and evicts least-recently-used handles under
// capacity pressure. A handle servicing an in-flight request is never
// closed until its last lease is released.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCapacity indicates a non-positive registry capacity.
	ErrInvalidCapacity = errors.New("registry capacity must be positive")

	// ErrClosed indicates the registry has been shut down.
	ErrClosed = errors.New("registry is closed")
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_registry_hits_total",
		Help: "Model handle cache hits by category.",
	}, []string{"category"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_registry_misses_total",
		Help: "Model handle cache misses by category.",
	}, []string{"category"})

	modelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_registry_loads_total",
		Help: "Model handle constructions by category and outcome.",
	}, []string{"category", "status"})

	handleEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_registry_evictions_total",
		Help: "Model handles evicted under capacity pressure, by category.",
	}, []string{"category"})
)

// Handle is the minimal contract a cached model handle must satisfy.
type Handle interface {
	Close() error
}

// BuildFunc constructs a handle for a model name. Concurrent Acquire
// calls for the same uncached name share a single invocation; failures
// are not cached, so a later Acquire retries construction.
type BuildFunc[H Handle] func(ctx context.Context, name string) (H, error)

// entry is a cached handle plus lease bookkeeping. An entry evicted
// from the LRU while leases are outstanding is marked doomed and
// closed by the final Release.
type entry[H Handle] struct {
	name   string
	handle H
	refs   int
	doomed bool
}

// Registry is a bounded LRU cache of model handles for one category.
// An entry under construction is not yet in the LRU, so capacity
// pressure cannot evict it mid-build.
type Registry[H Handle] struct {
	category string
	build    BuildFunc[H]
	logger   *zap.Logger

	mu     sync.Mutex
	lru    *simplelru.LRU[string, *entry[H]]
	reap   []*entry[H]
	closed bool

	group singleflight.Group
}

// New creates a registry for one model category with the given capacity.
func New[H Handle](category string, capacity int, build BuildFunc[H], logger *zap.Logger) (*Registry[H], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if build == nil {
		return nil, errors.New("build function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry[H]{
		category: category,
		build:    build,
		logger:   logger,
	}

	lru, err := simplelru.NewLRU[string, *entry[H]](capacity, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	r.lru = lru
	return r, nil
}

// onEvict runs under r.mu from LRU mutation. Entries with live leases
// are only doomed here; the final Release closes them.
func (r *Registry[H]) onEvict(_ string, e *entry[H]) {
	e.doomed = true
	handleEvictions.WithLabelValues(r.category).Inc()
	if e.refs == 0 {
		r.reap = append(r.reap, e)
	}
}

// Acquire returns a lease on the handle for name, constructing it on
// first use. The caller must Release the lease when done with the
// handle for this request.
func (r *Registry[H]) Acquire(ctx context.Context, name string) (*Lease[H], error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if e, ok := r.lru.Get(name); ok && !e.doomed {
			e.refs++
			r.mu.Unlock()
			cacheHits.WithLabelValues(r.category).Inc()
			return &Lease[H]{registry: r, entry: e}, nil
		}
		r.mu.Unlock()

		cacheMisses.WithLabelValues(r.category).Inc()
		v, err, _ := r.group.Do(name, func() (interface{}, error) {
			// Another flight may have populated the cache between our
			// miss and this call.
			r.mu.Lock()
			if e, ok := r.lru.Get(name); ok && !e.doomed {
				r.mu.Unlock()
				return e, nil
			}
			r.mu.Unlock()

			r.logger.Info("loading model",
				zap.String("category", r.category),
				zap.String("model", name))

			h, err := r.build(ctx, name)
			if err != nil {
				modelLoads.WithLabelValues(r.category, "error").Inc()
				return nil, err
			}
			modelLoads.WithLabelValues(r.category, "ok").Inc()

			e := &entry[H]{name: name, handle: h}
			r.mu.Lock()
			if r.closed {
				r.mu.Unlock()
				_ = h.Close()
				return nil, ErrClosed
			}
			r.lru.Add(name, e)
			reaped := r.takeReaped()
			r.mu.Unlock()
			r.closeAll(reaped)
			return e, nil
		})
		if err != nil {
			return nil, err
		}

		e := v.(*entry[H])
		r.mu.Lock()
		if e.doomed {
			// Evicted between construction and lease acquisition.
			r.mu.Unlock()
			continue
		}
		e.refs++
		r.mu.Unlock()
		return &Lease[H]{registry: r, entry: e}, nil
	}
}

// Warm eagerly constructs handles for the given model names. The first
// failure aborts and is returned.
func (r *Registry[H]) Warm(ctx context.Context, names ...string) error {
	for _, name := range names {
		lease, err := r.Acquire(ctx, name)
		if err != nil {
			return fmt.Errorf("warming %s model %q: %w", r.category, name, err)
		}
		lease.Release()
	}
	return nil
}

// Len returns the number of cached entries.
func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Close shuts down the registry. Idle handles are closed immediately;
// handles with outstanding leases are closed when released. Subsequent
// Acquire calls fail with ErrClosed.
func (r *Registry[H]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.lru.Purge()
	reaped := r.takeReaped()
	r.mu.Unlock()

	var errs []error
	for _, e := range reaped {
		if err := e.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s model %q: %w", r.category, e.name, err))
		}
	}
	return errors.Join(errs...)
}

// takeReaped must be called with r.mu held.
func (r *Registry[H]) takeReaped() []*entry[H] {
	reaped := r.reap
	r.reap = nil
	return reaped
}

func (r *Registry[H]) closeAll(entries []*entry[H]) {
	for _, e := range entries {
		if err := e.handle.Close(); err != nil {
			r.logger.Warn("closing evicted model",
				zap.String("category", r.category),
				zap.String("model", e.name),
				zap.Error(err))
		}
	}
}

// Lease is a refcounted reference to a cached handle. The handle stays
// open at least until Release is called.
type Lease[H Handle] struct {
	registry *Registry[H]
	entry    *entry[H]
	released bool
}

// Handle returns the leased model handle.
func (l *Lease[H]) Handle() H {
	return l.entry.handle
}

// Release returns the lease. If the entry was evicted while this lease
// was outstanding and this is the last lease, the handle is closed.
// Release is idempotent.
func (l *Lease[H]) Release() {
	if l.released {
		return
	}
	l.released = true

	r := l.registry
	r.mu.Lock()
	l.entry.refs--
	doomed := l.entry.doomed && l.entry.refs == 0
	r.mu.Unlock()

	if doomed {
		if err := l.entry.handle.Close(); err != nil {
			r.logger.Warn("closing evicted model",
				zap.String("category", r.category),
				zap.String("model", l.entry.name),
				zap.Error(err))
		}
	}
}
