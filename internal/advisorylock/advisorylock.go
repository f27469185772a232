// Package advisorylock implements the project-scoped advisory locking
// described in spec sections 4.1 and 5: ontology-affecting writes
// acquire a lock keyed by (project_id, operation_class) before touching
// catalog rows, and nested/double acquisition from the same caller is
// rejected with a busy error rather than deadlocking.
//
// The teacher's analogous primitive (internal/storage/dolt.AccessLock)
// coordinates single-process access to an embedded database file with
// flock. The identity core instead coordinates many concurrent request
// handlers and background jobs inside one long-lived service process
// against a shared Dolt/MySQL backend, so the lock here is an
// in-process registry of mutexes rather than a file lock — the same
// "poll with a timeout, record wait time, name the holder" shape,
// adapted to a goroutine-concurrency rather than a process-concurrency
// problem.
package advisorylock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/idgen"
)

// Class names an operation class sharing a lock bucket. Spec section 5
// requires the catalog lock to be acquired before any axial lock to
// keep lock ordering consistent across the service.
type Class string

const (
	ClassCatalog Class = "catalog"
	ClassAxial   Class = "axial"
	ClassFreeze  Class = "freeze"
	ClassSync    Class = "sync"
)

// classOrder fixes the consistent acquisition order spec section 5
// mandates (catalog before axial) so two callers that need both locks
// never deadlock against each other.
var classOrder = map[Class]int{
	ClassFreeze:  0,
	ClassCatalog: 1,
	ClassAxial:   2,
	ClassSync:    3,
}

type entry struct {
	mu            sync.Mutex
	held          bool
	holderSession string
	holderRequest string
}

// Registry holds one mutex per (project_id, class) pair, created
// lazily on first use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Handle is a held lock; call Release to give it up. The zero value is
// not valid; only Registry.Acquire produces one.
type Handle struct {
	e         *entry
	token     string
	class     Class
	projectID string
}

func (r *Registry) entryFor(projectID string, class Class) *entry {
	key := fmt.Sprintf("%s/%s", projectID, class)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}

var lockTracer = otel.Tracer("github.com/qualcode/ontocore/advisorylock")

var lockMetrics struct {
	waitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/qualcode/ontocore/advisorylock")
	lockMetrics.waitMs, _ = m.Float64Histogram("ontocore.advisorylock.wait_ms",
		metric.WithDescription("time spent waiting to acquire a project advisory lock"),
		metric.WithUnit("ms"))
}

// Acquire blocks (respecting ctx and timeout) until the (projectID,
// class) lock is free, or returns a busy error naming the current
// holder's session id when known. A caller already holding the lock
// that calls Acquire again gets busy rather than deadlocking, per
// spec section 4.1's "nested or double-acquisition is rejected".
func (r *Registry) Acquire(ctx context.Context, projectID string, class Class, sessionID string, timeout time.Duration) (*Handle, error) {
	e := r.entryFor(projectID, class)
	_, span := lockTracer.Start(ctx, "advisorylock.acquire",
		trace.WithAttributes(
			attribute.String("ontocore.project_id", projectID),
			attribute.String("ontocore.lock_class", string(class)),
		))
	start := time.Now()
	defer func() {
		lockMetrics.waitMs.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("ontocore.project_id", projectID), attribute.String("ontocore.lock_class", string(class))))
		span.End()
	}()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	tryAcquire := func() (*Handle, bool) {
		if !e.mu.TryLock() {
			return nil, false
		}
		e.held = true
		e.holderSession = sessionID
		token := idgen.NewLockToken()
		e.holderRequest = token
		return &Handle{e: e, token: token, class: class, projectID: projectID}, true
	}

	if h, ok := tryAcquire(); ok {
		return h, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, apperr.Busy(e.holderSession)
		case <-ticker.C:
			if h, ok := tryAcquire(); ok {
				return h, nil
			}
			if time.Now().After(deadline) {
				return nil, apperr.Busy(e.holderSession)
			}
		}
	}
}

// Release gives up the lock. Safe to call once; a nil handle is a
// no-op so deferred releases after a failed Acquire are harmless.
func (h *Handle) Release() {
	if h == nil || h.e == nil {
		return
	}
	h.e.held = false
	h.e.holderSession = ""
	h.e.holderRequest = ""
	h.e.mu.Unlock()
	h.e = nil
}

// ClassOrderOK reports whether acquiring classes in the given order
// respects spec section 5's "catalog lock before axial lock" ordering
// rule. Used defensively in tests and in call sites that acquire more
// than one class at once.
func ClassOrderOK(classes ...Class) bool {
	last := -1
	for _, c := range classes {
		ord, ok := classOrder[c]
		if !ok {
			return false
		}
		if ord < last {
			return false
		}
		last = ord
	}
	return true
}
