// Package querylock deduplicates concurrent identical warehouse queries.
//
// Callers key work by a query fingerprint; while an execution for that
// fingerprint is in flight, further callers attach to it instead of issuing
// a duplicate query. All attached callers observe the same result or the
// same error, and the fingerprint is evicted as soon as the execution
// settles, so a failure never poisons subsequent calls.
package querylock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/linuxfoundation/lfx-gateway/internal/metrics"
)

// Fingerprint derives the deduplication key for a query: a hash of the SQL
// text and its bind values. Identical text with different binds produces a
// different fingerprint.
func Fingerprint(sqlText string, binds []interface{}) string {
	h := sha256.New()
	h.Write([]byte(sqlText))
	h.Write([]byte{0})
	if len(binds) > 0 {
		// JSON is deterministic for the scalar bind types the executor
		// accepts; fall back to fmt for anything it cannot encode.
		encoded, err := json.Marshal(binds)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", binds))
		}
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stats is a point-in-time snapshot of the manager's counters.
type Stats struct {
	InFlight int    `json:"in_flight"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// Manager coalesces concurrent executions per fingerprint.
type Manager struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewManager creates a Manager.
func NewManager() *Manager {
	return &Manager{inflight: make(map[string]struct{})}
}

// Do executes fn for the fingerprint, or attaches to an execution already
// in flight. Exactly one fn runs per fingerprint at a time; every caller
// receives the settled value or error of that one run.
func (m *Manager) Do(ctx context.Context, fingerprint string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	executed := false
	v, err, _ := m.group.Do(fingerprint, func() (interface{}, error) {
		executed = true
		m.misses.Add(1)
		metrics.RecordDedupMiss()

		m.trackStart(fingerprint)
		defer m.trackEnd(fingerprint)

		return fn(ctx)
	})

	if !executed {
		m.hits.Add(1)
		metrics.RecordDedupHit()
	}
	return v, err
}

// Stats returns a snapshot of in-flight and cumulative counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	inflight := len(m.inflight)
	m.mu.Unlock()

	return Stats{
		InFlight: inflight,
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
	}
}

func (m *Manager) trackStart(fingerprint string) {
	m.mu.Lock()
	m.inflight[fingerprint] = struct{}{}
	n := len(m.inflight)
	m.mu.Unlock()
	metrics.SetDedupInFlight(n)
}

func (m *Manager) trackEnd(fingerprint string) {
	m.mu.Lock()
	delete(m.inflight, fingerprint)
	n := len(m.inflight)
	m.mu.Unlock()
	metrics.SetDedupInFlight(n)
}
