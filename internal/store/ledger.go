// Package store holds the idempotency ledger implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// Ledger records recently submitted signals so that redelivered webhooks
// produce no second order.
//
// Reserve atomically inserts fp if no live reservation exists and returns a
// token identifying the reservation. ok is false for a duplicate.
// Release drops the reservation only if token still owns it.
type Ledger interface {
	Reserve(ctx context.Context, fp domain.Fingerprint, at time.Time) (token string, ok bool, err error)
	Release(ctx context.Context, fp domain.Fingerprint, token string) error
}

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// DefaultCapacity bounds the in-memory ledger.
const DefaultCapacity = 10000

// ledgerEntry is one live reservation.
type ledgerEntry struct {
	key       string
	token     string
	expiresAt time.Time
}

// entryLess orders by expiry, then key, so Min() is the next entry to expire.
func entryLess(a, b ledgerEntry) bool {
	if !a.expiresAt.Equal(b.expiresAt) {
		return a.expiresAt.Before(b.expiresAt)
	}
	return a.key < b.key
}

// MemoryLedger is a bounded, time-windowed, thread-safe in-memory ledger.
// Primary index: key → entry.
// Secondary index: B-tree ordered by expiry for purging and eviction.
type MemoryLedger struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	entries  map[string]ledgerEntry
	byExpiry *btree.BTreeG[ledgerEntry]
	logger   *logrus.Entry
}

// MemoryOption customizes a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithMemoryLogger sets the logger used to report capacity evictions.
// Defaults to the logrus standard logger.
func WithMemoryLogger(logger *logrus.Logger) MemoryOption {
	return func(l *MemoryLedger) { l.logger = logger.WithField("component", "ledger") }
}

// NewMemoryLedger creates an empty ledger whose reservations live for window.
// A non-positive capacity falls back to DefaultCapacity.
func NewMemoryLedger(window time.Duration, capacity int, opts ...MemoryOption) *MemoryLedger {
	const degree = 32
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &MemoryLedger{
		window:   window,
		capacity: capacity,
		entries:  make(map[string]ledgerEntry),
		byExpiry: btree.NewG[ledgerEntry](degree, entryLess),
		logger:   logrus.StandardLogger().WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve inserts fp unless a reservation made within the window exists.
// When the ledger is full the entry closest to expiry is evicted. The evicted
// signal is live, so a redelivery of it is no longer deduplicated; each
// eviction is logged at warn level.
func (l *MemoryLedger) Reserve(_ context.Context, fp domain.Fingerprint, at time.Time) (string, bool, error) {
	key := fp.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[key]; ok {
		if at.Before(existing.expiresAt) {
			return "", false, nil
		}
		l.removeLocked(existing)
	}

	l.purgeLocked(at)
	for len(l.entries) >= l.capacity {
		oldest, ok := l.byExpiry.Min()
		if !ok {
			break
		}
		l.removeLocked(oldest)
		l.logger.WithFields(logrus.Fields{
			"evicted":    oldest.key,
			"expires_at": oldest.expiresAt,
			"capacity":   l.capacity,
		}).Warn("ledger full, evicted live reservation; raise LEDGER_CAPACITY")
	}

	e := ledgerEntry{
		key:       key,
		token:     uuid.NewString(),
		expiresAt: at.Add(l.window),
	}
	l.entries[key] = e
	l.byExpiry.ReplaceOrInsert(e)
	return e.token, true, nil
}

// Release removes the reservation for fp if token owns it. Releasing an
// unknown or superseded reservation is a no-op.
func (l *MemoryLedger) Release(_ context.Context, fp domain.Fingerprint, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[fp.Key()]
	if !ok || e.token != token {
		return nil
	}
	l.removeLocked(e)
	return nil
}

// Purge drops every reservation that expired at or before now and returns
// how many were removed.
func (l *MemoryLedger) Purge(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purgeLocked(now)
}

// Len returns the number of live reservations. Useful for testing.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLedger) purgeLocked(now time.Time) int {
	removed := 0
	for {
		e, ok := l.byExpiry.Min()
		if !ok || e.expiresAt.After(now) {
			return removed
		}
		l.removeLocked(e)
		removed++
	}
}

func (l *MemoryLedger) removeLocked(e ledgerEntry) {
	delete(l.entries, e.key)
	l.byExpiry.Delete(e)
}
