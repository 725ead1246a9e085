// Package cache is the in-memory, time-bounded store of opened documents,
// keyed by file path. It is the sole owner of cached state: callers get and
// give deep copies, never aliases.
//
// Documents live in an expirable LRU with a short TTL; an expired entry is
// pruned the moment a get finds it. The on-disk modification timestamp
// recorded at the last successful read outlives the document TTL so
// staleness probes stay cheap, and is dropped only on invalidate.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
)

// DefaultTTL bounds how long a cached document is served without re-reading
// the file.
const DefaultTTL = 30 * time.Second

// defaultMaxEntries bounds the LRU; a device rarely has this many lists
// open.
const defaultMaxEntries = 256

// DiskProbe answers the two questions the staleness check needs. The
// production implementation is remote.FSProbe.
type DiskProbe interface {
	ModTime(path string) (time.Time, error)
	Evicted(path string) bool
}

// Tracker caches documents and tracks on-disk modification timestamps.
// It is safe for concurrent use across paths; callers serialize operations
// on the same path at the engine layer.
type Tracker struct {
	docs *expirable.LRU[string, *document.ListDocument]

	mu       sync.Mutex
	modTimes map[string]time.Time
}

// NewTracker creates a tracker. A ttl <= 0 selects DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		docs:     expirable.NewLRU[string, *document.ListDocument](defaultMaxEntries, nil, ttl),
		modTimes: make(map[string]time.Time),
	}
}

// Get returns a copy of the cached document for path. A miss, or an entry
// past its TTL (which the lookup prunes), returns false and the caller must
// re-read from disk.
func (t *Tracker) Get(path string) (*document.ListDocument, bool) {
	doc, ok := t.docs.Get(path)
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Put inserts or refreshes the cached document for path, restarting its TTL.
// The tracker stores its own copy.
func (t *Tracker) Put(path string, doc *document.ListDocument) {
	t.docs.Add(path, doc.Clone())
}

// RecordModTime notes the on-disk modification timestamp observed at a
// successful read or write of path.
func (t *Tracker) RecordModTime(path string, mod time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modTimes[path] = mod
}

// ModTime returns the last recorded on-disk modification timestamp.
func (t *Tracker) ModTime(path string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mod, ok := t.modTimes[path]
	return mod, ok
}

// Invalidate drops all state for path. Used when a file is closed.
func (t *Tracker) Invalidate(path string) {
	t.docs.Remove(path)
	t.mu.Lock()
	delete(t.modTimes, path)
	t.mu.Unlock()
}

// HasExternalChange reports whether the file changed on disk since the last
// recorded read, i.e. its modification timestamp is strictly newer. An
// evicted file is never reported as changed: offloading content is a
// storage-tier transition, not an edit. With no recorded timestamp the file
// counts as changed, since the caller has nothing current to show.
func (t *Tracker) HasExternalChange(path string, probe DiskProbe) (bool, error) {
	if probe.Evicted(path) {
		return false, nil
	}
	last, ok := t.ModTime(path)
	if !ok {
		return true, nil
	}
	mod, err := probe.ModTime(path)
	if err != nil {
		return false, err
	}
	return mod.After(last), nil
}
