// Package engine is the single entry point for reading and writing list
// documents. It guarantees a caller always sees one coherent, merged,
// persisted state of a file, and that a save is never lost to a stale-read
// race.
//
// Every public operation serializes against other operations on the same
// file path; operations on different paths run in parallel. Access to the
// file is acquired through the bookmark registry as a scoped guard that is
// released on every exit path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/QuiteYellow/Listie.md-sub001/internal/cache"
	"github.com/QuiteYellow/Listie.md-sub001/internal/codec"
	"github.com/QuiteYellow/Listie.md-sub001/internal/conflict"
	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
	"github.com/QuiteYellow/Listie.md-sub001/internal/fsio"
	"github.com/QuiteYellow/Listie.md-sub001/internal/merge"
	"github.com/QuiteYellow/Listie.md-sub001/internal/remote"
)

// AccessRegistry supplies scoped access to a file reference. Implemented by
// the bookmark registry; tests substitute their own.
type AccessRegistry interface {
	StartAccess(path string) (release func(), err error)
}

// noopAccess satisfies AccessRegistry when no registry is configured.
type noopAccess struct{}

func (noopAccess) StartAccess(string) (func(), error) { return func() {}, nil }

// Options configures an Engine. Zero values select the documented defaults.
type Options struct {
	// CacheTTL bounds how long an opened document is served from memory.
	CacheTTL time.Duration
	// Tolerance is the timestamp jitter window treated as "equal" by the
	// merge. Defaults to merge.DefaultTolerance.
	Tolerance time.Duration
	// MaterializeTimeout bounds the wait for evicted content.
	MaterializeTimeout time.Duration
	// Access supplies scoped file access. Nil disables scoping.
	Access AccessRegistry
	// Versions overrides conflict-version discovery. Nil selects the
	// directory convention.
	Versions conflict.Versions
	// Probe answers staleness questions. Nil selects the filesystem.
	Probe cache.DiskProbe
	// Logger defaults to stderr.
	Logger *log.Logger
}

// SaveResult reports what a Save actually did.
type SaveResult struct {
	// Document is the state that ended up on disk. When RaceResolved is
	// set it differs from the document passed in: it carries the merge of
	// the caller's edits with the newer disk state.
	Document *document.ListDocument
	// RaceResolved is informational, not a failure: the save detected
	// that disk had moved since the last read and merged before writing.
	RaceResolved bool
}

// Engine orchestrates the resolver, cache, codec and registry.
type Engine struct {
	cache    *cache.Tracker
	resolver *conflict.Resolver
	remote   *remote.Materializer
	access   AccessRegistry
	probe    cache.DiskProbe
	locks    *keyedMutex
	tol      time.Duration
	logger   *log.Logger
}

// New constructs an Engine from options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = merge.DefaultTolerance
	}
	access := opts.Access
	if access == nil {
		access = noopAccess{}
	}
	var probe cache.DiskProbe = remote.FSProbe{}
	if opts.Probe != nil {
		probe = opts.Probe
	}
	return &Engine{
		cache:    cache.NewTracker(opts.CacheTTL),
		resolver: conflict.New(opts.Versions, tol, logger),
		remote:   &remote.Materializer{Timeout: opts.MaterializeTimeout, Logger: logger},
		access:   access,
		probe:    probe,
		locks:    newKeyedMutex(),
		tol:      tol,
		logger:   logger,
	}
}

// Open returns the current, merged, persisted state of the document at
// path. Unless forceReload is set, a fresh cache entry is returned without
// touching the disk. A failed Open never hands back stale or empty data;
// the error tells the caller exactly why the load failed.
func (e *Engine) Open(ctx context.Context, path string, forceReload bool) (*document.ListDocument, error) {
	unlock := e.locks.lock(path)
	defer unlock()
	return e.open(ctx, path, forceReload)
}

// open is the lock-held implementation shared by Open, sync and save.
func (e *Engine) open(ctx context.Context, path string, forceReload bool) (*document.ListDocument, error) {
	if !forceReload {
		if doc, ok := e.cache.Get(path); ok {
			return doc, nil
		}
	}

	release, err := e.access.StartAccess(path)
	if err != nil {
		return nil, fmt.Errorf("acquire access to %s: %w", path, err)
	}
	defer release()

	if err := e.remote.Ensure(ctx, path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, err
	}

	outcome, err := e.resolver.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("resolve conflicts for %s: %w", path, err)
	}
	if outcome.Degraded {
		e.logger.Printf("WARNING: degraded conflict resolution for %s (skipped=%d)", path, outcome.Skipped)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, notices, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, n := range notices {
		e.logger.Printf("%s: %s", path, n)
	}

	// A cancelled open must leave the cache untouched.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	e.cache.Put(path, doc)
	e.cache.RecordModTime(path, info.ModTime())
	return doc, nil
}

// Save persists doc to path. Unless bypassOptimisticCheck is set, a write
// against a file that changed since the last read is not applied naively:
// the engine reconciles through Sync first and writes the merged state.
// That path runs Save at most twice.
func (e *Engine) Save(ctx context.Context, doc *document.ListDocument, path string, bypassOptimisticCheck bool) (SaveResult, error) {
	unlock := e.locks.lock(path)
	defer unlock()
	return e.save(ctx, doc, path, bypassOptimisticCheck)
}

func (e *Engine) save(ctx context.Context, doc *document.ListDocument, path string, bypass bool) (SaveResult, error) {
	if err := e.checkWritable(path); err != nil {
		return SaveResult{}, err
	}

	if !bypass {
		if last, ok := e.cache.ModTime(path); ok && !e.probe.Evicted(path) {
			if cur, err := e.probe.ModTime(path); err == nil && cur.After(last) {
				// Disk moved since this document was read. Park the
				// caller's edits in the cache so they become the local
				// side of the reconcile, then write the merged state.
				e.logger.Printf("save race on %s: disk advanced, merging before write", path)
				e.cache.Put(path, doc)
				merged, err := e.sync(ctx, path)
				if err != nil {
					return SaveResult{}, err
				}
				return SaveResult{Document: merged, RaceResolved: true}, nil
			}
		}
	}

	release, err := e.access.StartAccess(path)
	if err != nil {
		return SaveResult{}, fmt.Errorf("acquire access to %s: %w", path, err)
	}
	defer release()

	outcome, err := e.resolver.Resolve(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SaveResult{}, fmt.Errorf("resolve conflicts for %s: %w", path, err)
	}
	if outcome.Degraded {
		e.logger.Printf("WARNING: degraded conflict resolution for %s before save", path)
	}

	data, err := codec.Encode(doc)
	if err != nil {
		return SaveResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return SaveResult{}, fmt.Errorf("create document directory: %w", err)
	}
	if err := fsio.WriteFileAtomic(path, data, 0644); err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return SaveResult{}, fmt.Errorf("stat %s after save: %w", path, err)
	}
	e.cache.Put(path, doc)
	e.cache.RecordModTime(path, info.ModTime())
	return SaveResult{Document: doc}, nil
}

// Sync is the explicit three-way reconciliation point: the cached document
// (with any unsaved edits) merges against a fresh, conflict-resolved read
// of the disk, the result is written back and returned. With nothing
// cached, Sync is a pure reload.
func (e *Engine) Sync(ctx context.Context, path string) (*document.ListDocument, error) {
	unlock := e.locks.lock(path)
	defer unlock()
	return e.sync(ctx, path)
}

func (e *Engine) sync(ctx context.Context, path string) (*document.ListDocument, error) {
	cached, hadCache := e.cache.Get(path)

	disk, err := e.open(ctx, path, true)
	if err != nil {
		return nil, err
	}
	if !hadCache {
		return disk, nil
	}

	merged := merge.Documents(cached, disk, e.tol)
	if _, err := e.save(ctx, merged, path, true); err != nil {
		return nil, err
	}
	return merged, nil
}

// Close drops all cached state for path, used when a file is closed.
func (e *Engine) Close(path string) {
	unlock := e.locks.lock(path)
	defer unlock()
	e.cache.Invalidate(path)
}

// Peek returns the cached document without any I/O.
func (e *Engine) Peek(path string) (*document.ListDocument, bool) {
	return e.cache.Get(path)
}

// HasFileChanged is a cheap staleness probe: true only when the on-disk
// modification timestamp is strictly newer than the one recorded at the
// last read. Evicted content never counts as changed.
func (e *Engine) HasFileChanged(path string) (bool, error) {
	return e.cache.HasExternalChange(path, e.probe)
}

// IsWritable reports whether a save to path would be permitted.
func (e *Engine) IsWritable(path string) bool {
	return e.checkWritable(path) == nil
}

// checkWritable verifies write permission proactively, before any write is
// attempted. For files the process owns, the owner-write bit is checked as
// well as access(2) because a privileged process passes the syscall check
// even on read-only files. Files owned by others rely on access(2) alone:
// the owner bit says nothing about group or other write permission there.
func (e *Engine) checkWritable(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) == os.Getuid() {
			if info.Mode().Perm()&0200 == 0 {
				return fmt.Errorf("%s is read-only: %w", path, ErrPermissionDenied)
			}
		}
		if err := unix.Access(path, unix.W_OK); err != nil {
			return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
		}
		return nil
	case os.IsNotExist(err):
		// New file: the directory must accept the create.
		if err := unix.Access(filepath.Dir(path), unix.W_OK); err != nil {
			return fmt.Errorf("%s: %w", filepath.Dir(path), ErrPermissionDenied)
		}
		return nil
	default:
		return fmt.Errorf("stat %s: %w", path, err)
	}
}
