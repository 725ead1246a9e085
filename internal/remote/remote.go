// Package remote deals with documents whose content a cloud-storage
// optimization has offloaded. An evicted document is represented by a
// hidden placeholder sibling (".<name>.icloud") while the sync service
// re-downloads the real file.
//
// Eviction is a storage-tier transition, not a content change; the cache's
// staleness probe relies on that distinction.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// ErrUnavailable reports that remote content could not be materialized
// within the configured bound. The caller may retry manually.
var ErrUnavailable = errors.New("remote content unavailable")

const (
	placeholderPrefix = "."
	placeholderSuffix = ".icloud"
)

// placeholderFor returns the placeholder path for a document path.
func placeholderFor(path string) string {
	return filepath.Join(filepath.Dir(path), placeholderPrefix+filepath.Base(path)+placeholderSuffix)
}

// Evicted reports whether the document content is offloaded: the file itself
// is absent but its placeholder is present.
func Evicted(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}
	_, err := os.Stat(placeholderFor(path))
	return err == nil
}

// Materializer waits, with exponential backoff up to a bound, for evicted
// content to come back. It cannot itself trigger the download; the sync
// service does that out of band.
type Materializer struct {
	// Timeout bounds the total wait. Zero selects 15 seconds.
	Timeout time.Duration
	// InitialInterval seeds the backoff. Zero selects 100ms.
	InitialInterval time.Duration
	// Logger defaults to stderr.
	Logger *log.Logger
}

func (m *Materializer) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.New(os.Stderr, "[remote] ", log.LstdFlags)
}

// Ensure blocks until the file at path is locally present.
//
// Returns nil immediately when the file exists, fs.ErrNotExist (wrapped)
// when neither file nor placeholder exists, and ErrUnavailable (wrapped)
// when the placeholder is still there after the timeout or the context is
// cancelled first.
func (m *Materializer) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if !Evicted(path) {
		return fmt.Errorf("document %s: %w", path, fs.ErrNotExist)
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	interval := m.InitialInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	m.logger().Printf("waiting for %s to materialize (bound %v)", path, timeout)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = interval
	exp.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		return fmt.Errorf("still evicted")
	}, backoff.WithContext(exp, ctx))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		return fmt.Errorf("%w: %s not materialized within %v", ErrUnavailable, path, timeout)
	}
	return nil
}

// FSProbe answers the cache's staleness questions from the filesystem.
type FSProbe struct{}

// ModTime returns the file's current modification time.
func (FSProbe) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Evicted implements the cache probe.
func (FSProbe) Evicted(path string) bool { return Evicted(path) }
