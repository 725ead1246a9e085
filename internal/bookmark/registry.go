// Package bookmark persists the opaque access bookmarks that keep document
// handles alive across launches, and hands out scoped access guards.
//
// The registry is a small embedded SQLite database (WAL mode for concurrent
// readers). Bookmark blobs are opaque to this core; it stores and returns
// them byte-for-byte. At startup Prune drops entries whose target no longer
// exists or has been moved to a trash area.
package bookmark

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotRegistered reports a lookup for a path with no stored bookmark.
var ErrNotRegistered = errors.New("path not registered")

// trashMarkers are path components that identify a trash/recycle area.
var trashMarkers = []string{".Trash", ".local/share/Trash", "$RECYCLE.BIN"}

// Entry is one persisted bookmark.
type Entry struct {
	Path      string
	Blob      []byte
	CreatedAt time.Time
}

// Registry stores bookmark blobs keyed by absolute file path and tracks
// in-flight access sessions.
type Registry struct {
	db     *sql.DB
	logger *log.Logger

	mu     sync.Mutex
	active map[string]int // refcount of open access sessions per path
}

// Open creates or opens the registry database at dbPath. The caller must
// Close it. A nil logger logs to stderr.
func Open(dbPath string, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[bookmark] ", log.LstdFlags)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping registry database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("configure registry database: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
    path       TEXT PRIMARY KEY,
    blob       BLOB NOT NULL,
    created_at TEXT NOT NULL
)`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}

	return &Registry{
		db:     conn,
		logger: logger,
		active: make(map[string]int),
	}, nil
}

// Close releases the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Put stores or replaces the bookmark blob for path.
func (r *Registry) Put(path string, blob []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO bookmarks (path, blob, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET blob = excluded.blob`,
		abs, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store bookmark for %s: %w", abs, err)
	}
	return nil
}

// Get returns the bookmark blob for path.
func (r *Registry) Get(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	var blob []byte
	err = r.db.QueryRow(`SELECT blob FROM bookmarks WHERE path = ?`, abs).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotRegistered)
	}
	if err != nil {
		return nil, fmt.Errorf("load bookmark for %s: %w", abs, err)
	}
	return blob, nil
}

// Remove deletes the bookmark for path. Removing an unknown path is a no-op.
func (r *Registry) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM bookmarks WHERE path = ?`, abs); err != nil {
		return fmt.Errorf("remove bookmark for %s: %w", abs, err)
	}
	return nil
}

// Entries returns every persisted bookmark.
func (r *Registry) Entries() ([]Entry, error) {
	rows, err := r.db.Query(`SELECT path, blob, created_at FROM bookmarks ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.Path, &e.Blob, &created); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes entries whose target no longer exists or lies in a trash
// area, and returns how many were dropped. Meant to run best-effort at
// startup.
func (r *Registry) Prune() (int, error) {
	entries, err := r.Entries()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, e := range entries {
		stale := inTrash(e.Path)
		if !stale {
			if _, err := os.Stat(e.Path); os.IsNotExist(err) {
				stale = true
			}
		}
		if !stale {
			continue
		}
		if err := r.Remove(e.Path); err != nil {
			return pruned, err
		}
		r.logger.Printf("pruned stale bookmark: %s", e.Path)
		pruned++
	}
	return pruned, nil
}

// StartAccess opens a scoped access session for path, registering it on
// first use, and returns the paired release. The release is safe to call on
// every exit path; it runs exactly once.
func (r *Registry) StartAccess(path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if _, err := r.Get(abs); errors.Is(err, ErrNotRegistered) {
		// Best-effort auto-registration; the blob is opaque and here we
		// only have the path itself to remember.
		if err := r.Put(abs, []byte(abs)); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active[abs]++
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.active[abs] <= 1 {
				delete(r.active, abs)
			} else {
				r.active[abs]--
			}
		})
	}
	return release, nil
}

// ActiveSessions reports how many unreleased access sessions path has.
func (r *Registry) ActiveSessions(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[abs]
}

func inTrash(path string) bool {
	norm := filepath.ToSlash(path)
	for _, marker := range trashMarkers {
		if strings.Contains(norm, "/"+marker+"/") {
			return true
		}
	}
	return false
}
