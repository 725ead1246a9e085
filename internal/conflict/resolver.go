// Package conflict collapses the multiple on-disk versions a file-sync
// service can leave behind into exactly one coherent document.
package conflict

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/QuiteYellow/Listie.md-sub001/internal/codec"
	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
	"github.com/QuiteYellow/Listie.md-sub001/internal/fsio"
	"github.com/QuiteYellow/Listie.md-sub001/internal/merge"
)

// Outcome summarizes one resolve pass.
type Outcome struct {
	// Conflicts is how many conflict versions were found.
	Conflicts int
	// Merged is how many of them decoded and were folded into the result.
	Merged int
	// Skipped is how many were dropped because they failed to decode.
	Skipped int
	// Degraded is set when no conflicting version could be decoded and the
	// resolver fell back to keeping the newest copy by file-modification
	// time. A file was still produced, but data from the undecodable
	// versions is lost. This is an accepted lossy fallback, not a silent
	// one: callers should surface it.
	Degraded bool
}

// Resolved reports whether any conflict versions were collapsed.
func (o Outcome) Resolved() bool { return o.Conflicts > 0 }

// Resolver detects and collapses concurrent versions of a document file.
type Resolver struct {
	versions  Versions
	tolerance time.Duration
	logger    *log.Logger
}

// New creates a Resolver. A nil store selects directory-convention
// discovery; a nil logger logs to stderr.
func New(store Versions, tolerance time.Duration, logger *log.Logger) *Resolver {
	if store == nil {
		store = DirVersions{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[resolve] ", log.LstdFlags)
	}
	return &Resolver{versions: store, tolerance: tolerance, logger: logger}
}

// Resolve collapses the pending conflict versions of path, if any, and
// persists the single surviving version. When it returns without error the
// document has exactly one coherent version on disk.
//
// Versions that fail to decode are skipped rather than aborting the whole
// resolve. The merge is associative and commutative up to the documented
// tie-break, so fold order does not change the result set.
func (r *Resolver) Resolve(path string) (Outcome, error) {
	conflicts, err := r.versions.Conflicting(path)
	if err != nil {
		return Outcome{}, err
	}
	if len(conflicts) == 0 {
		return Outcome{}, nil
	}

	current, err := r.versions.Current(path)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Conflicts: len(conflicts)}
	acc := r.decodeVersion(current)
	if acc == nil {
		r.logger.Printf("WARNING: current version of %s failed to decode", path)
	}

	for _, v := range conflicts {
		doc := r.decodeVersion(v)
		if doc == nil {
			out.Skipped++
			continue
		}
		if acc == nil {
			// Current was undecodable; the first readable conflict
			// version seeds the accumulator instead.
			acc = doc
		} else {
			acc = merge.Documents(doc, acc, r.tolerance)
		}
		out.Merged++
	}

	if acc == nil {
		// Nothing decoded at all. Keep the newest copy verbatim so the
		// user loses as little as possible, and say so.
		if err := r.keepNewestRaw(path, current, conflicts); err != nil {
			return out, err
		}
		out.Degraded = true
	} else {
		data, err := codec.Encode(acc)
		if err != nil {
			return out, err
		}
		if err := fsio.WriteFileAtomic(path, data, 0644); err != nil {
			return out, fmt.Errorf("persist merged version: %w", err)
		}
		if out.Merged == 0 {
			// Conflicts existed but none survived decoding; their edits
			// are gone even though the current version was kept.
			out.Degraded = true
		}
	}

	// Only after the surviving version is safely on disk.
	for _, v := range conflicts {
		if err := r.versions.Remove(v); err != nil {
			return out, err
		}
	}

	r.logger.Printf("Resolved %s: conflicts=%d merged=%d skipped=%d degraded=%v",
		path, out.Conflicts, out.Merged, out.Skipped, out.Degraded)
	return out, nil
}

// decodeVersion reads and decodes one version, returning nil if it cannot
// be used.
func (r *Resolver) decodeVersion(v Version) *document.ListDocument {
	data, err := os.ReadFile(v.Path)
	if err != nil {
		r.logger.Printf("WARNING: read %s: %v", v.Path, err)
		return nil
	}
	doc, _, err := codec.Decode(data)
	if err != nil {
		r.logger.Printf("WARNING: skipping undecodable version %s: %v", v.Path, err)
		return nil
	}
	return doc
}

// keepNewestRaw copies the version with the most recent file-modification
// timestamp over path without re-encoding it.
func (r *Resolver) keepNewestRaw(path string, current Version, conflicts []Version) error {
	newest := current
	for _, v := range conflicts {
		if v.ModTime.After(newest.ModTime) {
			newest = v
		}
	}
	if newest.Path == path {
		return nil
	}
	data, err := os.ReadFile(newest.Path)
	if err != nil {
		return fmt.Errorf("read newest version: %w", err)
	}
	if err := fsio.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("persist newest version: %w", err)
	}
	return nil
}
