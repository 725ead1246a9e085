// Package watch notices external changes to list-document directories.
// It feeds the watch daemon: a document edit triggers a sync, an arriving
// conflict sibling triggers a resolve.
package watch

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/QuiteYellow/Listie.md-sub001/internal/codec"
	"github.com/QuiteYellow/Listie.md-sub001/internal/conflict"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file appeared.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one observed change to a document or one of its conflict
// siblings.
type Event struct {
	// Path is the document path the event concerns. For a conflict
	// sibling this is the base document's path, not the sibling's.
	Path string
	// Op is the operation that occurred.
	Op EventOp
	// Conflict is set when the event was a conflict sibling appearing or
	// changing, meaning the document needs a resolve rather than a sync.
	Conflict bool
}

// Watcher watches directories of list documents for changes.
// It uses fsnotify for cross-platform file system event monitoring.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a Watcher. It must be started with Start before it emits
// events.
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: fw,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the given directories for document events.
func (w *Watcher) Start(dirs ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	var added []string
	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			for _, a := range added {
				_ = w.watcher.Remove(a)
			}
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
		added = append(added, dir)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel emitting document events. Closed on Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel emitting watch errors. Closed on Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event onto a document Event, or reports
// that it should be ignored.
func convertEvent(event fsnotify.Event) (Event, bool) {
	if !codec.IsSupportedPath(event.Name) {
		return Event{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// The new name will arrive as its own create.
		op = OpDelete
	default:
		// Chmod and friends carry no content change.
		return Event{}, false
	}

	ev := Event{Path: event.Name, Op: op}
	if conflict.IsConflictSibling(event.Name) {
		ev.Conflict = true
		ev.Path = conflict.BaseFor(event.Name)
	}
	return ev, true
}
