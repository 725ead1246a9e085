package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/QuiteYellow/Listie.md-sub001/internal/codec"
	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
)

var quiet = log.New(io.Discard, "", 0)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return New(Options{Logger: quiet})
}

func testDoc(name string) *document.ListDocument {
	return &document.ListDocument{
		Items:   []document.Item{},
		Labels:  []document.Label{},
		List:    document.ListSummary{ID: "list-1", Name: name, ModifiedAt: t0},
		Version: document.CurrentVersion,
	}
}

func writeDoc(t *testing.T, path string, doc *document.ListDocument) {
	t.Helper()
	data, err := codec.Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// touchFuture pushes a file's modification time forward so a staleness probe
// sees it as strictly newer regardless of filesystem timestamp granularity.
func touchFuture(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(d)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	e := newTestEngine()
	_, err := e.Open(context.Background(), filepath.Join(t.TempDir(), "none.listie"), false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenReadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	doc, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.List.Name != "Groceries" {
		t.Errorf("name = %q, want Groceries", doc.List.Name)
	}

	// Change the file behind the cache; a non-forced open must not see it.
	writeDoc(t, path, testDoc("Renamed"))
	cached, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Open (cached): %v", err)
	}
	if cached.List.Name != "Groceries" {
		t.Errorf("cached name = %q, want the cached copy", cached.List.Name)
	}

	// A forced reload sees the disk.
	fresh, err := e.Open(context.Background(), path, true)
	if err != nil {
		t.Fatalf("Open (forced): %v", err)
	}
	if fresh.List.Name != "Renamed" {
		t.Errorf("forced name = %q, want Renamed", fresh.List.Name)
	}
}

func TestOpenReturnsIsolatedCopies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	a, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatal(err)
	}
	a.List.Name = "mutated"

	b, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatal(err)
	}
	if b.List.Name != "Groceries" {
		t.Error("mutating an opened document leaked into the cache")
	}
}

func TestOpenResolvesConflictVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")

	current := testDoc("Groceries")
	current.Items = append(current.Items, document.Item{
		ID: "milk", Note: "Milk (2%)", Quantity: 1, ModifiedAt: t0.Add(10 * time.Second),
	})
	writeDoc(t, path, current)

	sibling := testDoc("Groceries")
	sibling.Items = append(sibling.Items, document.Item{
		ID: "eggs", Note: "Eggs", Quantity: 1, ModifiedAt: t0.Add(5 * time.Second),
	})
	sibPath := filepath.Join(dir, "g.sync-conflict-20260301-120500.listie")
	writeDoc(t, sibPath, sibling)

	e := newTestEngine()
	doc, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("got %d items, want the merged pair", len(doc.Items))
	}
	if _, err := os.Stat(sibPath); !os.IsNotExist(err) {
		t.Error("conflict sibling should be gone after open")
	}
}

func TestOpenCancelledContextLeavesCacheUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine()
	if _, err := e.Open(ctx, path, false); err == nil {
		t.Fatal("expected an error from a cancelled open")
	}
	if _, ok := e.Peek(path); ok {
		t.Error("cancelled open populated the cache")
	}
}

func TestSaveCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")

	e := newTestEngine()
	res, err := e.Save(context.Background(), testDoc("Groceries"), path, true)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.RaceResolved {
		t.Error("fresh save must not report a race")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	got, _, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode saved file: %v", err)
	}
	if got.List.Name != "Groceries" {
		t.Errorf("saved name = %q, want Groceries", got.List.Name)
	}
}

func TestSaveRaceMergesBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")

	base := testDoc("Groceries")
	base.Items = append(base.Items, document.Item{
		ID: "milk", Note: "Milk", Quantity: 1, ModifiedAt: t0,
	})
	writeDoc(t, path, base)

	e := newTestEngine()
	opened, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatal(err)
	}

	// Another device writes while we hold the opened copy.
	external := testDoc("Groceries")
	external.Items = append(external.Items,
		document.Item{ID: "milk", Note: "Milk", Quantity: 1, ModifiedAt: t0},
		document.Item{ID: "eggs", Note: "Eggs", Quantity: 1, ModifiedAt: t0.Add(5 * time.Second)},
	)
	external.List.ModifiedAt = t0.Add(5 * time.Second)
	writeDoc(t, path, external)
	touchFuture(t, path, 2*time.Second)

	// Our local edit on the stale copy.
	opened.Items = append(opened.Items, document.Item{
		ID: "bread", Note: "Bread", Quantity: 1, ModifiedAt: t0.Add(10 * time.Second),
	})
	opened.List.ModifiedAt = t0.Add(10 * time.Second)

	res, err := e.Save(context.Background(), opened, path, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.RaceResolved {
		t.Fatal("save against a moved file should report the race")
	}

	ids := map[string]bool{}
	for _, it := range res.Document.Items {
		ids[it.ID] = true
	}
	for _, want := range []string{"milk", "eggs", "bread"} {
		if !ids[want] {
			t.Errorf("merged result missing %s (got %v)", want, ids)
		}
	}

	// The merged state, not the stale caller copy, is what landed on disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	onDisk, _, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(onDisk.Items) != 3 {
		t.Errorf("on-disk items = %d, want 3", len(onDisk.Items))
	}
}

func TestSaveWithoutRaceSkipsMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	opened, err := e.Open(context.Background(), path, false)
	if err != nil {
		t.Fatal(err)
	}
	opened.List.Name = "Renamed"
	opened.List.ModifiedAt = t0.Add(time.Minute)

	res, err := e.Save(context.Background(), opened, path, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.RaceResolved {
		t.Error("unchanged disk must not trigger the race path")
	}
	if res.Document.List.Name != "Renamed" {
		t.Errorf("result name = %q, want Renamed", res.Document.List.Name)
	}
}

func TestSaveReadOnlyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))
	if err := os.Chmod(path, 0444); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine()
	_, err := e.Save(context.Background(), testDoc("Groceries"), path, true)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	if e.IsWritable(path) {
		t.Error("IsWritable should be false for a read-only file")
	}
}

func TestIsWritableGroupWritableFileOwnedByOther(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("changing file ownership requires root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))
	// Owned by someone else, writable only through the group/other bits.
	// The owner-write-bit shortcut must not apply to files we do not own.
	if err := os.Chown(path, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0464); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine()
	if !e.IsWritable(path) {
		t.Error("group-writable file owned by another user reported unwritable")
	}
}

func TestSyncPureReloadWithoutCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	doc, err := e.Sync(context.Background(), path)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if doc.List.Name != "Groceries" {
		t.Errorf("name = %q, want Groceries", doc.List.Name)
	}
}

func TestSyncMergesCachedEditsWithDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	if _, err := e.Open(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}

	// Park unsaved edits in the cache, then let the disk move too.
	edited := testDoc("Groceries")
	edited.Items = append(edited.Items, document.Item{
		ID: "bread", Note: "Bread", Quantity: 1, ModifiedAt: t0.Add(10 * time.Second),
	})
	e.cache.Put(path, edited)

	external := testDoc("Groceries")
	external.Items = append(external.Items, document.Item{
		ID: "eggs", Note: "Eggs", Quantity: 1, ModifiedAt: t0.Add(5 * time.Second),
	})
	writeDoc(t, path, external)

	merged, err := e.Sync(context.Background(), path)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(merged.Items) != 2 {
		t.Fatalf("merged items = %d, want both edits", len(merged.Items))
	}
}

func TestCloseDropsCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	if _, err := e.Open(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}
	e.Close(path)
	if _, ok := e.Peek(path); ok {
		t.Error("cache entry survived Close")
	}
}

func TestHasFileChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := newTestEngine()
	if _, err := e.Open(context.Background(), path, false); err != nil {
		t.Fatal(err)
	}

	changed, err := e.HasFileChanged(path)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("freshly opened file should not report a change")
	}

	writeDoc(t, path, testDoc("Renamed"))
	touchFuture(t, path, 2*time.Second)
	changed, err = e.HasFileChanged(path)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("externally modified file should report a change")
	}
}

// failingAccess simulates a registry that refuses access.
type failingAccess struct{}

func (failingAccess) StartAccess(string) (func(), error) {
	return nil, errors.New("bookmark data stale")
}

func TestOpenSurfacesAccessFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.listie")
	writeDoc(t, path, testDoc("Groceries"))

	e := New(Options{Access: failingAccess{}, Logger: quiet})
	_, err := e.Open(context.Background(), path, false)
	if err == nil || !strings.Contains(err.Error(), "acquire access") {
		t.Errorf("err = %v, want an access failure", err)
	}
}
