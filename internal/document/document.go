// Package document defines the persistent shape of a list and the mutation
// API used by every caller that edits one.
//
// A ListDocument is the unit of persistence: one list header, its items and
// its labels. Items carry a modification timestamp that is the sole authority
// for merge ordering, so every mutation in this package stamps the item and
// the parent list with a fresh, strictly advancing timestamp.
package document

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the document format version written by the encoder.
// Documents decoded without a version field are assumed to be version 1,
// the oldest supported format, and are upgraded on the next write.
const CurrentVersion = 2

// legacyListIDPrefix is the prefix older releases attached to list
// identifiers. Canonical ids carry no prefix.
const legacyListIDPrefix = "listie-"

// PlaceholderName substitutes a missing list name on decode.
const PlaceholderName = "Untitled List"

// now returns the timestamp applied to mutations. Package tests override it.
// Millisecond truncation matches the on-disk timestamp profile so that a
// document round-trips field-for-field.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ListDocument is the unit of persistence.
//
// JSON fields across this package are declared in lexicographic key order so
// the encoder emits byte-identical output for semantically identical
// documents, which file-sync services rely on for byte-level diffing.
type ListDocument struct {
	Items   []Item      `json:"items"`
	Labels  []Label     `json:"labels"`
	List    ListSummary `json:"list"`
	Version int         `json:"version"`
}

// ListSummary is the list header.
type ListSummary struct {
	HiddenLabels []string  `json:"hiddenLabels,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	ID           string    `json:"id"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	Name         string    `json:"name"`
}

// Item is a single list entry. ID is the merge key and is never regenerated;
// ModifiedAt decides which side of a merge wins. The reminder fields are
// opaque to the merge core and carried through unchanged.
type Item struct {
	Checked            bool       `json:"checked"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	ID                 string     `json:"id"`
	IsDeleted          bool       `json:"isDeleted"`
	LabelID            string     `json:"labelId,omitempty"`
	MarkdownNotes      string     `json:"markdownNotes,omitempty"`
	ModifiedAt         time.Time  `json:"modifiedAt"`
	Note               string     `json:"note"`
	Quantity           float64    `json:"quantity"`
	ReminderDate       *time.Time `json:"reminderDate,omitempty"`
	ReminderRepeatMode string     `json:"reminderRepeatMode,omitempty"`
	ReminderRepeatRule string     `json:"reminderRepeatRule,omitempty"`
}

// Label categorizes items. Labels have no modification timestamp; merge
// collisions are resolved baseline-wins.
type Label struct {
	Color string `json:"color"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// New creates an empty list document with a canonical id.
func New(name string) *ListDocument {
	ts := now()
	return &ListDocument{
		Items:  []Item{},
		Labels: []Label{},
		List: ListSummary{
			ID:         uuid.NewString(),
			ModifiedAt: ts,
			Name:       name,
		},
		Version: CurrentVersion,
	}
}

// NormalizeListID strips the legacy id prefix so identity comparisons always
// run against the canonical form.
func NormalizeListID(id string) string {
	return strings.TrimPrefix(id, legacyListIDPrefix)
}

// stamp returns a mutation timestamp that strictly advances past the list's
// previous modification time even on coarse clocks.
func (d *ListDocument) stamp() time.Time {
	ts := now()
	if !ts.After(d.List.ModifiedAt) {
		ts = d.List.ModifiedAt.Add(time.Millisecond)
	}
	return ts
}

// touch applies ts to the item at index i and to the list header.
func (d *ListDocument) touch(i int, ts time.Time) {
	d.Items[i].ModifiedAt = ts
	d.List.ModifiedAt = ts
}

func (d *ListDocument) findItem(id string) (int, error) {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("item %s not found", id)
}

// AddItem appends a new unchecked item with quantity 1 and returns its id.
func (d *ListDocument) AddItem(note string) (string, error) {
	if note == "" {
		return "", fmt.Errorf("note is required")
	}
	ts := d.stamp()
	item := Item{
		ID:         uuid.NewString(),
		ModifiedAt: ts,
		Note:       note,
		Quantity:   1,
	}
	d.Items = append(d.Items, item)
	d.List.ModifiedAt = ts
	return item.ID, nil
}

// UpdateItemNote replaces the note text of an item.
func (d *ListDocument) UpdateItemNote(id, note string) error {
	if note == "" {
		return fmt.Errorf("note is required")
	}
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].Note = note
	d.touch(i, d.stamp())
	return nil
}

// SetChecked marks an item checked or unchecked.
func (d *ListDocument) SetChecked(id string, checked bool) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].Checked = checked
	d.touch(i, d.stamp())
	return nil
}

// SetQuantity updates an item's quantity. Quantities are never negative.
func (d *ListDocument) SetQuantity(id string, quantity float64) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must be >= 0 (got %v)", quantity)
	}
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].Quantity = quantity
	d.touch(i, d.stamp())
	return nil
}

// AssignLabel points an item at a label id. An empty labelID clears the
// assignment. The label is not required to exist: dangling references are
// valid and render as "no label".
func (d *ListDocument) AssignLabel(id, labelID string) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].LabelID = labelID
	d.touch(i, d.stamp())
	return nil
}

// SetMarkdownNotes replaces the free-text notes attached to an item.
func (d *ListDocument) SetMarkdownNotes(id, notes string) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].MarkdownNotes = notes
	d.touch(i, d.stamp())
	return nil
}

// SetReminder records reminder scheduling data on an item. The merge core
// treats these fields as opaque. A nil date clears the reminder.
func (d *ListDocument) SetReminder(id string, date *time.Time, repeatRule, repeatMode string) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].ReminderDate = date
	d.Items[i].ReminderRepeatRule = repeatRule
	d.Items[i].ReminderRepeatMode = repeatMode
	d.touch(i, d.stamp())
	return nil
}

// SoftDeleteItem flags an item deleted. The item stays in storage for
// restore and conflict bookkeeping but disappears from active views.
func (d *ListDocument) SoftDeleteItem(id string) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	ts := d.stamp()
	d.Items[i].IsDeleted = true
	d.Items[i].DeletedAt = &ts
	d.touch(i, ts)
	return nil
}

// RestoreItem clears the soft-delete flag.
func (d *ListDocument) RestoreItem(id string) error {
	i, err := d.findItem(id)
	if err != nil {
		return err
	}
	d.Items[i].IsDeleted = false
	d.Items[i].DeletedAt = nil
	d.touch(i, d.stamp())
	return nil
}

// PurgeDeleted permanently removes soft-deleted items and returns how many
// were dropped.
func (d *ListDocument) PurgeDeleted() int {
	kept := d.Items[:0]
	purged := 0
	for _, it := range d.Items {
		if it.IsDeleted {
			purged++
			continue
		}
		kept = append(kept, it)
	}
	d.Items = kept
	if purged > 0 {
		d.List.ModifiedAt = d.stamp()
	}
	return purged
}

// Rename changes the list name.
func (d *ListDocument) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	d.List.Name = name
	d.List.ModifiedAt = d.stamp()
	return nil
}

// AddLabel creates a label with an id slugified from its name. Id uniqueness
// is enforced here, at creation time, by extending collisions with a counter
// suffix; it is not re-checked afterward.
func (d *ListDocument) AddLabel(name, color string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	id := slugify(name)
	if id == "" {
		id = "label"
	}
	base := id
	for n := 2; d.labelExists(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	d.Labels = append(d.Labels, Label{Color: color, ID: id, Name: name})
	d.List.ModifiedAt = d.stamp()
	return id, nil
}

// RenameLabel updates a label's display name, keeping its id stable.
func (d *ListDocument) RenameLabel(id, name string) error {
	for i := range d.Labels {
		if d.Labels[i].ID == id {
			d.Labels[i].Name = name
			d.List.ModifiedAt = d.stamp()
			return nil
		}
	}
	return fmt.Errorf("label %s not found", id)
}

// RemoveLabel deletes a label. Items that referenced it keep their labelId
// and become dangling references, which every view treats as "no label".
func (d *ListDocument) RemoveLabel(id string) error {
	for i := range d.Labels {
		if d.Labels[i].ID == id {
			d.Labels = append(d.Labels[:i], d.Labels[i+1:]...)
			d.List.ModifiedAt = d.stamp()
			return nil
		}
	}
	return fmt.Errorf("label %s not found", id)
}

// HideLabel suppresses a label id from filtered views. Hiding is idempotent.
func (d *ListDocument) HideLabel(id string) {
	for _, h := range d.List.HiddenLabels {
		if h == id {
			return
		}
	}
	d.List.HiddenLabels = append(d.List.HiddenLabels, id)
	sort.Strings(d.List.HiddenLabels)
	d.List.ModifiedAt = d.stamp()
}

// UnhideLabel removes a label id from the hidden set.
func (d *ListDocument) UnhideLabel(id string) {
	for i, h := range d.List.HiddenLabels {
		if h == id {
			d.List.HiddenLabels = append(d.List.HiddenLabels[:i], d.List.HiddenLabels[i+1:]...)
			d.List.ModifiedAt = d.stamp()
			return
		}
	}
}

func (d *ListDocument) labelExists(id string) bool {
	for _, l := range d.Labels {
		if l.ID == id {
			return true
		}
	}
	return false
}

// LabelByID looks a label up by id.
func (d *ListDocument) LabelByID(id string) (Label, bool) {
	for _, l := range d.Labels {
		if l.ID == id {
			return l, true
		}
	}
	return Label{}, false
}

// ActiveItems returns the non-deleted items, most recently touched first.
// Soft-deleted items never appear here.
func (d *ListDocument) ActiveItems() []Item {
	var out []Item
	for _, it := range d.Items {
		if it.IsDeleted {
			continue
		}
		out = append(out, it)
	}
	SortItems(out)
	return out
}

// VisibleItems is ActiveItems with hidden-label filtering applied.
func (d *ListDocument) VisibleItems() []Item {
	hidden := make(map[string]bool, len(d.List.HiddenLabels))
	for _, id := range d.List.HiddenLabels {
		hidden[id] = true
	}
	var out []Item
	for _, it := range d.ActiveItems() {
		if it.LabelID != "" && hidden[it.LabelID] {
			continue
		}
		out = append(out, it)
	}
	return out
}

// ItemsByLabel groups active items by label id. Items without a label, and
// items whose labelId dangles (no matching label exists), group under the
// empty key.
func (d *ListDocument) ItemsByLabel() map[string][]Item {
	groups := make(map[string][]Item)
	for _, it := range d.ActiveItems() {
		key := it.LabelID
		if key != "" && !d.labelExists(key) {
			key = ""
		}
		groups[key] = append(groups[key], it)
	}
	return groups
}

// SortItems orders items most recently modified first. Items with equal
// timestamps sort by id so encodes of the same document are byte-stable.
// Callers must not rely on the order beyond "same set of ids".
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].ModifiedAt.Equal(items[j].ModifiedAt) {
			return items[i].ModifiedAt.After(items[j].ModifiedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// SortLabels orders labels by id for stable output.
func SortLabels(labels []Label) {
	sort.Slice(labels, func(i, j int) bool { return labels[i].ID < labels[j].ID })
}

// Clone returns a deep copy. The cache hands copies to callers so no one
// retains a mutable alias into cached state.
func (d *ListDocument) Clone() *ListDocument {
	out := &ListDocument{
		Items:   make([]Item, len(d.Items)),
		Labels:  make([]Label, len(d.Labels)),
		List:    d.List,
		Version: d.Version,
	}
	copy(out.Labels, d.Labels)
	for i, it := range d.Items {
		if it.DeletedAt != nil {
			ts := *it.DeletedAt
			it.DeletedAt = &ts
		}
		if it.ReminderDate != nil {
			ts := *it.ReminderDate
			it.ReminderDate = &ts
		}
		out.Items[i] = it
	}
	if d.List.HiddenLabels != nil {
		out.List.HiddenLabels = append([]string(nil), d.List.HiddenLabels...)
	}
	return out
}

// slugify lowercases a label name and reduces it to [a-z0-9-].
func slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dashes
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
