// Package codec maps a document.ListDocument to and from its on-disk byte
// representation.
//
// Encoding is deterministic: keys appear in lexicographic order, items and
// labels are sorted canonically, timestamps use one fixed RFC 3339 profile,
// and the current format version is always written. Two encodings of
// semantically identical documents are byte-identical, which file-sync
// services rely on for byte-level diffing.
//
// Decoding is tolerant: every optional field has a defined fallback and the
// applied fallbacks are reported as notices. Only a structurally unparseable
// envelope, or an item missing its note or id, yields a *DecodeError.
// Unknown fields are ignored so documents from older or newer minor variants
// decode cleanly.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
)

// TimeLayout is the single timestamp profile written to disk: RFC 3339 in
// UTC with fixed millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// File extensions accepted by the codec. ExtNative is the app's own format;
// plain JSON is accepted for import and backward compatibility. Both decode
// through the same tolerant path.
const (
	ExtNative = ".listie"
	ExtJSON   = ".json"
)

// IsSupportedPath reports whether path carries a document extension.
func IsSupportedPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ExtNative) || strings.HasSuffix(lower, ExtJSON)
}

// DecodeError reports input the tolerant decoder could not recover.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode document: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Wire structs mirror the document model with lenient field types.
// JSON keys are declared in lexicographic order; the encoder reuses these
// structs so the deterministic-output rule lives in one place.
type wireDocument struct {
	Items   []wireItem      `json:"items"`
	Labels  []wireLabel     `json:"labels"`
	List    *wireList       `json:"list,omitempty"`
	Version json.RawMessage `json:"version,omitempty"`
}

type wireList struct {
	HiddenLabels []string        `json:"hiddenLabels,omitempty"`
	Icon         string          `json:"icon,omitempty"`
	ID           string          `json:"id,omitempty"`
	ModifiedAt   json.RawMessage `json:"modifiedAt,omitempty"`
	Name         string          `json:"name,omitempty"`
}

type wireItem struct {
	Checked            bool            `json:"checked"`
	DeletedAt          json.RawMessage `json:"deletedAt,omitempty"`
	ID                 string          `json:"id,omitempty"`
	IsDeleted          bool            `json:"isDeleted"`
	LabelID            string          `json:"labelId,omitempty"`
	MarkdownNotes      string          `json:"markdownNotes,omitempty"`
	ModifiedAt         json.RawMessage `json:"modifiedAt,omitempty"`
	Note               string          `json:"note,omitempty"`
	Quantity           json.RawMessage `json:"quantity,omitempty"`
	ReminderDate       json.RawMessage `json:"reminderDate,omitempty"`
	ReminderRepeatMode string          `json:"reminderRepeatMode,omitempty"`
	ReminderRepeatRule string          `json:"reminderRepeatRule,omitempty"`
}

type wireLabel struct {
	Color string `json:"color"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// Encode serializes a document deterministically. The input is not mutated;
// items and labels are sorted on a copy. The current version number is
// always written regardless of the version the document was decoded with.
func Encode(doc *document.ListDocument) ([]byte, error) {
	d := doc.Clone()
	document.SortItems(d.Items)
	document.SortLabels(d.Labels)

	w := wireDocument{
		Items:   make([]wireItem, 0, len(d.Items)),
		Labels:  make([]wireLabel, 0, len(d.Labels)),
		Version: json.RawMessage(strconv.Itoa(document.CurrentVersion)),
		List: &wireList{
			HiddenLabels: d.List.HiddenLabels,
			Icon:         d.List.Icon,
			ID:           d.List.ID,
			ModifiedAt:   rawTime(d.List.ModifiedAt),
			Name:         d.List.Name,
		},
	}
	for _, it := range d.Items {
		wi := wireItem{
			Checked:            it.Checked,
			ID:                 it.ID,
			IsDeleted:          it.IsDeleted,
			LabelID:            it.LabelID,
			MarkdownNotes:      it.MarkdownNotes,
			ModifiedAt:         rawTime(it.ModifiedAt),
			Note:               it.Note,
			Quantity:           rawQuantity(it.Quantity),
			ReminderRepeatMode: it.ReminderRepeatMode,
			ReminderRepeatRule: it.ReminderRepeatRule,
		}
		if it.DeletedAt != nil {
			wi.DeletedAt = rawTime(*it.DeletedAt)
		}
		if it.ReminderDate != nil {
			wi.ReminderDate = rawTime(*it.ReminderDate)
		}
		w.Items = append(w.Items, wi)
	}
	for _, l := range d.Labels {
		w.Labels = append(w.Labels, wireLabel{Color: l.Color, ID: l.ID, Name: l.Name})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data into a document, applying the fallback rules from the
// format contract. The returned notices name every fallback that was
// applied, which distinguishes "the file said this" from "we substituted
// this" when diagnosing a load.
func Decode(data []byte) (*document.ListDocument, []string, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, &DecodeError{Reason: "envelope is not valid JSON", Err: err}
	}

	var notices []string
	doc := &document.ListDocument{
		Items:  make([]document.Item, 0, len(w.Items)),
		Labels: make([]document.Label, 0, len(w.Labels)),
	}

	doc.Version = decodeVersion(w.Version, &notices)

	if w.List == nil {
		notices = append(notices, "list header missing; substituted a new header")
		w.List = &wireList{}
	}
	doc.List.HiddenLabels = w.List.HiddenLabels
	doc.List.Icon = w.List.Icon
	doc.List.ID = document.NormalizeListID(w.List.ID)
	if doc.List.ID == "" {
		doc.List.ID = uuid.NewString()
		notices = append(notices, "list id missing; generated a new id")
	}
	doc.List.Name = w.List.Name
	if doc.List.Name == "" {
		doc.List.Name = document.PlaceholderName
		notices = append(notices, "list name missing; substituted placeholder")
	}
	// A bad timestamp must never fail the decode.
	if ts, ok := parseTime(w.List.ModifiedAt); ok {
		doc.List.ModifiedAt = ts
	} else {
		doc.List.ModifiedAt = time.Now().UTC().Truncate(time.Millisecond)
		notices = append(notices, "list modifiedAt missing or invalid; substituted current time")
	}

	for i, wi := range w.Items {
		if wi.Note == "" {
			return nil, nil, &DecodeError{Reason: fmt.Sprintf("item %d has no note", i)}
		}
		if wi.ID == "" {
			return nil, nil, &DecodeError{Reason: fmt.Sprintf("item %d has no id", i)}
		}
		it := document.Item{
			Checked:            wi.Checked,
			ID:                 wi.ID,
			IsDeleted:          wi.IsDeleted,
			LabelID:            wi.LabelID,
			MarkdownNotes:      wi.MarkdownNotes,
			Note:               wi.Note,
			ReminderRepeatMode: wi.ReminderRepeatMode,
			ReminderRepeatRule: wi.ReminderRepeatRule,
		}
		if ts, ok := parseTime(wi.ModifiedAt); ok {
			it.ModifiedAt = ts
		} else {
			it.ModifiedAt = time.Now().UTC().Truncate(time.Millisecond)
			notices = append(notices, fmt.Sprintf("item %s modifiedAt missing or invalid; substituted current time", it.ID))
		}
		if ts, ok := parseTime(wi.DeletedAt); ok {
			it.DeletedAt = &ts
		}
		if ts, ok := parseTime(wi.ReminderDate); ok {
			it.ReminderDate = &ts
		}
		it.Quantity = decodeQuantity(wi.Quantity, it.ID, &notices)
		doc.Items = append(doc.Items, it)
	}

	seen := make(map[string]bool, len(w.Labels))
	for _, wl := range w.Labels {
		if wl.ID == "" {
			notices = append(notices, "label with empty id dropped")
			continue
		}
		if seen[wl.ID] {
			// Labels are a set keyed by id; first occurrence wins.
			notices = append(notices, fmt.Sprintf("duplicate label %s dropped", wl.ID))
			continue
		}
		seen[wl.ID] = true
		doc.Labels = append(doc.Labels, document.Label{Color: wl.Color, ID: wl.ID, Name: wl.Name})
	}

	return doc, notices, nil
}

func decodeVersion(raw json.RawMessage, notices *[]string) int {
	if len(raw) == 0 {
		*notices = append(*notices, "version missing; assuming oldest supported format (1)")
		return 1
	}
	var v int
	if err := json.Unmarshal(raw, &v); err == nil && v > 0 {
		return v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	*notices = append(*notices, "version invalid; assuming oldest supported format (1)")
	return 1
}

func decodeQuantity(raw json.RawMessage, itemID string, notices *[]string) float64 {
	if len(raw) == 0 {
		return 1
	}
	var q float64
	if err := json.Unmarshal(raw, &q); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			*notices = append(*notices, fmt.Sprintf("item %s quantity invalid; defaulted to 1", itemID))
			return 1
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*notices = append(*notices, fmt.Sprintf("item %s quantity invalid; defaulted to 1", itemID))
			return 1
		}
		q = parsed
	}
	if q < 0 {
		*notices = append(*notices, fmt.Sprintf("item %s quantity negative; clamped to 0", itemID))
		return 0
	}
	return q
}

// parseTime accepts the native profile plus common RFC 3339 variants and
// epoch seconds. It never fails loudly; the caller applies the fallback.
func parseTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC().Truncate(time.Millisecond), true
			}
		}
		return time.Time{}, false
	}
	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC().Truncate(time.Millisecond), true
	}
	return time.Time{}, false
}

func rawTime(t time.Time) json.RawMessage {
	return json.RawMessage(strconv.Quote(t.UTC().Format(TimeLayout)))
}

func rawQuantity(q float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(q, 'f', -1, 64))
}
