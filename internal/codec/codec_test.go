package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
)

func sampleDocument() *document.ListDocument {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	return &document.ListDocument{
		Items: []document.Item{
			{ID: "item-a", Note: "Milk", Quantity: 2, ModifiedAt: t2, Checked: true},
			{ID: "item-b", Note: "Eggs", Quantity: 1, ModifiedAt: t1, LabelID: "dairy"},
		},
		Labels: []document.Label{
			{Color: "#fff", ID: "dairy", Name: "Dairy"},
		},
		List: document.ListSummary{
			ID:         "abc123",
			ModifiedAt: t2,
			Name:       "Groceries",
		},
		Version: document.CurrentVersion,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := sampleDocument()
	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, notices, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(notices) != 0 {
		t.Errorf("clean round trip produced notices: %v", notices)
	}
	if got.List.ID != orig.List.ID || got.List.Name != orig.List.Name {
		t.Errorf("header = %+v, want %+v", got.List, orig.List)
	}
	if len(got.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(got.Items))
	}
	if !got.Items[0].ModifiedAt.Equal(orig.Items[0].ModifiedAt) {
		t.Errorf("item timestamp = %v, want %v", got.Items[0].ModifiedAt, orig.Items[0].ModifiedAt)
	}
	if got.Items[0].Quantity != 2 {
		t.Errorf("quantity = %v, want 2", got.Items[0].Quantity)
	}

	// Re-encoding the decoded document must be byte-identical.
	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("re-encode not byte-stable:\n%s\n---\n%s", data, again)
	}
}

func TestEncodeDeterministicAcrossOrder(t *testing.T) {
	a := sampleDocument()
	b := sampleDocument()
	// Shuffle item and label order; the encoder sorts canonically.
	b.Items[0], b.Items[1] = b.Items[1], b.Items[0]

	ea, err := Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ea, eb) {
		t.Error("encodings of semantically identical documents differ")
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	d := sampleDocument()
	d.Items[0], d.Items[1] = d.Items[1], d.Items[0]
	firstID := d.Items[0].ID
	if _, err := Encode(d); err != nil {
		t.Fatal(err)
	}
	if d.Items[0].ID != firstID {
		t.Error("Encode reordered the caller's items")
	}
}

func TestEncodeAlwaysWritesCurrentVersion(t *testing.T) {
	d := sampleDocument()
	d.Version = 1
	data, err := Encode(d)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != document.CurrentVersion {
		t.Errorf("version = %d, want %d", got.Version, document.CurrentVersion)
	}
}

func TestEncodeEndsWithNewline(t *testing.T) {
	data, err := Encode(sampleDocument())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("encoded document should end with a newline")
	}
}

func TestDecodeFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantNotice string
		check      func(t *testing.T, d *document.ListDocument)
	}{
		{
			name:       "missing version assumes oldest",
			input:      `{"items":[],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"}}`,
			wantNotice: "version missing",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.Version != 1 {
					t.Errorf("version = %d, want 1", d.Version)
				}
			},
		},
		{
			name:       "missing list name gets placeholder",
			input:      `{"items":[],"labels":[],"list":{"id":"x","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "list name missing",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.List.Name != document.PlaceholderName {
					t.Errorf("name = %q, want placeholder", d.List.Name)
				}
			},
		},
		{
			name:       "missing list id generates one",
			input:      `{"items":[],"labels":[],"list":{"name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "list id missing",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.List.ID == "" {
					t.Error("expected a generated list id")
				}
			},
		},
		{
			name:       "bad list timestamp substitutes now",
			input:      `{"items":[],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"not a time"},"version":2}`,
			wantNotice: "list modifiedAt missing or invalid",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.List.ModifiedAt.IsZero() {
					t.Error("expected a substituted timestamp")
				}
			},
		},
		{
			name:       "missing item quantity defaults silently",
			input:      `{"items":[{"id":"a","note":"Milk","modifiedAt":"2026-03-01T12:00:00.000Z"}],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.Items[0].Quantity != 1 {
					t.Errorf("quantity = %v, want 1", d.Items[0].Quantity)
				}
			},
		},
		{
			name:       "negative quantity clamps to zero",
			input:      `{"items":[{"id":"a","note":"Milk","quantity":-3,"modifiedAt":"2026-03-01T12:00:00.000Z"}],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "quantity negative",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.Items[0].Quantity != 0 {
					t.Errorf("quantity = %v, want 0", d.Items[0].Quantity)
				}
			},
		},
		{
			name:       "string quantity parses",
			input:      `{"items":[{"id":"a","note":"Milk","quantity":"2.5","modifiedAt":"2026-03-01T12:00:00.000Z"}],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.Items[0].Quantity != 2.5 {
					t.Errorf("quantity = %v, want 2.5", d.Items[0].Quantity)
				}
			},
		},
		{
			name:       "bad item timestamp substitutes now",
			input:      `{"items":[{"id":"a","note":"Milk","modifiedAt":12e400}],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "modifiedAt missing or invalid",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.Items[0].ModifiedAt.IsZero() {
					t.Error("expected a substituted timestamp")
				}
			},
		},
		{
			name:       "duplicate label dropped",
			input:      `{"items":[],"labels":[{"id":"dairy","name":"Dairy","color":"#fff"},{"id":"dairy","name":"Other","color":"#000"}],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "duplicate label",
			check: func(t *testing.T, d *document.ListDocument) {
				if len(d.Labels) != 1 || d.Labels[0].Name != "Dairy" {
					t.Errorf("labels = %v, want first occurrence only", d.Labels)
				}
			},
		},
		{
			name:       "label with empty id dropped",
			input:      `{"items":[],"labels":[{"id":"","name":"Ghost","color":"#fff"}],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "empty id",
			check: func(t *testing.T, d *document.ListDocument) {
				if len(d.Labels) != 0 {
					t.Errorf("labels = %v, want none", d.Labels)
				}
			},
		},
		{
			name:       "legacy list id prefix stripped",
			input:      `{"items":[],"labels":[],"list":{"id":"listie-abc123","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "",
			check: func(t *testing.T, d *document.ListDocument) {
				if d.List.ID != "abc123" {
					t.Errorf("id = %q, want abc123", d.List.ID)
				}
			},
		},
		{
			name:       "unknown fields ignored",
			input:      `{"items":[],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2,"futureField":{"deep":true}}`,
			wantNotice: "",
			check:      nil,
		},
		{
			name:       "epoch seconds timestamp accepted",
			input:      `{"items":[{"id":"a","note":"Milk","modifiedAt":1767268800}],"labels":[],"list":{"id":"x","name":"L","modifiedAt":"2026-03-01T12:00:00.000Z"},"version":2}`,
			wantNotice: "",
			check: func(t *testing.T, d *document.ListDocument) {
				want := time.Unix(1767268800, 0).UTC()
				if !d.Items[0].ModifiedAt.Equal(want) {
					t.Errorf("timestamp = %v, want %v", d.Items[0].ModifiedAt, want)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, notices, err := Decode([]byte(tt.input))
			if tt.check == nil && tt.wantNotice == "" && err != nil {
				// structurally invalid inputs are exercised in TestDecodeErrors
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if tt.wantNotice != "" {
				found := false
				for _, n := range notices {
					if strings.Contains(n, tt.wantNotice) {
						found = true
					}
				}
				if !found {
					t.Errorf("notices %v missing %q", notices, tt.wantNotice)
				}
			} else if len(notices) != 0 && tt.check != nil {
				t.Errorf("unexpected notices: %v", notices)
			}
			if tt.check != nil {
				tt.check(t, d)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid JSON", `{"items": [`},
		{"not an object", `[1,2,3]`},
		{"item missing note", `{"items":[{"id":"a","modifiedAt":"2026-03-01T12:00:00.000Z"}],"labels":[],"list":{"id":"x","name":"L"},"version":2}`},
		{"item missing id", `{"items":[{"note":"Milk","modifiedAt":"2026-03-01T12:00:00.000Z"}],"labels":[],"list":{"id":"x","name":"L"},"version":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tt.input))
			if err == nil {
				t.Fatal("expected an error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not *DecodeError", err)
			}
		})
	}
}

func TestIsSupportedPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"groceries.listie", true},
		{"groceries.json", true},
		{"GROCERIES.LISTIE", true},
		{"groceries.txt", false},
		{"groceries", false},
		{"dir.listie/readme.md", false},
	}
	for _, tt := range tests {
		if got := IsSupportedPath(tt.path); got != tt.want {
			t.Errorf("IsSupportedPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []string{
		`"2026-03-01T12:00:00.000Z"`,
		`"2026-03-01T12:00:00Z"`,
		`"2026-03-01T12:00:00"`,
		`"2026-03-01T13:00:00+01:00"`,
	}
	for _, raw := range tests {
		ts, ok := parseTime([]byte(raw))
		if !ok {
			t.Errorf("parseTime(%s) failed", raw)
			continue
		}
		if !ts.Equal(want) {
			t.Errorf("parseTime(%s) = %v, want %v", raw, ts, want)
		}
	}
	if _, ok := parseTime([]byte(`null`)); ok {
		t.Error("parseTime(null) should fail")
	}
	if _, ok := parseTime(nil); ok {
		t.Error("parseTime(nil) should fail")
	}
}
