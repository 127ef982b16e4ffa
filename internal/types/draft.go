package types

import "strings"

// Draft accumulates target issue fields for one source issue.
// Insertion order is preserved so logs and reports are stable.
type Draft struct {
	keys   []string
	values map[string]any
}

// NewDraft returns an empty draft.
func NewDraft() *Draft {
	return &Draft{values: make(map[string]any)}
}

// Set assigns a field, keeping its original position if it already exists.
func (d *Draft) Set(key string, value any) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns a field value.
func (d *Draft) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns field names in insertion order.
func (d *Draft) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of fields.
func (d *Draft) Len() int {
	return len(d.keys)
}

// Map returns a shallow copy of the fields, suitable as a request payload.
func (d *Draft) Map() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// String returns a field as text, or "" when absent or not a string.
func (d *Draft) String(key string) string {
	s, _ := d.values[key].(string)
	return s
}

// AppendLabels appends a comma-joined label list to the "labels" field.
// An existing non-empty value is separated from the new labels by a comma.
func (d *Draft) AppendLabels(labels []string) {
	if len(labels) == 0 {
		return
	}
	joined := strings.Join(labels, ",")
	existing := labelsText(d.values["labels"])
	if existing == "" {
		d.Set("labels", joined)
		return
	}
	d.Set("labels", existing+","+joined)
}

func labelsText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return Stringify(t)
	}
}
