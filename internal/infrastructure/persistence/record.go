package persistence

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// SortableTimeLayout is a fixed-width UTC layout whose byte order matches
// chronological order.
const SortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Properties holds the stored fields of an entity. Values are limited to
// string, int64, bool, time.Time, Key and []string.
type Properties map[string]any

// Record is one stored entity.
type Record struct {
	Key   Key
	Props Properties
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	props := make(Properties, len(r.Props))
	for name, v := range r.Props {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		props[name] = v
	}
	return Record{Key: r.Key, Props: props}
}

// Names returns the property names in sorted order.
func (r Record) Names() []string {
	return slices.Sorted(maps.Keys(r.Props))
}

// String returns a string property, or "" when absent.
func (r Record) String(name string) string {
	switch v := r.Props[name].(type) {
	case string:
		return v
	case Key:
		return v.Encode()
	}
	return ""
}

// Int returns an integer property. Numbers decoded from a document store come
// back as float64 and are converted.
func (r Record) Int(name string) int64 {
	switch v := r.Props[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Bool returns a boolean property.
func (r Record) Bool(name string) bool {
	v, _ := r.Props[name].(bool)
	return v
}

// Time returns a time property. Times stored as sortable strings are parsed.
func (r Record) Time(name string) time.Time {
	switch v := r.Props[name].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(SortableTimeLayout, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// KeyProp returns a key-valued property. Encoded keys are parsed.
func (r Record) KeyProp(name string) Key {
	switch v := r.Props[name].(type) {
	case Key:
		return v
	case string:
		if k, err := ParseKey(v); err == nil {
			return k
		}
	}
	return Key{}
}

// Strings returns a list property.
func (r Record) Strings(name string) []string {
	switch v := r.Props[name].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SortableString renders an indexable value as a string whose byte order
// matches the value order. Both store implementations compare with it.
func SortableString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case Key:
		return v.Encode()
	case time.Time:
		return v.UTC().Format(SortableTimeLayout)
	case int64:
		return fmt.Sprintf("%020d", uint64(v)^(1<<63))
	case int:
		return SortableString(int64(v))
	case float64:
		return SortableString(int64(v))
	case bool:
		if v {
			return "1"
		}
		return "0"
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
