package persistence

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Key identifies one stored entity. Keys are comparable, so they can be used
// directly as map keys. Parent holds the encoded key of the owning entity
// (empty for root entities), which is what ancestor queries match on.
type Key struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// NewKey builds a key of the given kind. An empty name produces an incomplete
// key that the store completes on Put.
func NewKey(kind, name string, parent *Key) Key {
	k := Key{Kind: kind, Name: name}
	if parent != nil && !parent.IsZero() {
		k.Parent = parent.Encode()
	}
	return k
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	return k.Kind == "" && k.Name == "" && k.Parent == ""
}

// Incomplete reports whether the key still lacks a name.
func (k Key) Incomplete() bool {
	return k.Name == ""
}

// Encode renders the key as "Kind:Name" segments, ancestors first, joined by "/".
func (k Key) Encode() string {
	seg := url.PathEscape(k.Kind) + ":" + url.PathEscape(k.Name)
	if k.Parent == "" {
		return seg
	}
	return k.Parent + "/" + seg
}

func (k Key) String() string {
	return k.Encode()
}

// ParentKey decodes the parent key, if any.
func (k Key) ParentKey() (Key, bool) {
	if k.Parent == "" {
		return Key{}, false
	}
	p, err := ParseKey(k.Parent)
	if err != nil {
		return Key{}, false
	}
	return p, true
}

// HasAncestor reports whether a is k's parent or a more distant ancestor.
func (k Key) HasAncestor(a Key) bool {
	enc := a.Encode()
	return k.Parent == enc || strings.HasPrefix(k.Parent, enc+"/")
}

// ParseKey is the inverse of Key.Encode.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("empty key")
	}
	parent := ""
	last := s
	if i := strings.LastIndex(s, "/"); i >= 0 {
		parent, last = s[:i], s[i+1:]
	}
	kind, name, ok := strings.Cut(last, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed key segment %q", last)
	}
	var err error
	if kind, err = url.PathUnescape(kind); err != nil {
		return Key{}, fmt.Errorf("malformed key kind %q: %w", last, err)
	}
	if name, err = url.PathUnescape(name); err != nil {
		return Key{}, fmt.Errorf("malformed key name %q: %w", last, err)
	}
	return Key{Kind: kind, Name: name, Parent: parent}, nil
}

// CompleteKey assigns a fresh name to an incomplete key.
func CompleteKey(k Key) Key {
	if k.Incomplete() {
		k.Name = uuid.NewString()
	}
	return k
}
