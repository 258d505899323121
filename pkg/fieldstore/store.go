package fieldstore

import (
	"strings"
)

// Store is a path-addressable nested key/value container.
type Store struct {
	data map[string]interface{}
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]interface{})}
}

// NewFrom creates a store seeded with a deep copy of the given mapping.
func NewFrom(data map[string]interface{}) *Store {
	s := New()
	s.LoadMap(data)
	return s
}

// Get returns the value at the dotted path, or def when the path is absent.
func (s *Store) Get(path string, def interface{}) interface{} {
	if path == "" {
		return def
	}

	node := s.data
	parts := strings.Split(path, ".")
	for i, part := range parts {
		value, ok := node[part]
		if !ok {
			return def
		}
		if i == len(parts)-1 {
			return value
		}
		child, ok := value.(map[string]interface{})
		if !ok {
			return def
		}
		node = child
	}
	return def
}

// Set stores a value at the dotted path, creating intermediate maps as
// needed. A non-map value on the way is replaced by a map.
func (s *Store) Set(path string, value interface{}) {
	if path == "" {
		return
	}

	node := s.data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

// Delete removes the value at the dotted path. Missing paths are a no-op.
func (s *Store) Delete(path string) {
	if path == "" {
		return
	}

	node := s.data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			return
		}
		node = child
	}
	delete(node, parts[len(parts)-1])
}

// Has reports whether a value exists at the dotted path.
func (s *Store) Has(path string) bool {
	sentinel := &struct{}{}
	return s.Get(path, sentinel) != interface{}(sentinel)
}

// Len returns the number of top-level keys.
func (s *Store) Len() int {
	return len(s.data)
}

// ToMap exports the store contents as a deep-copied plain mapping.
func (s *Store) ToMap() map[string]interface{} {
	return deepCopyMap(s.data)
}

// LoadMap replaces the store contents with a deep copy of the given mapping.
// A nil mapping clears the store.
func (s *Store) LoadMap(data map[string]interface{}) {
	if data == nil {
		s.data = make(map[string]interface{})
		return
	}
	s.data = deepCopyMap(data)
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	return &Store{data: deepCopyMap(s.data)}
}

// View returns a read-only view over the store.
func (s *Store) View() View {
	return View{store: s}
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(value)
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
