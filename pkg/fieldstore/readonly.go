package fieldstore

// View is a capability-limited read-only view over a Store. It exposes only
// the read subset of the store interface; there is no way to mutate the
// underlying store through a View.
type View struct {
	store *Store
}

// Get returns the value at the dotted path, or def when the path is absent.
func (v View) Get(path string, def interface{}) interface{} {
	return v.store.Get(path, def)
}

// Has reports whether a value exists at the dotted path.
func (v View) Has(path string) bool {
	return v.store.Has(path)
}

// Len returns the number of top-level keys.
func (v View) Len() int {
	return v.store.Len()
}

// ToMap exports the viewed contents as a deep-copied plain mapping.
func (v View) ToMap() map[string]interface{} {
	return v.store.ToMap()
}
