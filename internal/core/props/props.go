// Package props implements the string key/value property bags attached to
// rooms, lobbies, and filter requests throughout the master server.
package props

// Properties is a mutable set of string key/value pairs.
type Properties map[string]string

// Clone returns a copy that can be mutated independently.
func (p Properties) Clone() Properties {
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Matches reports whether every key in filter is present in p with an equal
// value. An empty filter matches everything.
func (p Properties) Matches(filter Properties) bool {
	for k, want := range filter {
		if got, ok := p[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// Merge applies every pair from delta to p and returns the subset of delta
// that actually changed a value. Broadcasting the returned delta rather than
// a full snapshot keeps property-change events bounded.
func (p Properties) Merge(delta Properties) Properties {
	changed := make(Properties)
	for k, v := range delta {
		if existing, ok := p[k]; !ok || existing != v {
			p[k] = v
			changed[k] = v
		}
	}
	return changed
}
