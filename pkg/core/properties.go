package core

import "encoding/json"

// Properties is an ordered mapping of key to a list of string values.
//
// Properties are owned by the job; the framework persists them but never
// interprets them. Keys keep the position of their first insertion.
type Properties struct {
	entries []property
}

type property struct {
	key    string
	values []string
}

func (p *Properties) index(key string) int {
	for i := range p.entries {
		if p.entries[i].key == key {
			return i
		}
	}
	return -1
}

// Get returns a copy of the values stored under key, or nil.
func (p Properties) Get(key string) []string {
	if i := p.index(key); i >= 0 {
		return append([]string(nil), p.entries[i].values...)
	}
	return nil
}

// First returns the first value stored under key, or "".
func (p Properties) First(key string) string {
	if i := p.index(key); i >= 0 && len(p.entries[i].values) > 0 {
		return p.entries[i].values[0]
	}
	return ""
}

// Has reports whether key is present.
func (p Properties) Has(key string) bool {
	return p.index(key) >= 0
}

// Set replaces the values under key. An existing key keeps its position.
func (p *Properties) Set(key string, values ...string) {
	vals := append([]string{}, values...)
	if i := p.index(key); i >= 0 {
		p.entries[i].values = vals
		return
	}
	p.entries = append(p.entries, property{key: key, values: vals})
}

// Add appends one value to key, creating it if needed.
func (p *Properties) Add(key, value string) {
	if i := p.index(key); i >= 0 {
		p.entries[i].values = append(p.entries[i].values, value)
		return
	}
	p.entries = append(p.entries, property{key: key, values: []string{value}})
}

// Delete removes key.
func (p *Properties) Delete(key string) {
	if i := p.index(key); i >= 0 {
		p.entries = append(p.entries[:i], p.entries[i+1:]...)
	}
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of keys.
func (p Properties) Len() int { return len(p.entries) }

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	out := Properties{entries: make([]property, len(p.entries))}
	for i, e := range p.entries {
		out.entries[i] = property{key: e.key, values: append([]string{}, e.values...)}
	}
	return out
}

// Equal compares keys, order and values.
func (p Properties) Equal(o Properties) bool {
	if len(p.entries) != len(o.entries) {
		return false
	}
	for i := range p.entries {
		a, b := p.entries[i], o.entries[i]
		if a.key != b.key || len(a.values) != len(b.values) {
			return false
		}
		for j := range a.values {
			if a.values[j] != b.values[j] {
				return false
			}
		}
	}
	return true
}

type jsonProperty struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// MarshalJSON encodes the properties as an ordered list of key/values pairs.
func (p Properties) MarshalJSON() ([]byte, error) {
	out := make([]jsonProperty, len(p.entries))
	for i, e := range p.entries {
		out[i] = jsonProperty{Key: e.key, Values: e.values}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the list form written by MarshalJSON.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var in []jsonProperty
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.entries = nil
	for _, e := range in {
		p.Set(e.Key, e.Values...)
	}
	return nil
}
