package xexchange

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Data is an insertion-ordered string-keyed map carrying event payloads.
// Values may be any JSON-compatible value, including nested *Data.
// The zero value is ready to use; a nil *Data means "no payload".
type Data struct {
	keys   []string
	values map[string]any
}

// NewData returns an empty payload map.
func NewData() *Data {
	return &Data{values: make(map[string]any)}
}

// DataFrom copies m into a new Data. Keys are ordered lexically since Go maps carry no order.
func DataFrom(m map[string]any) *Data {
	d := &Data{values: make(map[string]any, len(m)), keys: make([]string, 0, len(m))}
	for k := range m {
		d.keys = append(d.keys, k)
	}
	sort.Strings(d.keys)
	for _, k := range d.keys {
		d.values[k] = m[k]
	}
	return d
}

// Set stores v under key, keeping the original position of existing keys.
func (d *Data) Set(key string, v any) *Data {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Get returns the value stored under key.
func (d *Data) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Delete removes key and its position in the key order.
func (d *Data) Delete(key string) {
	if d == nil {
		return
	}
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Len is the number of keys.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns a copy of the keys in insertion order.
func (d *Data) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Data) Range(fn func(key string, v any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// MarshalJSON writes the top level in insertion order. Nested values are
// normalized first, so cyclic payloads fail instead of recursing forever.
// Defined on the value so Data fields held by value in structs encode too.
func (d Data) MarshalJSON() ([]byte, error) {
	n := newNormalizer()
	n.enter(&d)
	defer n.leave(&d)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		v, err := n.value(d.values[k], k)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalJSON(v)
		if err != nil {
			return nil, &EncodingError{Path: k, Err: err}
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
