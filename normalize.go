package xexchange

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var (
	ErrNonFiniteNumber  = errors.New("non-finite number")
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrCyclicValue      = errors.New("cyclic reference")
)

// Normalize flattens every nested associative container in d (*Data, Data,
// map[string]T, named map types) into plain map[string]any and every list
// into []any. The result contains no *Data and is safe to hand to encoding/json.
func Normalize(d *Data) (map[string]any, error) {
	if d == nil {
		return nil, nil
	}
	n := newNormalizer()
	v, err := n.data(d, "data")
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// normalizer tracks the containers on the current descent path; a container
// seen twice on one path is a cycle, shared siblings are fine.
type normalizer struct {
	stack map[uintptr]struct{}
}

func newNormalizer() *normalizer {
	return &normalizer{stack: make(map[uintptr]struct{})}
}

// dataKey identifies a Data by its backing map, which value copies share.
func dataKey(d *Data) uintptr {
	if d.values == nil {
		return 0
	}
	return reflect.ValueOf(d.values).Pointer()
}

func (n *normalizer) push(p uintptr, path string) error {
	if p == 0 {
		return nil
	}
	if _, ok := n.stack[p]; ok {
		return &EncodingError{Path: path, Err: ErrCyclicValue}
	}
	n.stack[p] = struct{}{}
	return nil
}

func (n *normalizer) pop(p uintptr) { delete(n.stack, p) }

func (n *normalizer) enter(d *Data) { n.stack[dataKey(d)] = struct{}{} }
func (n *normalizer) leave(d *Data) { n.pop(dataKey(d)) }

func childPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func (n *normalizer) data(d *Data, path string) (any, error) {
	p := dataKey(d)
	if err := n.push(p, path); err != nil {
		return nil, err
	}
	defer n.pop(p)

	out := make(map[string]any, d.Len())
	for _, k := range d.keys {
		v, err := n.value(d.values[k], childPath(path, k))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (n *normalizer) value(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t, nil
	case float64:
		return finite(t, t, path)
	case float32:
		return finite(t, float64(t), path)
	case *Data:
		if t == nil {
			return nil, nil
		}
		return n.data(t, path)
	case Data:
		return n.data(&t, path)
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, nil
	case json.RawMessage:
		if !json.Valid(t) {
			return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: invalid raw JSON", ErrUnsupportedValue)}
		}
		return t, nil
	case json.Marshaler, encoding.TextMarshaler:
		return t, nil
	}
	return n.reflectValue(reflect.ValueOf(v), path)
}

func finite(v any, f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodingError{Path: path, Err: ErrNonFiniteNumber}
	}
	return v, nil
}

func (n *normalizer) reflectValue(rv reflect.Value, path string) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Kind() == reflect.Pointer {
			p := rv.Pointer()
			if err := n.push(p, path); err != nil {
				return nil, err
			}
			defer n.pop(p)
		}
		return n.value(rv.Elem().Interface(), path)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: map key type %s", ErrUnsupportedValue, rv.Type().Key())}
		}
		if rv.IsNil() {
			return nil, nil
		}
		p := rv.Pointer()
		if err := n.push(p, path); err != nil {
			return nil, err
		}
		defer n.pop(p)
		out := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			k := it.Key().String()
			v, err := n.value(it.Value().Interface(), childPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface(), nil
		}
		if rv.Len() > 0 {
			p := rv.Pointer()
			if err := n.push(p, path); err != nil {
				return nil, err
			}
			defer n.pop(p)
		}
		return n.list(rv, path)

	case reflect.Array:
		return n.list(rv, path)

	case reflect.Bool, reflect.String, reflect.Struct,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Interface(), nil

	case reflect.Float32, reflect.Float64:
		return finite(rv.Interface(), rv.Float(), path)
	}
	return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())}
}

func (n *normalizer) list(rv reflect.Value, path string) (any, error) {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := n.value(rv.Index(i).Interface(), indexPath(path, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// marshalJSON encodes without HTML escaping and without the trailing newline json.Encoder adds.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
