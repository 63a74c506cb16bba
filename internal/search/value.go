package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Kind is the tag of a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Member is one key/value pair of an object, kept in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value as a tagged union. Objects keep their members in
// insertion order so traversal is reproducible.
type Value struct {
	kind    Kind
	text    string // string contents or number literal
	boolean bool
	items   []Value
	members []Member
}

func NullValue() Value { return Value{kind: Null} }
func BoolValue(b bool) Value { return Value{kind: Bool, boolean: b} }
func NumberValue(lit string) Value { return Value{kind: Number, text: lit} }
func StringValue(s string) Value { return Value{kind: String, text: s} }
func ArrayValue(items ...Value) Value {
	return Value{kind: Array, items: items}
}
func ObjectValue(members ...Member) Value {
	return Value{kind: Object, members: members}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) Text() string { return v.text }
func (v Value) Bool() bool { return v.boolean }
func (v Value) Items() []Value { return v.items }
func (v Value) Members() []Member { return v.members }
func (v Value) IsContainer() bool { return v.kind == Array || v.kind == Object }

// Get returns the first member with the given key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Decode parses a single JSON document preserving key order.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, domain.NewError(domain.KindDecode, "decode json", "", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, domain.NewError(domain.KindDecode, "decode json", "", fmt.Errorf("trailing data after document"))
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(members...), nil
		case '[':
			var items []Value
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t.String()), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return NullValue(), nil
	}
	return Value{}, fmt.Errorf("unexpected token %T", tok)
}

// FromAny converts an already decoded Go tree (maps, slices, scalars) into a
// Value. Map keys are sorted since Go maps carry no order. Types outside the
// JSON model are rejected as invalid input.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t.String()), nil
	case float64:
		return NumberValue(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case int:
		return NumberValue(strconv.Itoa(t)), nil
	case int64:
		return NumberValue(strconv.FormatInt(t, 10)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ArrayValue(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(t))
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Value{}, err
			}
			members = append(members, Member{Key: k, Value: v})
		}
		return ObjectValue(members...), nil
	}
	return Value{}, domain.NewError(domain.KindInvalidInput, "convert value", "", fmt.Errorf("unsupported type %T", x))
}

// Visitor is called for every value in depth-first order. key is the
// immediately enclosing object key, empty for array elements and the root.
// Returning false stops the walk.
type Visitor func(key string, v Value) bool

// Walk traverses v depth-first in document order.
func Walk(v Value, visit Visitor) {
	walk("", v, visit)
}

func walk(key string, v Value, visit Visitor) bool {
	if !visit(key, v) {
		return false
	}
	switch v.kind {
	case Object:
		for _, m := range v.members {
			if !walk(m.Key, m.Value, visit) {
				return false
			}
		}
	case Array:
		for _, item := range v.items {
			if !walk("", item, visit) {
				return false
			}
		}
	}
	return true
}
