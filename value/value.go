// Package value implements the JSON-compatible value surface carried across
// the bridge boundary: strings, numbers, booleans, null, ordered lists, and
// string-keyed maps, represented as a tagged variant so validation dispatches
// on type tags instead of runtime reflection.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c360/bridgekit/errors"
)

// Type tags a Value with its runtime type. TypeAny is a signature-only
// wildcard; no Value ever carries it.
type Type int

const (
	// TypeNull is the null value.
	TypeNull Type = iota
	// TypeBool is a boolean.
	TypeBool
	// TypeNumber is a float64, matching scripting-boundary number semantics.
	TypeNumber
	// TypeString is a UTF-8 string.
	TypeString
	// TypeList is an ordered list of values.
	TypeList
	// TypeMap is a string-keyed mapping of values.
	TypeMap
	// TypeAny matches every value type in a signature position.
	TypeAny
)

// String returns the name used in signatures and error messages.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypeAny:
		return "any"
	default:
		return "unknown"
	}
}

// Value is an immutable tagged variant over the JSON-compatible type set.
// The zero value is null.
type Value struct {
	typ  Type
	b    bool
	num  float64
	str  string
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value {
	return Value{typ: TypeNull}
}

// NewBool returns a boolean value.
func NewBool(b bool) Value {
	return Value{typ: TypeBool, b: b}
}

// NewNumber returns a number value.
func NewNumber(n float64) Value {
	return Value{typ: TypeNumber, num: n}
}

// NewString returns a string value.
func NewString(s string) Value {
	return Value{typ: TypeString, str: s}
}

// NewList returns a list value. The items slice is copied.
func NewList(items ...Value) Value {
	copied := make([]Value, len(items))
	copy(copied, items)
	return Value{typ: TypeList, list: copied}
}

// NewMap returns a map value. The entries map is copied.
func NewMap(entries map[string]Value) Value {
	copied := make(map[string]Value, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return Value{typ: TypeMap, m: copied}
}

// Type returns the value's type tag.
func (v Value) Type() Type {
	return v.typ
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.typ == TypeNull
}

// BoolVal returns the boolean payload or a type mismatch error.
func (v Value) BoolVal() (bool, error) {
	if v.typ != TypeBool {
		return false, errors.Newf(errors.KindTypeMismatch, "Value", "BoolVal",
			"expected bool, got %s", v.typ)
	}
	return v.b, nil
}

// NumberVal returns the number payload or a type mismatch error.
func (v Value) NumberVal() (float64, error) {
	if v.typ != TypeNumber {
		return 0, errors.Newf(errors.KindTypeMismatch, "Value", "NumberVal",
			"expected number, got %s", v.typ)
	}
	return v.num, nil
}

// StringVal returns the string payload or a type mismatch error.
func (v Value) StringVal() (string, error) {
	if v.typ != TypeString {
		return "", errors.Newf(errors.KindTypeMismatch, "Value", "StringVal",
			"expected string, got %s", v.typ)
	}
	return v.str, nil
}

// ListVal returns a copy of the list payload or a type mismatch error.
func (v Value) ListVal() ([]Value, error) {
	if v.typ != TypeList {
		return nil, errors.Newf(errors.KindTypeMismatch, "Value", "ListVal",
			"expected list, got %s", v.typ)
	}
	copied := make([]Value, len(v.list))
	copy(copied, v.list)
	return copied, nil
}

// MapVal returns a copy of the map payload or a type mismatch error.
func (v Value) MapVal() (map[string]Value, error) {
	if v.typ != TypeMap {
		return nil, errors.Newf(errors.KindTypeMismatch, "Value", "MapVal",
			"expected map, got %s", v.typ)
	}
	copied := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		copied[k] = item
	}
	return copied, nil
}

// Len returns the element count for lists and maps, zero otherwise.
func (v Value) Len() int {
	switch v.typ {
	case TypeList:
		return len(v.list)
	case TypeMap:
		return len(v.m)
	default:
		return 0
	}
}

// At returns the list element at index i. Out-of-range lookups and non-list
// values return null.
func (v Value) At(i int) Value {
	if v.typ != TypeList || i < 0 || i >= len(v.list) {
		return Null()
	}
	return v.list[i]
}

// Get returns the map entry for key and whether it was present.
func (v Value) Get(key string) (Value, bool) {
	if v.typ != TypeMap {
		return Null(), false
	}
	item, ok := v.m[key]
	return item, ok
}

// Equal reports deep equality. Numbers compare by float64 equality; maps
// compare by key set and per-key equality.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool:
		return v.b == other.b
	case TypeNumber:
		return v.num == other.num
	case TypeString:
		return v.str == other.str
	case TypeList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			otherItem, ok := other.m[k]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for logs and error messages. Map keys are sorted
// so output is stable.
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeNumber:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v.num), "0"), ".")
	case TypeString:
		return fmt.Sprintf("%q", v.str)
	case TypeList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, v.m[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "unknown"
	}
}

// FromGo converts a Go value into a bridge Value. Supported inputs are nil,
// bool, all integer and float widths, string, []any, map[string]any, and
// already-converted Value/[]Value/map[string]Value. Anything else is a type
// mismatch.
func FromGo(goval any) (Value, error) {
	switch tv := goval.(type) {
	case nil:
		return Null(), nil
	case Value:
		return tv, nil
	case bool:
		return NewBool(tv), nil
	case float64:
		return NewNumber(tv), nil
	case float32:
		return NewNumber(float64(tv)), nil
	case int:
		return NewNumber(float64(tv)), nil
	case int8:
		return NewNumber(float64(tv)), nil
	case int16:
		return NewNumber(float64(tv)), nil
	case int32:
		return NewNumber(float64(tv)), nil
	case int64:
		return NewNumber(float64(tv)), nil
	case uint:
		return NewNumber(float64(tv)), nil
	case uint8:
		return NewNumber(float64(tv)), nil
	case uint16:
		return NewNumber(float64(tv)), nil
	case uint32:
		return NewNumber(float64(tv)), nil
	case uint64:
		return NewNumber(float64(tv)), nil
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return Null(), errors.WrapKind(errors.KindTypeMismatch, err, "Value", "FromGo", "number parse")
		}
		return NewNumber(f), nil
	case string:
		return NewString(tv), nil
	case []Value:
		return NewList(tv...), nil
	case []any:
		items := make([]Value, len(tv))
		for i, raw := range tv {
			item, err := FromGo(raw)
			if err != nil {
				return Null(), err
			}
			items[i] = item
		}
		return Value{typ: TypeList, list: items}, nil
	case map[string]Value:
		return NewMap(tv), nil
	case map[string]any:
		entries := make(map[string]Value, len(tv))
		for k, raw := range tv {
			item, err := FromGo(raw)
			if err != nil {
				return Null(), err
			}
			entries[k] = item
		}
		return Value{typ: TypeMap, m: entries}, nil
	default:
		return Null(), errors.Newf(errors.KindTypeMismatch, "Value", "FromGo",
			"unsupported Go type %T", goval)
	}
}

// MustFromGo converts like FromGo and panics on unsupported types. Intended
// for literals in module registration code where the input is static.
func MustFromGo(goval any) Value {
	v, err := FromGo(goval)
	if err != nil {
		panic(err)
	}
	return v
}

// Export converts the value back to plain Go types (nil, bool, float64,
// string, []any, map[string]any), suitable for JSON encoders and scripting
// engines.
func (v Value) Export() any {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeBool:
		return v.b
	case TypeNumber:
		return v.num
	case TypeString:
		return v.str
	case TypeList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Export()
		}
		return items
	case TypeMap:
		entries := make(map[string]any, len(v.m))
		for k, item := range v.m {
			entries[k] = item.Export()
		}
		return entries
	default:
		return nil
	}
}

// MarshalJSON encodes the value as plain JSON; the type tag is implicit in
// the JSON structure.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Export())
}

// UnmarshalJSON decodes plain JSON into a tagged value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromGo(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
