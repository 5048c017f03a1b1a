// Package variant implements the tagged dynamic value container used to
// carry event arguments through the hsm engine (see spec §6). It is a
// small, independent collaborator: the engine only ever stores, clones,
// and compares Values, never interprets their payload.
package variant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which payload a Value currently holds.
type Kind int

const (
	// Invalid is the zero value; an empty Value holds no payload.
	Invalid Kind = iota
	Int
	Uint
	Float
	Bool
	String
	Bytes
	List
	Map
	Pair
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case List:
		return "list"
	case Map:
		return "map"
	case Pair:
		return "pair"
	default:
		return "invalid"
	}
}

// Value is a tagged dynamic value. The zero Value is Invalid. Scalars are
// stored inline (i/u/f/b); only the composite kinds (String, Bytes, List,
// Map, Pair) carry a heap payload.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
	by   []byte
	list []Value
	pair *pairValue
	m    *orderedMap
}

type pairValue struct {
	first  Value
	second Value
}

// orderedMap preserves insertion order, which Keys exposes. Equal ignores
// entry order, and String renders entries sorted.
type orderedMap struct {
	keys []Value
	vals []Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{}
}

func (m *orderedMap) index(key Value) int {
	for i, k := range m.keys {
		if k.Equal(key) {
			return i
		}
	}
	return -1
}

func (m *orderedMap) set(key, val Value) {
	if idx := m.index(key); idx >= 0 {
		m.vals[idx] = val
		return
	}
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
}

func (m *orderedMap) get(key Value) (Value, bool) {
	if idx := m.index(key); idx >= 0 {
		return m.vals[idx], true
	}
	return Value{}, false
}

func (m *orderedMap) clone() *orderedMap {
	n := &orderedMap{
		keys: make([]Value, len(m.keys)),
		vals: make([]Value, len(m.vals)),
	}
	copy(n.keys, m.keys)
	copy(n.vals, m.vals)
	return n
}

// NewInt creates a Value holding a signed integer.
func NewInt(v int64) Value { return Value{kind: Int, i: v} }

// NewUint creates a Value holding an unsigned integer.
func NewUint(v uint64) Value { return Value{kind: Uint, u: v} }

// NewFloat creates a Value holding a 64-bit float.
func NewFloat(v float64) Value { return Value{kind: Float, f: v} }

// NewBool creates a Value holding a boolean.
func NewBool(v bool) Value { return Value{kind: Bool, b: v} }

// NewString creates a Value holding a string.
func NewString(v string) Value { return Value{kind: String, s: v} }

// NewBytes creates a Value holding a byte sequence. The slice is copied.
func NewBytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: Bytes, by: cp}
}

// NewList creates a Value holding an ordered list of Values.
func NewList(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: List, list: cp}
}

// NewPair creates a Value holding a pair of Values.
func NewPair(first, second Value) Value {
	return Value{kind: Pair, pair: &pairValue{first: first, second: second}}
}

// NewMap creates an empty ordered map Value. Use Set to populate it.
func NewMap() Value {
	return Value{kind: Map, m: newOrderedMap()}
}

// Kind returns the payload kind.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether the Value holds any payload.
func (v Value) IsValid() bool { return v.kind != Invalid }

// Set stores key->val in a Map Value. No-op if v is not a Map.
func (v Value) Set(key, val Value) {
	if v.kind == Map && v.m != nil {
		v.m.set(key, val)
	}
}

// Get looks up key in a Map Value.
func (v Value) Get(key Value) (Value, bool) {
	if v.kind != Map || v.m == nil {
		return Value{}, false
	}
	return v.m.get(key)
}

// Keys returns the ordered keys of a Map Value, nil otherwise.
func (v Value) Keys() []Value {
	if v.kind != Map || v.m == nil {
		return nil
	}
	out := make([]Value, len(v.m.keys))
	copy(out, v.m.keys)
	return out
}

// List returns the elements of a List Value, nil otherwise.
func (v Value) List() []Value {
	if v.kind != List {
		return nil
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out
}

// First returns the first element of a Pair Value.
func (v Value) First() Value {
	if v.kind != Pair || v.pair == nil {
		return Value{}
	}
	return v.pair.first
}

// Second returns the second element of a Pair Value.
func (v Value) Second() Value {
	if v.kind != Pair || v.pair == nil {
		return Value{}
	}
	return v.pair.second
}

// Int64 converts the Value to a signed 64-bit integer.
func (v Value) Int64() int64 {
	switch v.kind {
	case Int:
		return v.i
	case Uint:
		return int64(v.u)
	case Float:
		return int64(v.f)
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case String:
		n, _ := strconv.ParseInt(v.s, 10, 64)
		return n
	default:
		return 0
	}
}

// Uint64 converts the Value to an unsigned 64-bit integer.
func (v Value) Uint64() uint64 {
	switch v.kind {
	case Uint:
		return v.u
	case Int:
		return uint64(v.i)
	case Float:
		return uint64(v.f)
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case String:
		n, _ := strconv.ParseUint(v.s, 10, 64)
		return n
	default:
		return 0
	}
}

// Float64 converts the Value to a 64-bit float.
func (v Value) Float64() float64 {
	switch v.kind {
	case Float:
		return v.f
	case Int:
		return float64(v.i)
	case Uint:
		return float64(v.u)
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case String:
		f, _ := strconv.ParseFloat(v.s, 64)
		return f
	default:
		return 0
	}
}

// Bool converts the Value to a boolean.
func (v Value) Bool() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Uint:
		return v.u != 0
	case Float:
		return v.f != 0
	case String:
		return v.s != "" && v.s != "false" && v.s != "0"
	default:
		return false
	}
}

// String renders the Value as a string, used by the debug log (§6) to
// render event args.
func (v Value) String() string {
	switch v.kind {
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Uint:
		return strconv.FormatUint(v.u, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case String:
		return v.s
	case Bytes:
		return fmt.Sprintf("%x", v.by)
	case List:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case Pair:
		if v.pair == nil {
			return "(,)"
		}
		return "(" + v.pair.first.String() + "," + v.pair.second.String() + ")"
	case Map:
		if v.m == nil {
			return "{}"
		}
		keys := make([]string, len(v.m.keys))
		for i, k := range v.m.keys {
			keys[i] = k.String() + ":" + v.m.vals[i].String()
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ",") + "}"
	default:
		return "<invalid>"
	}
}

// StringSlice renders a slice of Values for the debug log (§6), which
// stores event args as plain strings.
func StringSlice(vs []Value) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

// Equal reports deep equality between two Values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Invalid:
		return true
	case Int:
		return v.i == other.i
	case Uint:
		return v.u == other.u
	case Float:
		return v.f == other.f
	case Bool:
		return v.b == other.b
	case String:
		return v.s == other.s
	case Bytes:
		if len(v.by) != len(other.by) {
			return false
		}
		for i := range v.by {
			if v.by[i] != other.by[i] {
				return false
			}
		}
		return true
	case List:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case Pair:
		if v.pair == nil || other.pair == nil {
			return v.pair == other.pair
		}
		return v.pair.first.Equal(other.pair.first) && v.pair.second.Equal(other.pair.second)
	case Map:
		if v.m == nil || other.m == nil {
			return v.m == other.m
		}
		if len(v.m.keys) != len(other.m.keys) {
			return false
		}
		for i, k := range v.m.keys {
			ov, ok := other.m.get(k)
			if !ok || !v.m.vals[i].Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Less orders two Values of the same kind; ordering across mismatched
// kinds falls back to comparing the Kind tag, so sorts stay total.
func (v Value) Less(other Value) bool {
	if v.kind != other.kind {
		return v.kind < other.kind
	}
	switch v.kind {
	case Int:
		return v.i < other.i
	case Uint:
		return v.u < other.u
	case Float:
		return v.f < other.f
	case Bool:
		return !v.b && other.b
	case String:
		return v.s < other.s
	case Bytes:
		return string(v.by) < string(other.by)
	default:
		return false
	}
}

// Clone returns an independent deep copy of the Value.
func (v Value) Clone() Value {
	switch v.kind {
	case Bytes:
		return NewBytes(v.by)
	case List:
		out := make([]Value, len(v.list))
		for i, e := range v.list {
			out[i] = e.Clone()
		}
		return Value{kind: List, list: out}
	case Pair:
		if v.pair == nil {
			return v
		}
		return NewPair(v.pair.first.Clone(), v.pair.second.Clone())
	case Map:
		if v.m == nil {
			return v
		}
		return Value{kind: Map, m: v.m.clone()}
	default:
		return v
	}
}
