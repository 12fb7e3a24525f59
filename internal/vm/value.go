package vm

import (
	"bytes"
	"math"
)

// ValueType identifies the active variant of a Value.
type ValueType uint8

const (
	ValNull ValueType = iota
	ValInt
	ValFloat
	ValBool
	ValStr // borrowed byte slice (bytecode data section or string pool)
	ValRef // shared handle to a heap object
)

func (t ValueType) String() string {
	switch t {
	case ValNull:
		return "null"
	case ValInt:
		return "int"
	case ValFloat:
		return "float"
	case ValBool:
		return "bool"
	case ValStr:
		return "string"
	case ValRef:
		return "ref"
	default:
		return "<?>"
	}
}

// Value is a stack-allocated tagged union. Small primitives (Int, Float,
// Bool, Null) live entirely in Data and never touch the heap. Str borrows
// its bytes from storage that outlives the run (the bytecode image or the
// string pool); Ref shares a counted heap object.
type Value struct {
	Type ValueType
	Data uint64  // int64 bits, float64 bits, or bool (0/1)
	Str  []byte  // ValStr only; borrowed, never owned
	Obj  *Object // ValRef only
}

// Constructors

func NullVal() Value {
	return Value{Type: ValNull}
}

func IntVal(v int64) Value {
	return Value{Type: ValInt, Data: uint64(v)}
}

func FloatVal(v float64) Value {
	return Value{Type: ValFloat, Data: math.Float64bits(v)}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func StrVal(b []byte) Value {
	return Value{Type: ValStr, Str: b}
}

func RefVal(o *Object) Value {
	return Value{Type: ValRef, Obj: o}
}

// Accessors

func (v Value) AsInt() int64 {
	return int64(v.Data)
}

func (v Value) AsFloat() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) AsBool() bool {
	return v.Data == 1
}

// Type checking helpers

func (v Value) IsInt() bool   { return v.Type == ValInt }
func (v Value) IsFloat() bool { return v.Type == ValFloat }
func (v Value) IsBool() bool  { return v.Type == ValBool }
func (v Value) IsNull() bool  { return v.Type == ValNull }
func (v Value) IsStr() bool   { return v.Type == ValStr }
func (v Value) IsRef() bool   { return v.Type == ValRef }

// IsNumeric reports whether v is an int or a float.
func (v Value) IsNumeric() bool {
	return v.Type == ValInt || v.Type == ValFloat
}

// IsTrue is the language's truthiness rule: Bool(true) alone is true.
// Nonzero numbers and non-empty collections are all false; JUMP_IF_FALSE
// and the short-circuit chains the compiler emits rely on this.
func (v Value) IsTrue() bool {
	return v.Type == ValBool && v.Data == 1
}

// strBytes returns the byte view of v when it behaves as a string: a Str
// directly, or a Buffer's current contents. ok is false for everything
// else.
func (v Value) strBytes() (b []byte, ok bool) {
	if v.Type == ValStr {
		return v.Str, true
	}
	if v.Type == ValRef && v.Obj.Type == ObjBuffer {
		return v.Obj.Buf, true
	}
	return nil, false
}

// Retain bumps the refcount of a ref value. No-op for scalars.
func (v Value) Retain() {
	if v.Type == ValRef && v.Obj != nil {
		v.Obj.Retain()
	}
}

// Release drops the refcount of a ref value. No-op for scalars.
func (v Value) Release() {
	if v.Type == ValRef && v.Obj != nil {
		v.Obj.Release()
	}
}

// TypeName returns the user-facing name of the value's kind, descending
// into the heap-object variant for refs.
func (v Value) TypeName() string {
	if v.Type != ValRef {
		return v.Type.String()
	}
	return v.Obj.Type.String()
}

// Equal implements the language's equality algorithm. It returns
// ErrIncompatible for pairs that have no defined equality; nested
// incompatibility inside lists coerces to false.
func Equal(a, b Value) (bool, error) {
	// Normalize: a Buffer compares as the Str of its current bytes.
	if ab, ok := a.strBytes(); ok {
		if bb, ok := b.strBytes(); ok {
			return bytes.Equal(ab, bb), nil
		}
		if b.IsNull() {
			return false, nil
		}
		return false, ErrIncompatible
	}

	switch a.Type {
	case ValInt:
		switch b.Type {
		case ValInt:
			return a.AsInt() == b.AsInt(), nil
		case ValFloat:
			return float64(a.AsInt()) == b.AsFloat(), nil
		case ValNull:
			return false, nil
		}
		return false, ErrIncompatible

	case ValFloat:
		switch b.Type {
		case ValFloat:
			return a.AsFloat() == b.AsFloat(), nil
		case ValInt:
			return a.AsFloat() == float64(b.AsInt()), nil
		case ValNull:
			return false, nil
		}
		return false, ErrIncompatible

	case ValBool:
		switch b.Type {
		case ValBool:
			return a.Data == b.Data, nil
		case ValNull:
			return false, nil
		}
		return false, ErrIncompatible

	case ValNull:
		// Null equals only null; against any other kind it is false,
		// never incompatible.
		return b.Type == ValNull, nil

	case ValRef:
		if b.IsNull() {
			return false, nil
		}
		if b.Type != ValRef {
			return false, ErrIncompatible
		}
		return equalObjects(a.Obj, b.Obj)
	}

	return false, ErrIncompatible
}

func equalObjects(a, b *Object) (bool, error) {
	switch {
	case a.Type == ObjList && b.Type == ObjList:
		if len(a.List) != len(b.List) {
			return false, nil
		}
		for i := range a.List {
			eq, err := Equal(a.List[i], b.List[i])
			if err != nil {
				// Nested incompatibility coerces to false.
				return false, nil
			}
			if !eq {
				return false, nil
			}
		}
		return true, nil

	case a.Type == ObjMap && b.Type == ObjMap:
		if a.Map.Len() != b.Map.Len() {
			return false, nil
		}
		equal := true
		a.Map.Range(func(k Key, v Value) bool {
			other, ok := b.Map.Get(k)
			if !ok {
				equal = false
				return false
			}
			eq, err := Equal(v, other)
			if err != nil || !eq {
				equal = false
				return false
			}
			return true
		})
		return equal, nil

	case a.Type == ObjMapEntry && b.Type == ObjMapEntry:
		keysEq, err := Equal(a.EntryKey.Value(), b.EntryKey.Value())
		if err != nil || !keysEq {
			return false, err
		}
		return Equal(*a.EntryValue, *b.EntryValue)

	case a.Type.isIterator() || b.Type.isIterator():
		// Iterators are never equal to anything, themselves included.
		return false, nil
	}

	return false, ErrIncompatible
}

// Ordering is the result of Order.
type Ordering int8

const (
	Less     Ordering = -1
	OrdEqual Ordering = 0
	Greater  Ordering = 1
)

func orderingOf(c int) Ordering {
	switch {
	case c < 0:
		return Less
	case c > 0:
		return Greater
	default:
		return OrdEqual
	}
}

// tagOrdinal fixes a deterministic cross-kind order used when numeric
// promotion does not apply. Iterators sort below every other ref kind.
func tagOrdinal(v Value) int {
	switch v.Type {
	case ValNull:
		return 1
	case ValBool:
		return 2
	case ValInt, ValFloat:
		return 3
	case ValStr:
		return 4
	case ValRef:
		switch v.Obj.Type {
		case ObjListIter, ObjMapIter:
			return 0
		case ObjBuffer:
			return 4
		case ObjList:
			return 5
		case ObjMap:
			return 6
		case ObjMapEntry:
			return 7
		}
	}
	return 8
}

// Order implements the language's total ordering. Cross-kind pairs first
// try numeric promotion, then fall back to the tag ordinal.
func Order(a, b Value) Ordering {
	// Numeric promotion.
	if a.IsNumeric() && b.IsNumeric() {
		if a.IsInt() && b.IsInt() {
			return orderingOf(compareInt64(a.AsInt(), b.AsInt()))
		}
		af, bf := a.AsFloat(), b.AsFloat()
		if a.IsInt() {
			af = float64(a.AsInt())
		}
		if b.IsInt() {
			bf = float64(b.AsInt())
		}
		switch {
		case af < bf:
			return Less
		case af > bf:
			return Greater
		default:
			return OrdEqual
		}
	}

	// Buffer orders as the Str of its bytes.
	if ab, ok := a.strBytes(); ok {
		if bb, ok := b.strBytes(); ok {
			return orderingOf(bytes.Compare(ab, bb))
		}
	}

	at, bt := tagOrdinal(a), tagOrdinal(b)
	if at != bt {
		return orderingOf(compareInt64(int64(at), int64(bt)))
	}

	switch a.Type {
	case ValNull:
		return OrdEqual
	case ValBool:
		// false < true
		return orderingOf(compareInt64(int64(a.Data), int64(b.Data)))
	case ValRef:
		return orderObjects(a.Obj, b.Obj)
	}
	return OrdEqual
}

func orderObjects(a, b *Object) Ordering {
	switch a.Type {
	case ObjList:
		if len(a.List) != len(b.List) {
			return orderingOf(compareInt64(int64(len(a.List)), int64(len(b.List))))
		}
		for i := range a.List {
			if ord := Order(a.List[i], b.List[i]); ord != OrdEqual {
				return ord
			}
		}
		return OrdEqual

	case ObjMap:
		// Shallow: entry count only.
		return orderingOf(compareInt64(int64(a.Map.Len()), int64(b.Map.Len())))

	case ObjMapEntry:
		if ord := Order(a.EntryKey.Value(), b.EntryKey.Value()); ord != OrdEqual {
			return ord
		}
		return Order(*a.EntryValue, *b.EntryValue)

	case ObjListIter, ObjMapIter:
		return OrdEqual
	}
	return OrdEqual
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

