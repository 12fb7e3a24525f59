package vm

import (
	"testing"
)

func newTestList(arena *Arena, elems ...Value) Value {
	return RefVal(arena.NewList(elems))
}

func newTestMap(arena *Arena, pairs ...[2]Value) Value {
	m := arena.NewMap(len(pairs))
	for _, p := range pairs {
		k, _ := KeyOf(p[0])
		m.Map.Set(k, p[1])
	}
	return RefVal(m)
}

func mustEqual(t *testing.T, a, b Value, expected bool) {
	t.Helper()
	got, err := Equal(a, b)
	if err != nil {
		t.Fatalf("Equal(%s, %s) unexpectedly incompatible", a.TypeName(), b.TypeName())
	}
	if got != expected {
		t.Errorf("Equal(%s, %s) = %t, want %t", a.TypeName(), b.TypeName(), got, expected)
	}
}

func mustIncompatible(t *testing.T, a, b Value) {
	t.Helper()
	if _, err := Equal(a, b); err != ErrIncompatible {
		t.Errorf("Equal(%s, %s) should be incompatible, got err=%v", a.TypeName(), b.TypeName(), err)
	}
}

func TestScalarEquality(t *testing.T) {
	mustEqual(t, IntVal(3), IntVal(3), true)
	mustEqual(t, IntVal(3), IntVal(4), false)
	mustEqual(t, FloatVal(1.5), FloatVal(1.5), true)
	mustEqual(t, BoolVal(true), BoolVal(true), true)
	mustEqual(t, BoolVal(true), BoolVal(false), false)
	mustEqual(t, NullVal(), NullVal(), true)

	// Cross-numeric comparison promotes the int.
	mustEqual(t, IntVal(2), FloatVal(2.0), true)
	mustEqual(t, FloatVal(2.5), IntVal(2), false)

	// Null against any other kind is false, never incompatible.
	mustEqual(t, NullVal(), IntVal(0), false)
	mustEqual(t, IntVal(0), NullVal(), false)
	mustEqual(t, StrVal([]byte("x")), NullVal(), false)

	// Everything else mismatched is incompatible.
	mustIncompatible(t, IntVal(1), BoolVal(true))
	mustIncompatible(t, StrVal([]byte("1")), IntVal(1))
}

func TestStringBufferEquality(t *testing.T) {
	arena := NewArena(0)
	str := StrVal([]byte("abc"))
	buf := RefVal(arena.NewBuffer([]byte("abc")))

	// A buffer compares as the string of its bytes, both ways.
	mustEqual(t, str, buf, true)
	mustEqual(t, buf, str, true)
	mustEqual(t, buf, RefVal(arena.NewBuffer([]byte("abd"))), false)
}

func TestListEquality(t *testing.T) {
	arena := NewArena(0)
	a := newTestList(arena, IntVal(1), IntVal(2))
	b := newTestList(arena, IntVal(1), IntVal(2))
	c := newTestList(arena, IntVal(1), IntVal(3))
	d := newTestList(arena, IntVal(1))

	mustEqual(t, a, b, true)
	mustEqual(t, a, c, false)
	mustEqual(t, a, d, false)

	// Nested incompatibility coerces to false instead of erroring.
	e := newTestList(arena, IntVal(1), BoolVal(true))
	f := newTestList(arena, IntVal(1), StrVal([]byte("x")))
	mustEqual(t, e, f, false)
}

func TestIteratorsNeverEqual(t *testing.T) {
	arena := NewArena(0)
	list := arena.NewList([]Value{IntVal(1)})
	it := RefVal(arena.NewListIterator(list))

	got, err := Equal(it, it)
	if err != nil {
		t.Fatalf("iterator self-equality should not be incompatible: %v", err)
	}
	if got {
		t.Error("an iterator must not equal itself")
	}
}

func TestEqualityReflexive(t *testing.T) {
	arena := NewArena(0)
	values := []Value{
		NullVal(),
		IntVal(-7),
		FloatVal(3.25),
		BoolVal(false),
		StrVal([]byte("hello")),
		RefVal(arena.NewBuffer([]byte("buf"))),
		newTestList(arena, IntVal(1), StrVal([]byte("x"))),
		newTestMap(arena, [2]Value{StrVal([]byte("k")), IntVal(1)}),
	}
	for _, v := range values {
		eq, err := Equal(v, v)
		if err != nil {
			t.Errorf("Equal(v, v) incompatible for %s", v.TypeName())
			continue
		}
		if !eq {
			t.Errorf("Equal(v, v) = false for %s", v.TypeName())
		}
		if Order(v, v) != OrdEqual {
			t.Errorf("Order(v, v) != Equal for %s", v.TypeName())
		}
	}
}

func TestOrdering(t *testing.T) {
	arena := NewArena(0)
	tests := []struct {
		name string
		a, b Value
		want Ordering
	}{
		{"ints", IntVal(1), IntVal(2), Less},
		{"int float promotion", IntVal(2), FloatVal(1.5), Greater},
		{"false before true", BoolVal(false), BoolVal(true), Less},
		{"null equals null", NullVal(), NullVal(), OrdEqual},
		{"strings lexicographic", StrVal([]byte("abc")), StrVal([]byte("abd")), Less},
		{"prefix orders first", StrVal([]byte("ab")), StrVal([]byte("abc")), Less},
		{"buffer vs string", RefVal(arena.NewBuffer([]byte("b"))), StrVal([]byte("a")), Greater},
		{
			"lists by length first",
			newTestList(arena, IntVal(9)),
			newTestList(arena, IntVal(1), IntVal(1)),
			Less,
		},
		{
			"equal-length lists element-wise",
			newTestList(arena, IntVal(1), IntVal(5)),
			newTestList(arena, IntVal(1), IntVal(2)),
			Greater,
		},
		{
			"maps shallow by count",
			newTestMap(arena, [2]Value{IntVal(1), IntVal(1)}),
			newTestMap(arena, [2]Value{IntVal(1), IntVal(1)}, [2]Value{IntVal(2), IntVal(2)}),
			Less,
		},
		{"cross kind by tag ordinal", NullVal(), IntVal(0), Less},
		{"bool below numbers", BoolVal(true), IntVal(-100), Less},
		{"numbers below strings", IntVal(100), StrVal([]byte("")), Less},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Order(tt.a, tt.b); got != tt.want {
				t.Errorf("Order() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIteratorsOrderBelowOtherRefs(t *testing.T) {
	arena := NewArena(0)
	list := arena.NewList([]Value{})
	it := RefVal(arena.NewListIterator(list))

	if Order(it, RefVal(list)) != Less {
		t.Error("iterators should order below other ref kinds")
	}
	it2 := RefVal(arena.NewMapIterator(arena.NewMap(0)))
	if Order(it, it2) != OrdEqual {
		t.Error("iterators should order equal among themselves")
	}
}

func TestEqualImpliesOrderEqual(t *testing.T) {
	arena := NewArena(0)
	pairs := [][2]Value{
		{IntVal(5), IntVal(5)},
		{IntVal(5), FloatVal(5)},
		{StrVal([]byte("s")), RefVal(arena.NewBuffer([]byte("s")))},
		{newTestList(arena, IntVal(1)), newTestList(arena, IntVal(1))},
	}
	for _, p := range pairs {
		eq, err := Equal(p[0], p[1])
		if err != nil || !eq {
			t.Fatalf("pair should be equal: %+v", p)
		}
		if Order(p[0], p[1]) != OrdEqual {
			t.Errorf("equal values must order Equal: %s vs %s", p[0].TypeName(), p[1].TypeName())
		}
	}
}

func TestTruthiness(t *testing.T) {
	arena := NewArena(0)
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"true", BoolVal(true), true},
		{"false", BoolVal(false), false},
		{"nonzero int is not truthy", IntVal(1), false},
		{"nonzero float is not truthy", FloatVal(1), false},
		{"null", NullVal(), false},
		{"non-empty string is not truthy", StrVal([]byte("x")), false},
		{"non-empty list is not truthy", newTestList(arena, IntVal(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsTrue(); got != tt.want {
				t.Errorf("IsTrue() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestRefcountSharing(t *testing.T) {
	arena := NewArena(0)
	inner := arena.NewList([]Value{IntVal(1)})

	// Two lists sharing the inner list.
	innerRef := RefVal(inner)
	innerRef.Retain()
	outer1 := arena.NewList([]Value{innerRef})
	innerRef.Retain()
	outer2 := arena.NewList([]Value{innerRef})

	if inner.Refs() != 3 {
		t.Fatalf("shared substructure refcount wrong. got=%d, want=3", inner.Refs())
	}
	RefVal(outer1).Release()
	if inner.Refs() != 2 {
		t.Errorf("after releasing one holder. got=%d, want=2", inner.Refs())
	}
	RefVal(outer2).Release()
	if inner.Refs() != 1 {
		t.Errorf("after releasing both holders. got=%d, want=1", inner.Refs())
	}
}
