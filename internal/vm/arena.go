package vm

import "fmt"

// objectSlabSize is the number of Object cells per slab.
const objectSlabSize = 64

// objectCost approximates the in-memory footprint of one Object cell for
// budget accounting.
const objectCost = 96

// Arena is the per-run allocator. Every heap object, byte buffer, and
// error description the VM creates during Run comes from here, and all of
// it is released together by Reset at VM teardown. No heap object outlives
// a single render, which is what makes this legal.
//
// Exceeding the byte budget panics with errArenaExhausted; the run loop
// converts that into an OutOfMemory RuntimeError.
type Arena struct {
	limit int
	used  int

	slabs [][]Object
	next  int // next free cell in the last slab
}

// NewArena creates an arena with the given byte budget. A non-positive
// limit means unbounded.
func NewArena(limit int) *Arena {
	return &Arena{limit: limit}
}

// Used returns the number of budget bytes consumed so far.
func (a *Arena) Used() int {
	return a.used
}

func (a *Arena) charge(n int) {
	a.used += n
	if a.limit > 0 && a.used > a.limit {
		panic(errArenaExhausted)
	}
}

// NewObject hands out a zeroed Object cell with an initial refcount of 1
// (the creator's reference).
func (a *Arena) NewObject(t ObjectType) *Object {
	a.charge(objectCost)
	if len(a.slabs) == 0 || a.next == objectSlabSize {
		a.slabs = append(a.slabs, make([]Object, objectSlabSize))
		a.next = 0
	}
	o := &a.slabs[len(a.slabs)-1][a.next]
	a.next++
	*o = Object{Type: t, refs: 1}
	return o
}

// NewList creates a list object around the given elements. The slice is
// adopted, not copied.
func (a *Arena) NewList(elems []Value) *Object {
	a.charge(16 * len(elems))
	o := a.NewObject(ObjList)
	o.List = elems
	return o
}

// NewMap creates an empty ordered map object.
func (a *Arena) NewMap(sizeHint int) *Object {
	a.charge(48 * sizeHint)
	o := a.NewObject(ObjMap)
	o.Map = NewOrderedMap(sizeHint)
	return o
}

// NewBuffer creates a growable byte-vector object seeded with b (adopted).
func (a *Arena) NewBuffer(b []byte) *Object {
	a.charge(len(b))
	o := a.NewObject(ObjBuffer)
	o.Buf = b
	return o
}

// NewListIterator creates an iterator over list, taking a strong reference
// to it.
func (a *Arena) NewListIterator(list *Object) *Object {
	o := a.NewObject(ObjListIter)
	o.Container = list
	list.Retain()
	return o
}

// NewMapIterator creates an iterator over m, taking a strong reference to
// it.
func (a *Arena) NewMapIterator(m *Object) *Object {
	o := a.NewObject(ObjMapIter)
	o.Container = m
	m.Retain()
	return o
}

// NewMapEntry creates an entry view over a live map slot, keeping the map
// alive through a strong reference.
func (a *Arena) NewMapEntry(m *Object, slot *mapSlot) *Object {
	o := a.NewObject(ObjMapEntry)
	o.EntryKey = &slot.key
	o.EntryValue = &slot.value
	o.Container = m
	m.Retain()
	return o
}

// AllocBytes charges n buffer bytes against the budget and returns a fresh
// slice. Buffer growth paths go through here so the budget sees them.
func (a *Arena) AllocBytes(n int) []byte {
	a.charge(n)
	return make([]byte, 0, n)
}

// Errorf formats a runtime error description against the arena budget.
func (a *Arena) Errorf(kind ErrorKind, format string, args ...interface{}) *RuntimeError {
	desc := fmt.Sprintf(format, args...)
	a.charge(len(desc))
	return &RuntimeError{Kind: kind, Description: desc}
}

// Reset frees everything at once. Outstanding refcounts become
// meaningless; callers must not touch values obtained from this arena
// afterwards.
func (a *Arena) Reset() {
	a.slabs = nil
	a.next = 0
	a.used = 0
}
