package vm

import "math"

// ObjectType identifies the payload variant of a heap object.
type ObjectType uint8

const (
	ObjBuffer ObjectType = iota
	ObjMap
	ObjList
	ObjMapEntry
	ObjListIter
	ObjMapIter
)

func (t ObjectType) String() string {
	switch t {
	case ObjBuffer:
		return "buffer"
	case ObjMap:
		return "map"
	case ObjList:
		return "list"
	case ObjMapEntry:
		return "entry"
	case ObjListIter:
		return "list-iterator"
	case ObjMapIter:
		return "map-iterator"
	default:
		return "<?>"
	}
}

func (t ObjectType) isIterator() bool {
	return t == ObjListIter || t == ObjMapIter
}

// Object is a reference-counted heap cell. The arena owns the memory; the
// refcount exists to keep iterator semantics well-defined and to allow
// shared substructure within a single run. Exactly one payload group is
// active, selected by Type:
//
//	ObjBuffer:   Buf
//	ObjList:     List
//	ObjMap:      Map
//	ObjMapEntry: EntryKey, EntryValue, Container
//	ObjListIter: Index, Container
//	ObjMapIter:  Index, Container
type Object struct {
	Type ObjectType
	refs uint32

	Buf  []byte  // growable byte vector; equal to Str under comparison
	List []Value // ordered sequence
	Map  *OrderedMap

	// EntryKey/EntryValue point into a live map slot. They go stale if
	// the map is structurally mutated; the Container ref keeps the memory
	// reachable regardless.
	EntryKey   *Key
	EntryValue *Value

	// Index is the iterator cursor (next element for lists, next slot for
	// maps).
	Index int

	// Container holds a strong reference to the iterated or indexed-into
	// object so that `remove` during iteration can never dangle.
	Container *Object
}

// Retain bumps the strong-reference count.
func (o *Object) Retain() {
	if o.refs == math.MaxUint32 {
		// A counter this saturated can only come from a runaway loop;
		// pin the object for the rest of the run instead of wrapping.
		return
	}
	o.refs++
}

// Release drops the strong-reference count. Memory is not freed here (the
// arena owns it); a count reaching zero releases the object's own strong
// references so that counts stay coherent for the rest of the run.
func (o *Object) Release() {
	if o.refs == 0 || o.refs == math.MaxUint32 {
		return
	}
	o.refs--
	if o.refs > 0 {
		return
	}
	switch o.Type {
	case ObjList:
		for i := range o.List {
			o.List[i].Release()
		}
	case ObjMap:
		o.Map.Range(func(_ Key, v Value) bool {
			v.Release()
			return true
		})
	case ObjMapEntry, ObjListIter, ObjMapIter:
		if o.Container != nil {
			o.Container.Release()
		}
	}
}

// Refs exposes the current count (used by tests).
func (o *Object) Refs() uint32 {
	return o.refs
}

// Len returns the element count of a container object, -1 for
// non-containers.
func (o *Object) Len() int {
	switch o.Type {
	case ObjBuffer:
		return len(o.Buf)
	case ObjList:
		return len(o.List)
	case ObjMap:
		return o.Map.Len()
	default:
		return -1
	}
}
