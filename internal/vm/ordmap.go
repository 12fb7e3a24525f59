package vm

import (
	"bytes"
	"encoding/binary"

	"github.com/zeebo/wyhash"
)

// Key is a map key: a 64-bit int or a byte string. Keys of different kinds
// are never equal, even when the string spells the integer.
type Key struct {
	IsInt bool
	Int   int64
	Str   []byte
}

func IntKey(v int64) Key {
	return Key{IsInt: true, Int: v}
}

func StrKey(b []byte) Key {
	return Key{Str: b}
}

// Hash runs Wyhash over the raw bytes of the key: the 8 little-endian
// bytes of the integer, or the string bytes as-is.
func (k Key) Hash() uint64 {
	if k.IsInt {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(k.Int))
		return wyhash.Hash(buf[:], 0)
	}
	return wyhash.Hash(k.Str, 0)
}

// Equals reports key equality. Kind mismatches are always false.
func (k Key) Equals(other Key) bool {
	if k.IsInt != other.IsInt {
		return false
	}
	if k.IsInt {
		return k.Int == other.Int
	}
	return bytes.Equal(k.Str, other.Str)
}

// Value returns the key as a VM value.
func (k Key) Value() Value {
	if k.IsInt {
		return IntVal(k.Int)
	}
	return StrVal(k.Str)
}

// KeyOf converts a VM value to a map key. ok is false for kinds that
// cannot key a map.
func KeyOf(v Value) (Key, bool) {
	switch v.Type {
	case ValInt:
		return IntKey(v.AsInt()), true
	case ValStr:
		return StrKey(v.Str), true
	case ValRef:
		if v.Obj.Type == ObjBuffer {
			return StrKey(v.Obj.Buf), true
		}
	}
	return Key{}, false
}

// mapSlot is one entry in insertion order. Deleted entries leave a dead
// slot behind so that live entries never move.
type mapSlot struct {
	key   Key
	value Value
	dead  bool
}

// OrderedMap is an insertion-ordered mapping from Key to Value. Lookup
// goes through a Wyhash index; iteration walks the slot array in order.
// Re-inserting an existing key updates its slot in place.
type OrderedMap struct {
	slots []mapSlot
	index map[uint64][]int32
	count int
}

// NewOrderedMap creates an empty map with room for sizeHint entries.
func NewOrderedMap(sizeHint int) *OrderedMap {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &OrderedMap{
		slots: make([]mapSlot, 0, sizeHint),
		index: make(map[uint64][]int32, sizeHint),
	}
}

// Len returns the number of live entries.
func (m *OrderedMap) Len() int {
	return m.count
}

func (m *OrderedMap) find(k Key) int32 {
	for _, idx := range m.index[k.Hash()] {
		s := &m.slots[idx]
		if !s.dead && s.key.Equals(k) {
			return idx
		}
	}
	return -1
}

// Get returns the value for k.
func (m *OrderedMap) Get(k Key) (Value, bool) {
	if idx := m.find(k); idx >= 0 {
		return m.slots[idx].value, true
	}
	return Value{}, false
}

// Set inserts or updates k. An existing entry keeps its ordered position.
func (m *OrderedMap) Set(k Key, v Value) {
	if idx := m.find(k); idx >= 0 {
		m.slots[idx].value = v
		return
	}
	m.slots = append(m.slots, mapSlot{key: k, value: v})
	h := k.Hash()
	m.index[h] = append(m.index[h], int32(len(m.slots)-1))
	m.count++
}

// Delete removes k. The slot is tombstoned; later entries keep their
// positions. Returns the removed value.
func (m *OrderedMap) Delete(k Key) (Value, bool) {
	idx := m.find(k)
	if idx < 0 {
		return Value{}, false
	}
	s := &m.slots[idx]
	v := s.value
	s.dead = true
	s.value = Value{}
	m.count--
	return v, true
}

// Range calls fn for every live entry in insertion order until fn returns
// false.
func (m *OrderedMap) Range(fn func(k Key, v Value) bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.dead {
			continue
		}
		if !fn(s.key, s.value) {
			return
		}
	}
}

// slotCount returns the raw slot-array length (dead slots included); map
// iterators cursor over this range.
func (m *OrderedMap) slotCount() int {
	return len(m.slots)
}

// slotAt returns the slot at raw index i, or nil when it is dead.
func (m *OrderedMap) slotAt(i int) *mapSlot {
	if i < 0 || i >= len(m.slots) || m.slots[i].dead {
		return nil
	}
	return &m.slots[i]
}
