package vm

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// SourceMapEntry maps a code-section offset to its template source
// position.
type SourceMapEntry struct {
	Offset uint32 `msgpack:"o"`
	Line   int32  `msgpack:"l"`
	Col    int32  `msgpack:"c"`
}

// SourceMap is the debug sidecar written next to an image at debug level
// "full". It lives in its own file so the image itself stays identical
// across debug levels (the DEBUG markers of level "minimal" excepted).
type SourceMap struct {
	Template string           `msgpack:"template"`
	Entries  []SourceMapEntry `msgpack:"entries"`
}

// Add appends a mapping. Entries must be added in increasing offset
// order.
func (sm *SourceMap) Add(offset int, line, col int) {
	sm.Entries = append(sm.Entries, SourceMapEntry{
		Offset: uint32(offset),
		Line:   int32(line),
		Col:    int32(col),
	})
}

// Lookup returns the source position of the instruction at or before
// offset, or (0, 0) when the map has no entry there.
func (sm *SourceMap) Lookup(offset int) (line, col int) {
	lo, hi := 0, len(sm.Entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if int(sm.Entries[mid].Offset) <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, 0
	}
	e := sm.Entries[lo-1]
	return int(e.Line), int(e.Col)
}

// Marshal serializes the source map.
func (sm *SourceMap) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(sm)
	if err != nil {
		return nil, fmt.Errorf("source map encoding failed: %w", err)
	}
	return data, nil
}

// UnmarshalSourceMap parses a serialized source map.
func UnmarshalSourceMap(data []byte) (*SourceMap, error) {
	var sm SourceMap
	if err := msgpack.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("source map decoding failed: %w", err)
	}
	return &sm, nil
}
