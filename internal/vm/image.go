package vm

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"github.com/veyor/stencil/internal/config"
)

// HeaderSize is the fixed byte length of the image header:
//
//	bytes 0..4: little-endian u32 code_section_end (== 8 + code length)
//	bytes 4..8: little-endian u32 entry_offset (relative to code section)
const HeaderSize = 8

// funcDescriptorSize is the data-section footprint of a function
// descriptor: u8 arity + u32 code offset.
const funcDescriptorSize = 5

// Image is a compiled template: an immutable byte buffer holding the
// header, the code section, and the data section. Multiple VM instances
// may share one image across goroutines; nothing here mutates after
// NewImage.
type Image struct {
	raw  []byte
	code []byte // raw[HeaderSize:codeEnd]
	data []byte // raw[codeEnd:]

	entry int // entry offset within the code section
}

// NewImage validates the header and section boundaries of a serialized
// image and wraps it without copying.
func NewImage(raw []byte) (*Image, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("image too short: %d bytes (want at least %d)", len(raw), HeaderSize)
	}
	codeEnd := int(binary.LittleEndian.Uint32(raw[0:4]))
	entry := int(binary.LittleEndian.Uint32(raw[4:8]))

	if codeEnd < HeaderSize || codeEnd > len(raw) {
		return nil, fmt.Errorf("invalid code section end %d (image is %d bytes)", codeEnd, len(raw))
	}
	code := raw[HeaderSize:codeEnd]
	if entry > len(code) {
		return nil, fmt.Errorf("entry offset %d outside code section (%d bytes)", entry, len(code))
	}

	return &Image{
		raw:   raw,
		code:  code,
		data:  raw[codeEnd:],
		entry: entry,
	}, nil
}

// Bytes returns the full serialized image.
func (im *Image) Bytes() []byte {
	return im.raw
}

// Code returns the code section.
func (im *Image) Code() []byte {
	return im.code
}

// Data returns the data section.
func (im *Image) Data() []byte {
	return im.data
}

// Entry returns the main-script entry offset within the code section.
func (im *Image) Entry() int {
	return im.entry
}

// StringAt reads the string literal at offset off in the data section:
// a u32 end offset (absolute within the data section, pointing past the
// last byte) followed by the raw bytes. The returned slice aliases the
// image.
func (im *Image) StringAt(off int) ([]byte, error) {
	if off < 0 || off+4 > len(im.data) {
		return nil, fmt.Errorf("string offset %d outside data section (%d bytes)", off, len(im.data))
	}
	end := int(binary.LittleEndian.Uint32(im.data[off : off+4]))
	if end < off+4 || end > len(im.data) {
		return nil, fmt.Errorf("string at %d has invalid end %d (data section is %d bytes)", off, end, len(im.data))
	}
	return im.data[off+4 : end], nil
}

// FunctionAt reads the function descriptor at offset off in the data
// section: u8 arity followed by a u32 code offset.
func (im *Image) FunctionAt(off int) (arity int, codeOffset int, err error) {
	if off < 0 || off+funcDescriptorSize > len(im.data) {
		return 0, 0, fmt.Errorf("function descriptor offset %d outside data section (%d bytes)", off, len(im.data))
	}
	arity = int(im.data[off])
	codeOffset = int(binary.LittleEndian.Uint32(im.data[off+1 : off+funcDescriptorSize]))
	if codeOffset > len(im.code) {
		return 0, 0, fmt.Errorf("function at %d points outside code section (%d > %d)", off, codeOffset, len(im.code))
	}
	return arity, codeOffset, nil
}

// ImageWriter builds an image incrementally: the compiler appends code
// bytes and data-section entries, then calls Finish. All narrowing casts
// go through safecast so a template large enough to overflow an operand
// fails loudly instead of truncating.
type ImageWriter struct {
	code []byte
	data []byte

	entry uint32

	// strings dedupes identical literals to one data-section entry.
	strings map[string]uint32
	dedupe  bool
}

// NewImageWriter creates a writer with the configured initial buffer
// sizes.
func NewImageWriter() *ImageWriter {
	w := &ImageWriter{
		code:   make([]byte, 0, config.InitialCodeSize),
		data:   make([]byte, 0, config.InitialDataSize),
		dedupe: config.DeduplicateStringLiterals,
	}
	if w.dedupe {
		w.strings = make(map[string]uint32)
	}
	return w
}

// Pos returns the current code-section write offset.
func (w *ImageWriter) Pos() int {
	return len(w.code)
}

// SetEntry records the main-script entry offset.
func (w *ImageWriter) SetEntry(off int) error {
	v, err := safecast.Conv[uint32](off)
	if err != nil {
		return fmt.Errorf("entry offset overflows u32: %w", err)
	}
	w.entry = v
	return nil
}

// EmitOp appends an opcode byte.
func (w *ImageWriter) EmitOp(op Opcode) {
	w.code = append(w.code, byte(op))
}

// EmitByte appends a raw operand byte.
func (w *ImageWriter) EmitByte(b byte) {
	w.code = append(w.code, b)
}

// EmitU16 appends a little-endian u16 operand.
func (w *ImageWriter) EmitU16(v uint16) {
	w.code = binary.LittleEndian.AppendUint16(w.code, v)
}

// EmitI16 appends a little-endian i16 operand.
func (w *ImageWriter) EmitI16(v int16) {
	w.code = binary.LittleEndian.AppendUint16(w.code, uint16(v))
}

// EmitU32 appends a little-endian u32 operand.
func (w *ImageWriter) EmitU32(v uint32) {
	w.code = binary.LittleEndian.AppendUint32(w.code, v)
}

// EmitU64 appends a little-endian u64 operand.
func (w *ImageWriter) EmitU64(v uint64) {
	w.code = binary.LittleEndian.AppendUint64(w.code, v)
}

// EmitLocal appends a local-slot index at the configured width.
func (w *ImageWriter) EmitLocal(slot int) error {
	if config.LocalIndexWidth == 1 {
		b, err := safecast.Conv[uint8](slot)
		if err != nil {
			return fmt.Errorf("local slot %d overflows operand width: %w", slot, err)
		}
		w.EmitByte(b)
		return nil
	}
	v, err := safecast.Conv[uint16](slot)
	if err != nil {
		return fmt.Errorf("local slot %d overflows operand width: %w", slot, err)
	}
	w.EmitU16(v)
	return nil
}

// PatchI16 overwrites the two bytes at off with a little-endian i16.
func (w *ImageWriter) PatchI16(off int, v int16) {
	binary.LittleEndian.PutUint16(w.code[off:off+2], uint16(v))
}

// PatchU32 overwrites the four bytes at off with a little-endian u32.
// The compiler uses this to resolve CALL operands once a partial's
// descriptor exists.
func (w *ImageWriter) PatchU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.code[off:off+4], v)
}

// AddString appends (or reuses) a string literal in the data section and
// returns its offset for CONSTANT_STRING.
func (w *ImageWriter) AddString(s string) (uint32, error) {
	if w.dedupe {
		if off, ok := w.strings[s]; ok {
			return off, nil
		}
	}
	off, err := safecast.Conv[uint32](len(w.data))
	if err != nil {
		return 0, fmt.Errorf("data section overflows u32: %w", err)
	}
	end, err := safecast.Conv[uint32](len(w.data) + 4 + len(s))
	if err != nil {
		return 0, fmt.Errorf("string end offset overflows u32: %w", err)
	}
	w.data = binary.LittleEndian.AppendUint32(w.data, end)
	w.data = append(w.data, s...)
	if w.dedupe {
		w.strings[s] = off
	}
	return off, nil
}

// AddFunction appends a function descriptor and returns its offset for
// CALL.
func (w *ImageWriter) AddFunction(arity int, codeOffset int) (uint32, error) {
	off, err := safecast.Conv[uint32](len(w.data))
	if err != nil {
		return 0, fmt.Errorf("data section overflows u32: %w", err)
	}
	arityByte, err := safecast.Conv[uint8](arity)
	if err != nil {
		return 0, fmt.Errorf("arity %d overflows u8: %w", arity, err)
	}
	codeOff, err := safecast.Conv[uint32](codeOffset)
	if err != nil {
		return 0, fmt.Errorf("code offset overflows u32: %w", err)
	}
	w.data = append(w.data, arityByte)
	w.data = binary.LittleEndian.AppendUint32(w.data, codeOff)
	return off, nil
}

// Finish assembles the final image: header, code section, data section.
func (w *ImageWriter) Finish() ([]byte, error) {
	codeEnd, err := safecast.Conv[uint32](HeaderSize + len(w.code))
	if err != nil {
		return nil, fmt.Errorf("code section overflows u32: %w", err)
	}
	out := make([]byte, 0, HeaderSize+len(w.code)+len(w.data))
	out = binary.LittleEndian.AppendUint32(out, codeEnd)
	out = binary.LittleEndian.AppendUint32(out, w.entry)
	out = append(out, w.code...)
	out = append(out, w.data...)
	return out, nil
}
