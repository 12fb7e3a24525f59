package vm

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestImageRoundTrip(t *testing.T) {
	w := NewImageWriter()
	w.EmitOp(OP_CONSTANT_NULL)
	w.EmitOp(OP_RETURN)

	strOff, err := w.AddString("hello")
	if err != nil {
		t.Fatalf("AddString: %s", err)
	}
	fnOff, err := w.AddFunction(2, 1)
	if err != nil {
		t.Fatalf("AddFunction: %s", err)
	}
	if err := w.SetEntry(0); err != nil {
		t.Fatalf("SetEntry: %s", err)
	}

	raw, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %s", err)
	}

	// Header invariants.
	codeEnd := binary.LittleEndian.Uint32(raw[0:4])
	if int(codeEnd) != HeaderSize+2 {
		t.Errorf("code_section_end = %d, want %d", codeEnd, HeaderSize+2)
	}
	if entry := binary.LittleEndian.Uint32(raw[4:8]); entry != 0 {
		t.Errorf("entry_offset = %d, want 0", entry)
	}

	img, err := NewImage(raw)
	if err != nil {
		t.Fatalf("NewImage: %s", err)
	}
	if len(img.Code()) != 2 {
		t.Errorf("code length = %d, want 2", len(img.Code()))
	}

	s, err := img.StringAt(int(strOff))
	if err != nil {
		t.Fatalf("StringAt: %s", err)
	}
	if !bytes.Equal(s, []byte("hello")) {
		t.Errorf("string = %q, want hello", s)
	}

	arity, codeOff, err := img.FunctionAt(int(fnOff))
	if err != nil {
		t.Fatalf("FunctionAt: %s", err)
	}
	if arity != 2 || codeOff != 1 {
		t.Errorf("descriptor = (%d, %d), want (2, 1)", arity, codeOff)
	}
}

func TestStringDeduplication(t *testing.T) {
	w := NewImageWriter()
	a, err := w.AddString("repeated")
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.AddString("repeated")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical literals should share an offset. got %d and %d", a, b)
	}
	c, err := w.AddString("different")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("different literals must not share an offset")
	}
}

func TestStringEndOffsetLayout(t *testing.T) {
	// The u32 prefix is the absolute offset past the string, measured
	// from the start of the data section.
	w := NewImageWriter()
	w.EmitOp(OP_RETURN)
	off, err := w.AddString("abc")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetEntry(0); err != nil {
		t.Fatal(err)
	}
	raw, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	img, _ := NewImage(raw)
	data := img.Data()
	end := binary.LittleEndian.Uint32(data[off : off+4])
	if int(end) != int(off)+4+3 {
		t.Errorf("end offset = %d, want %d", end, int(off)+4+3)
	}
}

func TestStringAtRejectsBadOffsets(t *testing.T) {
	w := NewImageWriter()
	w.EmitOp(OP_RETURN)
	if _, err := w.AddString("x"); err != nil {
		t.Fatal(err)
	}
	w.SetEntry(0)
	raw, _ := w.Finish()
	img, _ := NewImage(raw)

	if _, err := img.StringAt(9999); err == nil {
		t.Error("offset past the data section should error")
	}
	if _, err := img.StringAt(-1); err == nil {
		t.Error("negative offset should error")
	}
	if _, _, err := img.FunctionAt(9999); err == nil {
		t.Error("descriptor offset past the data section should error")
	}
}

func TestEntryOffsetValidation(t *testing.T) {
	w := NewImageWriter()
	w.EmitOp(OP_RETURN)
	if err := w.SetEntry(500); err != nil {
		t.Fatal(err)
	}
	raw, _ := w.Finish()
	if _, err := NewImage(raw); err == nil {
		t.Error("entry offset outside the code section should be rejected")
	}
}
