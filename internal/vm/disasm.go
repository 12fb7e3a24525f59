package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/veyor/stencil/internal/config"
)

// Disassemble returns a human-readable listing of an image's code
// section.
func Disassemble(im *Image, name string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	sb.WriteString(fmt.Sprintf("code %d bytes, data %d bytes, entry %04d\n",
		len(im.Code()), len(im.Data()), im.Entry()))

	offset := 0
	for offset < len(im.Code()) {
		offset = disassembleInstruction(&sb, im, offset)
	}

	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, im *Image, offset int) int {
	code := im.Code()
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	op := Opcode(code[offset])
	name, known := OpcodeNames[op]
	if !known {
		sb.WriteString(fmt.Sprintf("Unknown opcode %d\n", op))
		return offset + 1
	}

	switch op {
	case OP_POP, OP_CONSTANT_NULL, OP_ADD, OP_SUBTRACT, OP_MULTIPLY,
		OP_DIVIDE, OP_MODULUS, OP_NEGATE, OP_NOT, OP_EQUAL, OP_GREATER,
		OP_LESSER, OP_INDEX_GET, OP_GET_ITERATOR, OP_RETURN, OP_PRINT:
		sb.WriteString(name + "\n")
		return offset + 1

	case OP_CONSTANT_I64:
		v := int64(binary.LittleEndian.Uint64(code[offset+1:]))
		sb.WriteString(fmt.Sprintf("%-18s %d\n", name, v))
		return offset + 9

	case OP_CONSTANT_F64:
		v := math.Float64frombits(binary.LittleEndian.Uint64(code[offset+1:]))
		sb.WriteString(fmt.Sprintf("%-18s %g\n", name, v))
		return offset + 9

	case OP_CONSTANT_BOOL:
		sb.WriteString(fmt.Sprintf("%-18s %d\n", name, code[offset+1]))
		return offset + 2

	case OP_CONSTANT_STRING:
		off := int(binary.LittleEndian.Uint32(code[offset+1:]))
		if s, err := im.StringAt(off); err == nil {
			sb.WriteString(fmt.Sprintf("%-18s %4d %q\n", name, off, s))
		} else {
			sb.WriteString(fmt.Sprintf("%-18s %4d (invalid)\n", name, off))
		}
		return offset + 5

	case OP_GET_LOCAL, OP_SET_LOCAL:
		slot := readLocalOperand(code, offset+1)
		sb.WriteString(fmt.Sprintf("%-18s %4d\n", name, slot))
		return offset + 1 + config.LocalIndexWidth

	case OP_INCR:
		delta := int64(code[offset+1])
		if delta == 0 {
			delta = -1
		}
		slot := readLocalOperand(code, offset+2)
		sb.WriteString(fmt.Sprintf("%-18s %+d slot %d\n", name, delta, slot))
		return offset + 2 + config.LocalIndexWidth

	case OP_JUMP, OP_JUMP_IF_FALSE, OP_ITERATE_NEXT:
		jump := int16(binary.LittleEndian.Uint16(code[offset+1:]))
		target := offset + 3 + int(jump)
		sb.WriteString(fmt.Sprintf("%-18s %4d -> %d\n", name, jump, target))
		return offset + 3

	case OP_INITIALIZE_ARRAY:
		count := binary.LittleEndian.Uint32(code[offset+1:])
		sb.WriteString(fmt.Sprintf("%-18s %4d\n", name, count))
		return offset + 5

	case OP_CALL:
		off := int(binary.LittleEndian.Uint32(code[offset+1:]))
		if arity, codeOff, err := im.FunctionAt(off); err == nil {
			sb.WriteString(fmt.Sprintf("%-18s %4d (arity %d, code %04d)\n", name, off, arity, codeOff))
		} else {
			sb.WriteString(fmt.Sprintf("%-18s %4d (invalid)\n", name, off))
		}
		return offset + 5

	case OP_CALL_HOST:
		id := binary.LittleEndian.Uint16(code[offset+1:])
		argc := code[offset+3]
		sb.WriteString(fmt.Sprintf("%-18s %4d (args: %d)\n", name, id, argc))
		return offset + 4

	case OP_WRITE:
		sb.WriteString(fmt.Sprintf("%-18s escape=%d\n", name, code[offset+1]))
		return offset + 2

	case OP_DEBUG:
		length := int(binary.LittleEndian.Uint16(code[offset+1:]))
		sb.WriteString(fmt.Sprintf("%-18s %4d bytes\n", name, length))
		if length < 2 {
			return offset + 3
		}
		return offset + 1 + length

	default:
		sb.WriteString(name + "\n")
		return offset + 1
	}
}

func readLocalOperand(code []byte, offset int) int {
	if config.LocalIndexWidth == 1 {
		return int(code[offset])
	}
	return int(binary.LittleEndian.Uint16(code[offset:]))
}
