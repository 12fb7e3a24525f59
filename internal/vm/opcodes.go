// Package vm implements the runtime core of the Stencil template engine:
// the tagged value model, the compact bytecode image, and the stack
// virtual machine that renders compiled templates.
package vm

// Opcode represents a single VM instruction. Operands are little-endian
// and immediately follow the opcode byte.
type Opcode byte

const (
	// Stack manipulation
	OP_POP Opcode = iota // Discard top of stack

	// Constants
	OP_CONSTANT_I64    // i64 operand: push int
	OP_CONSTANT_F64    // f64 operand: push float
	OP_CONSTANT_BOOL   // u8 operand: push bool (0 → false)
	OP_CONSTANT_STRING // u32 data offset: push Str borrowing image bytes
	OP_CONSTANT_NULL   // push null

	// Locals (operand width from config.LocalIndexWidth)
	OP_GET_LOCAL // push copy of slot fp+k
	OP_SET_LOCAL // write top into slot; top stays (assignment is an expression)
	OP_INCR      // u8 delta (0 is the sentinel for -1), slot: slot += delta, push new value

	// Arithmetic
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_MODULUS // both operands must be int; floor-mod, sign of divisor
	OP_NEGATE  // unary minus (int or float only)
	OP_NOT     // logical not (bool only)

	// Comparison
	OP_EQUAL
	OP_GREATER
	OP_LESSER

	// Control flow (i16 offset measured from the byte after the operand)
	OP_JUMP
	OP_JUMP_IF_FALSE // branch unless top is Bool(true); top is not popped

	// Collections
	OP_INITIALIZE_ARRAY // u32 count: pop count values (order preserved) into a list
	OP_INDEX_GET        // pop index, pop target, push target[index]
	OP_GET_ITERATOR     // pop list/map, push iterator holding a strong ref
	OP_ITERATE_NEXT     // i16 exhausted-branch; else push next element / entry

	// Calls
	OP_CALL      // u32 data offset of {u8 arity, u32 code offset} descriptor
	OP_CALL_HOST // u16 function id, u8 argc: invoke the host hook
	OP_RETURN    // pop result; unwind to caller or finish the run

	// Output
	OP_WRITE // u8 escape flag: pop and format to the output writer
	OP_PRINT // pop and format to the diagnostic sink

	// Reserved
	OP_DEBUG // u16 length: skip that many bytes (length prefix included)
)

// OpcodeNames maps opcodes to their string names (for the disassembler).
var OpcodeNames = map[Opcode]string{
	OP_POP: "POP",

	OP_CONSTANT_I64:    "CONSTANT_I64",
	OP_CONSTANT_F64:    "CONSTANT_F64",
	OP_CONSTANT_BOOL:   "CONSTANT_BOOL",
	OP_CONSTANT_STRING: "CONSTANT_STRING",
	OP_CONSTANT_NULL:   "CONSTANT_NULL",

	OP_GET_LOCAL: "GET_LOCAL",
	OP_SET_LOCAL: "SET_LOCAL",
	OP_INCR:      "INCR",

	OP_ADD:      "ADD",
	OP_SUBTRACT: "SUBTRACT",
	OP_MULTIPLY: "MULTIPLY",
	OP_DIVIDE:   "DIVIDE",
	OP_MODULUS:  "MODULUS",
	OP_NEGATE:   "NEGATE",
	OP_NOT:      "NOT",

	OP_EQUAL:   "EQUAL",
	OP_GREATER: "GREATER",
	OP_LESSER:  "LESSER",

	OP_JUMP:          "JUMP",
	OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",

	OP_INITIALIZE_ARRAY: "INITIALIZE_ARRAY",
	OP_INDEX_GET:        "INDEX_GET",
	OP_GET_ITERATOR:     "GET_ITERATOR",
	OP_ITERATE_NEXT:     "ITERATE_NEXT",

	OP_CALL:      "CALL",
	OP_CALL_HOST: "CALL_HOST",
	OP_RETURN:    "RETURN",

	OP_WRITE: "WRITE",
	OP_PRINT: "PRINT",
	OP_DEBUG: "DEBUG",
}
