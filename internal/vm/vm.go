package vm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/veyor/stencil/internal/config"
)

// InitialStackSize is the starting capacity of the value stack.
const InitialStackSize = 256

// StackGrowthIncrement is the minimum growth step when the stack fills.
const StackGrowthIncrement = 256

// MaxStackSize caps the value stack to keep a runaway template from
// eating the host. Exceeding it is reported as OutOfMemory.
const MaxStackSize = 1 << 20

// checkInterval is how many instructions run between context-cancellation
// checks.
const checkInterval = 1000

// frame records one suspended caller: where to resume and where its
// locals start.
type frame struct {
	returnIP int
	fp       int
}

// VM executes one compiled image. It is single-threaded and good for one
// Run; the image may be shared between instances, the stack, frames, and
// arena may not.
type VM struct {
	image *Image
	code  []byte
	data  []byte

	ip    int
	stack []Value
	sp    int // next free slot
	fp    int // base of the current frame's locals

	frames     [config.MaxCallFrames]frame
	frameCount int // 0 = main script

	arena *Arena
	out   io.Writer // rendered output (OP_WRITE)
	diag  io.Writer // diagnostic sink (OP_PRINT)
	host  Host

	// Context, when set, is polled every checkInterval instructions so a
	// caller can abandon a long render.
	Context context.Context

	err *RuntimeError
}

// New attaches a VM to a compiled image and a per-run arena.
func New(image *Image, arena *Arena) *VM {
	if arena == nil {
		arena = NewArena(config.DefaultMaxArenaBytes)
	}
	return &VM{
		image: image,
		code:  image.Code(),
		data:  image.Data(),
		stack: make([]Value, InitialStackSize),
		arena: arena,
		out:   io.Discard,
		diag:  os.Stderr,
	}
}

// SetOutput sets the writer OP_WRITE renders to.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetDiagnostics sets the sink OP_PRINT formats to.
func (vm *VM) SetDiagnostics(w io.Writer) {
	vm.diag = w
}

// SetHost sets the host-function hook used by OP_CALL_HOST.
func (vm *VM) SetHost(h Host) {
	vm.host = h
}

// SetContext sets the cancellation context.
func (vm *VM) SetContext(ctx context.Context) {
	vm.Context = ctx
}

// Err returns the error record of the last run, if it failed. The record
// stays readable until the arena is reset.
func (vm *VM) Err() *RuntimeError {
	return vm.err
}

// Arena returns the VM's per-run arena.
func (vm *VM) Arena() *Arena {
	return vm.arena
}

// Push places a value on the stack before Run; the engine uses it to seed
// template parameters into the main frame's local slots.
func (vm *VM) Push(v Value) {
	vm.push(v)
}

// Run executes from the image's entry point until the main script
// returns. Any typed failure terminates the run immediately; the record
// is also kept on the VM for inspection.
func (vm *VM) Run() (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			// These records bypass the arena: the OutOfMemory cases hit
			// exactly when the arena has no budget left to format into.
			switch r {
			case errTruncatedBytecode, errJumpOutOfBounds:
				vm.err = &RuntimeError{Kind: TypeError, Description: fmt.Sprintf("malformed bytecode at offset %d", vm.ip)}
			case errStackUnderflow:
				vm.err = &RuntimeError{Kind: TypeError, Description: fmt.Sprintf("stack underflow at offset %d", vm.ip)}
			case errArenaExhausted:
				vm.err = &RuntimeError{Kind: OutOfMemory, Description: "arena budget exhausted"}
			case errValueStackLimit:
				vm.err = &RuntimeError{Kind: OutOfMemory, Description: "value stack limit exceeded"}
			default:
				panic(r)
			}
			result = NullVal()
			err = vm.err
		}
	}()

	vm.ip = vm.image.Entry()
	// The main frame's locals start at the stack bottom; values pushed
	// before Run (template parameters) occupy slots 0..n-1.
	vm.fp = 0
	vm.frameCount = 0
	vm.err = nil

	opsSinceCheck := 0
	for {
		opsSinceCheck++
		if opsSinceCheck >= checkInterval {
			opsSinceCheck = 0
			if vm.Context != nil {
				select {
				case <-vm.Context.Done():
					return NullVal(), vm.Context.Err()
				default:
				}
			}
		}

		op := Opcode(vm.readByte())

		if op == OP_RETURN {
			result := vm.pop()
			if vm.frameCount == 0 {
				return result, nil
			}
			vm.unwind(result)
			continue
		}

		if err := vm.executeOneOp(op); err != nil {
			re, ok := err.(*RuntimeError)
			if !ok {
				re = vm.arena.Errorf(TypeError, "%s", err.Error())
			}
			vm.err = re
			return NullVal(), re
		}
	}
}

// unwind pops the top call frame: truncates the stack to the returning
// frame's base (destroying its parameters and locals), restores the
// caller, and pushes the result.
func (vm *VM) unwind(result Value) {
	f := vm.frames[vm.frameCount-1]
	vm.frameCount--

	for i := vm.fp; i < vm.sp; i++ {
		vm.stack[i].Release()
		vm.stack[i] = Value{}
	}
	vm.sp = vm.fp

	vm.fp = f.fp
	vm.ip = f.returnIP
	vm.push(result)
}

// Stack operations

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		if vm.sp >= MaxStackSize {
			panic(errValueStackLimit)
		}
		growBy := StackGrowthIncrement
		if len(vm.stack) > growBy {
			growBy = len(vm.stack)
		}
		newStack := make([]Value, len(vm.stack)+growBy)
		copy(newStack, vm.stack[:vm.sp])
		vm.stack = newStack
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= 0 {
		panic(errStackUnderflow)
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Value{}
	return v
}

func (vm *VM) peek(distance int) Value {
	idx := vm.sp - 1 - distance
	if idx < 0 {
		panic(errStackUnderflow)
	}
	return vm.stack[idx]
}

// Decode helpers. Operands are little-endian and bounds-checked; running
// off the end of the code section is malformed bytecode, not a crash.

func (vm *VM) readByte() byte {
	if vm.ip >= len(vm.code) {
		panic(errTruncatedBytecode)
	}
	b := vm.code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readU16() uint16 {
	if vm.ip+2 > len(vm.code) {
		panic(errTruncatedBytecode)
	}
	v := binary.LittleEndian.Uint16(vm.code[vm.ip:])
	vm.ip += 2
	return v
}

func (vm *VM) readI16() int16 {
	return int16(vm.readU16())
}

func (vm *VM) readU32() uint32 {
	if vm.ip+4 > len(vm.code) {
		panic(errTruncatedBytecode)
	}
	v := binary.LittleEndian.Uint32(vm.code[vm.ip:])
	vm.ip += 4
	return v
}

func (vm *VM) readU64() uint64 {
	if vm.ip+8 > len(vm.code) {
		panic(errTruncatedBytecode)
	}
	v := binary.LittleEndian.Uint64(vm.code[vm.ip:])
	vm.ip += 8
	return v
}

func (vm *VM) readF64() float64 {
	return math.Float64frombits(vm.readU64())
}

// readLocalIndex reads a local-slot operand at the width selected by
// config.MaxLocals.
func (vm *VM) readLocalIndex() int {
	if config.LocalIndexWidth == 1 {
		return int(vm.readByte())
	}
	return int(vm.readU16())
}

// branch applies a relative jump measured from the current ip (the byte
// after the 16-bit offset operand).
func (vm *VM) branch(offset int16) {
	target := vm.ip + int(offset)
	if target < 0 || target > len(vm.code) {
		panic(errJumpOutOfBounds)
	}
	vm.ip = target
}

// local addresses slot k of the current frame.
func (vm *VM) local(slot int) *Value {
	idx := vm.fp + slot
	if idx < 0 || idx >= vm.sp {
		panic(errStackUnderflow)
	}
	return &vm.stack[idx]
}

// Error helpers

func (vm *VM) typeErrorf(format string, args ...interface{}) error {
	return vm.arena.Errorf(TypeError, format, args...)
}

func (vm *VM) rangeErrorf(format string, args ...interface{}) error {
	return vm.arena.Errorf(OutOfRange, format, args...)
}
