package vm

import (
	"io"

	"github.com/veyor/stencil/internal/config"
)

// executeOneOp dispatches a single opcode (OP_RETURN is handled by the
// run loop).
func (vm *VM) executeOneOp(op Opcode) error {
	switch op {
	case OP_POP:
		vm.pop().Release()

	case OP_CONSTANT_I64:
		vm.push(IntVal(int64(vm.readU64())))

	case OP_CONSTANT_F64:
		vm.push(FloatVal(vm.readF64()))

	case OP_CONSTANT_BOOL:
		vm.push(BoolVal(vm.readByte() != 0))

	case OP_CONSTANT_STRING:
		off := int(vm.readU32())
		b, err := vm.image.StringAt(off)
		if err != nil {
			return vm.typeErrorf("bad string constant: %s", err)
		}
		// The Str borrows the image's bytes; the image outlives the run.
		vm.push(StrVal(b))

	case OP_CONSTANT_NULL:
		vm.push(NullVal())

	case OP_GET_LOCAL:
		slot := vm.readLocalIndex()
		v := *vm.local(slot)
		v.Retain()
		vm.push(v)

	case OP_SET_LOCAL:
		// Assignment is an expression: the value stays on the stack.
		slot := vm.readLocalIndex()
		v := vm.peek(0)
		dst := vm.local(slot)
		v.Retain()
		dst.Release()
		*dst = v

	case OP_INCR:
		return vm.incr()

	case OP_ADD, OP_SUBTRACT, OP_MULTIPLY, OP_DIVIDE, OP_MODULUS:
		return vm.binaryOp(op)

	case OP_NEGATE:
		v := vm.pop()
		switch {
		case v.IsInt():
			vm.push(IntVal(-v.AsInt()))
		case v.IsFloat():
			vm.push(FloatVal(-v.AsFloat()))
		default:
			v.Release()
			return vm.typeErrorf("Cannot negate non-numeric value: %s", v.TypeName())
		}

	case OP_NOT:
		v := vm.pop()
		if !v.IsBool() {
			v.Release()
			return vm.typeErrorf("Cannot apply ! to non-boolean value: %s", v.TypeName())
		}
		vm.push(BoolVal(!v.AsBool()))

	case OP_EQUAL:
		b := vm.pop()
		a := vm.pop()
		eq, err := Equal(a, b)
		a.Release()
		b.Release()
		if err != nil {
			return vm.typeErrorf("Cannot compare %s with %s", a.TypeName(), b.TypeName())
		}
		vm.push(BoolVal(eq))

	case OP_GREATER:
		b := vm.pop()
		a := vm.pop()
		ord := Order(a, b)
		a.Release()
		b.Release()
		vm.push(BoolVal(ord == Greater))

	case OP_LESSER:
		b := vm.pop()
		a := vm.pop()
		ord := Order(a, b)
		a.Release()
		b.Release()
		vm.push(BoolVal(ord == Less))

	case OP_JUMP:
		vm.branch(vm.readI16())

	case OP_JUMP_IF_FALSE:
		// Top is not popped; the compiler emits an explicit POP where the
		// condition value is dead.
		off := vm.readI16()
		if !vm.peek(0).IsTrue() {
			vm.branch(off)
		}

	case OP_INITIALIZE_ARRAY:
		count := int(vm.readU32())
		if count > vm.sp {
			panic(errStackUnderflow)
		}
		elems := make([]Value, count)
		copy(elems, vm.stack[vm.sp-count:vm.sp])
		for i := vm.sp - count; i < vm.sp; i++ {
			vm.stack[i] = Value{}
		}
		vm.sp -= count
		// Element references move from the stack into the list; the net
		// refcount is unchanged.
		vm.push(RefVal(vm.arena.NewList(elems)))

	case OP_INDEX_GET:
		return vm.indexGet()

	case OP_GET_ITERATOR:
		return vm.getIterator()

	case OP_ITERATE_NEXT:
		return vm.iterateNext()

	case OP_CALL:
		off := int(vm.readU32())
		arity, codeOffset, err := vm.image.FunctionAt(off)
		if err != nil {
			return vm.typeErrorf("bad function descriptor: %s", err)
		}
		if vm.frameCount >= config.MaxCallFrames {
			return vm.arena.Errorf(StackOverflow, "call depth exceeds %d frames", config.MaxCallFrames)
		}
		if vm.sp < arity {
			panic(errStackUnderflow)
		}
		vm.frames[vm.frameCount] = frame{returnIP: vm.ip, fp: vm.fp}
		vm.frameCount++
		// Parameters already sit on the stack; they become slots
		// 0..arity-1 of the new frame.
		vm.fp = vm.sp - arity
		vm.ip = codeOffset

	case OP_CALL_HOST:
		return vm.callHost()

	case OP_WRITE:
		escape := vm.readByte() != 0
		v := vm.pop()
		err := Write(vm.out, v, escape)
		v.Release()
		if err != nil {
			return vm.typeErrorf("output write failed: %s", err)
		}

	case OP_PRINT:
		v := vm.pop()
		err := Write(vm.diag, v, false)
		v.Release()
		if err == nil {
			_, err = io.WriteString(vm.diag, "\n")
		}
		if err != nil {
			return vm.typeErrorf("diagnostic write failed: %s", err)
		}

	case OP_DEBUG:
		// Reserved for a source-map sidecar; the operand length counts
		// its own two prefix bytes.
		length := int(vm.readU16())
		skip := length - 2
		if skip < 0 || vm.ip+skip > len(vm.code) {
			panic(errTruncatedBytecode)
		}
		vm.ip += skip

	default:
		return vm.typeErrorf("unknown opcode %d at offset %d", op, vm.ip-1)
	}
	return nil
}
