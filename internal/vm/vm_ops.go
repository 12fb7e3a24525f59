package vm

// opSymbol maps an arithmetic opcode to its surface syntax for error
// messages.
func opSymbol(op Opcode) string {
	switch op {
	case OP_ADD:
		return "+"
	case OP_SUBTRACT:
		return "-"
	case OP_MULTIPLY:
		return "*"
	case OP_DIVIDE:
		return "/"
	case OP_MODULUS:
		return "%"
	default:
		return "?"
	}
}

// binaryOp performs arithmetic on the top two stack values. Integer
// add/subtract/multiply wrap two's-complement; integer divide truncates
// toward zero; modulus is floor-mod (result takes the sign of the
// divisor) and requires both sides int.
func (vm *VM) binaryOp(op Opcode) error {
	b := vm.pop()
	a := vm.pop()

	// Fast path for integers
	if a.IsInt() && b.IsInt() {
		aVal := a.AsInt()
		bVal := b.AsInt()
		var result int64

		switch op {
		case OP_ADD:
			result = aVal + bVal
		case OP_SUBTRACT:
			result = aVal - bVal
		case OP_MULTIPLY:
			result = aVal * bVal
		case OP_DIVIDE:
			if bVal == 0 {
				return vm.typeErrorf("Division by zero: %d / 0", aVal)
			}
			result = aVal / bVal
		case OP_MODULUS:
			if bVal == 0 {
				return vm.typeErrorf("Modulo by zero: %d %% 0", aVal)
			}
			result = aVal % bVal
			if result != 0 && (result < 0) != (bVal < 0) {
				result += bVal
			}
		}
		vm.push(IntVal(result))
		return nil
	}

	if op == OP_MODULUS {
		a.Release()
		b.Release()
		return vm.typeErrorf("Cannot take modulus of non-integer values: %s %% %s", a.TypeName(), b.TypeName())
	}

	// Promote int operands and fall through to float arithmetic.
	if a.IsNumeric() && b.IsNumeric() {
		aVal := a.AsFloat()
		if a.IsInt() {
			aVal = float64(a.AsInt())
		}
		bVal := b.AsFloat()
		if b.IsInt() {
			bVal = float64(b.AsInt())
		}
		var result float64

		switch op {
		case OP_ADD:
			result = aVal + bVal
		case OP_SUBTRACT:
			result = aVal - bVal
		case OP_MULTIPLY:
			result = aVal * bVal
		case OP_DIVIDE:
			// IEEE: ±Inf / NaN are legitimate float results.
			result = aVal / bVal
		}
		vm.push(FloatVal(result))
		return nil
	}

	a.Release()
	b.Release()
	return vm.typeErrorf("Cannot %s non-numeric value: %s %s %s",
		arithVerb(op), a.TypeName(), opSymbol(op), b.TypeName())
}

func arithVerb(op Opcode) string {
	switch op {
	case OP_ADD:
		return "add"
	case OP_SUBTRACT:
		return "subtract"
	case OP_MULTIPLY:
		return "multiply"
	case OP_DIVIDE:
		return "divide"
	default:
		return "combine"
	}
}

// incr executes INCR: an in-place add on a local slot that also pushes
// the new value. The delta operand is an unsigned byte with 0 reserved as
// the sentinel for -1 (the only encodable decrement).
func (vm *VM) incr() error {
	raw := vm.readByte()
	slot := vm.readLocalIndex()

	delta := int64(raw)
	if raw == 0 {
		delta = -1
	}

	dst := vm.local(slot)
	switch {
	case dst.IsInt():
		*dst = IntVal(dst.AsInt() + delta)
	case dst.IsFloat():
		*dst = FloatVal(dst.AsFloat() + float64(delta))
	default:
		return vm.typeErrorf("Cannot increment non-numeric value: %s", dst.TypeName())
	}
	vm.push(*dst)
	return nil
}

// indexGet executes INDEX_GET: pop index, pop target, push
// target[index]. Negative integer indices count from the end of lists,
// strings and buffers.
func (vm *VM) indexGet() error {
	index := vm.pop()
	target := vm.pop()

	// Strings and buffers index to a one-byte Str slice.
	if b, ok := target.strBytes(); ok {
		if !index.IsInt() {
			target.Release()
			index.Release()
			return vm.typeErrorf("Cannot index string with %s", index.TypeName())
		}
		i, err := vm.resolveIndex(index.AsInt(), len(b), "string")
		if err != nil {
			target.Release()
			return err
		}
		// The slice aliases the image or the buffer, both of which live
		// at least as long as the run.
		vm.push(StrVal(b[i : i+1]))
		target.Release()
		return nil
	}

	if !target.IsRef() {
		defer target.Release()
		defer index.Release()
		return vm.typeErrorf("Cannot index %s", target.TypeName())
	}

	switch target.Obj.Type {
	case ObjList:
		if !index.IsInt() {
			target.Release()
			index.Release()
			return vm.typeErrorf("Cannot index list with %s", index.TypeName())
		}
		i, err := vm.resolveIndex(index.AsInt(), len(target.Obj.List), "list")
		if err != nil {
			target.Release()
			return err
		}
		elem := target.Obj.List[i]
		elem.Retain()
		vm.push(elem)
		target.Release()
		return nil

	case ObjMap:
		key, ok := KeyOf(index)
		if !ok {
			target.Release()
			index.Release()
			return vm.typeErrorf("Cannot index map with %s", index.TypeName())
		}
		if v, found := target.Obj.Map.Get(key); found {
			v.Retain()
			vm.push(v)
		} else {
			vm.push(NullVal())
		}
		index.Release()
		target.Release()
		return nil

	case ObjMapEntry:
		if !index.IsInt() {
			target.Release()
			index.Release()
			return vm.typeErrorf("Cannot index entry with %s", index.TypeName())
		}
		var v Value
		switch index.AsInt() {
		case 0:
			v = target.Obj.EntryKey.Value()
		case 1:
			v = *target.Obj.EntryValue
		default:
			target.Release()
			return vm.rangeErrorf("entry index %d out of range (want 0 or 1)", index.AsInt())
		}
		v.Retain()
		vm.push(v)
		target.Release()
		return nil
	}

	defer target.Release()
	defer index.Release()
	return vm.typeErrorf("Cannot index %s", target.Obj.Type.String())
}

// resolveIndex maps a possibly-negative index into [0, length). -1
// addresses the last element; -length the first.
func (vm *VM) resolveIndex(i int64, length int, what string) (int, error) {
	orig := i
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, vm.rangeErrorf("index %d out of range for %s of length %d", orig, what, length)
	}
	return int(i), nil
}

// getIterator executes GET_ITERATOR: pop a list or map, push a fresh
// iterator holding a strong reference to it.
func (vm *VM) getIterator() error {
	v := vm.pop()
	if v.IsRef() {
		switch v.Obj.Type {
		case ObjList:
			it := vm.arena.NewListIterator(v.Obj)
			v.Release()
			vm.push(RefVal(it))
			return nil
		case ObjMap:
			it := vm.arena.NewMapIterator(v.Obj)
			v.Release()
			vm.push(RefVal(it))
			return nil
		}
	}
	defer v.Release()
	return vm.typeErrorf("Cannot iterate %s", v.TypeName())
}

// iterateNext executes ITERATE_NEXT: the iterator stays on the stack;
// when it is exhausted the operand branch is taken, otherwise the next
// element (list) or entry view (map) is pushed.
//
// Structural mutation during iteration is undefined for the order: the
// cursor simply walks the container as it is now. The iterator's strong
// reference guarantees the memory stays valid either way.
func (vm *VM) iterateNext() error {
	off := vm.readI16()
	it := vm.peek(0)
	if !it.IsRef() {
		return vm.typeErrorf("Cannot advance %s", it.TypeName())
	}

	switch it.Obj.Type {
	case ObjListIter:
		list := it.Obj.Container
		if it.Obj.Index >= len(list.List) {
			vm.branch(off)
			return nil
		}
		elem := list.List[it.Obj.Index]
		it.Obj.Index++
		elem.Retain()
		vm.push(elem)
		return nil

	case ObjMapIter:
		m := it.Obj.Container
		for it.Obj.Index < m.Map.slotCount() && m.Map.slotAt(it.Obj.Index) == nil {
			it.Obj.Index++
		}
		if it.Obj.Index >= m.Map.slotCount() {
			vm.branch(off)
			return nil
		}
		slot := m.Map.slotAt(it.Obj.Index)
		it.Obj.Index++
		vm.push(RefVal(vm.arena.NewMapEntry(m, slot)))
		return nil
	}

	return vm.typeErrorf("Cannot advance %s", it.Obj.Type.String())
}

// callHost executes CALL_HOST: pop argc arguments (order preserved) and
// hand them to the host hook.
func (vm *VM) callHost() error {
	id := int(vm.readU16())
	argc := int(vm.readByte())

	if vm.host == nil {
		return vm.typeErrorf("no host functions registered (call %d)", id)
	}
	if argc > vm.sp {
		panic(errStackUnderflow)
	}

	args := make([]Value, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	for i := vm.sp - argc; i < vm.sp; i++ {
		vm.stack[i] = Value{}
	}
	vm.sp -= argc

	result, err := vm.host.Call(id, args)
	for _, arg := range args {
		arg.Release()
	}
	if err != nil {
		return vm.typeErrorf("host function %d failed: %s", id, err)
	}
	vm.push(result)
	return nil
}
