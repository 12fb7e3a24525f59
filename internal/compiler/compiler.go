package compiler

import (
	"math"
	"strconv"

	"github.com/veyor/stencil/internal/config"
	"github.com/veyor/stencil/internal/vm"
)

// Options configure one compilation.
type Options struct {
	// Params are the template parameter names, in the slot order the
	// renderer pushes them.
	Params []string

	// Funcs maps host function names to the ids the host's Call hook
	// dispatches on.
	Funcs map[string]int

	// Escape controls whether <%= %> output is HTML-escaped.
	Escape bool

	// Debug selects debug-information emission.
	Debug config.DebugLevel

	// Resolver resolves include keys to partial source. Nil disables
	// includes.
	Resolver vm.PartialResolver
}

// Result is a finished compilation.
type Result struct {
	Image     *vm.Image
	SourceMap *vm.SourceMap // nil below DebugFull
}

// Local represents a local variable during compilation.
type Local struct {
	Name  string
	Depth int // scope depth where this local was declared
	Slot  int // stack slot relative to the frame pointer
}

type blockKind int

const (
	blockIf blockKind = iota
	blockFor
)

// openBlock tracks an if/for whose end tag has not been seen yet.
type openBlock struct {
	kind blockKind
	line int
	col  int

	// if state
	falseJump int // pending JUMP_IF_FALSE operand offset, -1 once consumed
	endJumps  []int
	sawElse   bool

	// for state
	loopStart int // offset of the ITERATE_NEXT instruction
	exitJump  int // ITERATE_NEXT operand offset to patch with the exit
	iterSlot  int // anonymous slot holding the iterator

	// locals snapshot for scope rollback
	baseLocalCount int
}

// pendingPartial is an include target queued for compilation after the
// main script.
type pendingPartial struct {
	key    string
	source string
}

// callPatch is a CALL operand awaiting its partial's descriptor offset.
type callPatch struct {
	operandOff int
	key        string
	line       int
	col        int
}

// Compiler compiles scanned template segments to bytecode in one pass.
type Compiler struct {
	name string // template key of the unit being compiled
	root string // top-level template name (for error positions)
	opts Options

	w *vm.ImageWriter

	locals     []Local
	localCount int
	scopeDepth int

	blocks []openBlock

	partials       []pendingPartial
	partialOffsets map[string]uint32 // key → descriptor offset
	queued         map[string]bool
	callPatches    []callPatch

	srcMap *vm.SourceMap
}

// Compile turns template source into a bytecode image.
func Compile(name, source string, opts Options) (*Result, error) {
	c := &Compiler{
		name:           name,
		root:           name,
		opts:           opts,
		w:              vm.NewImageWriter(),
		partialOffsets: make(map[string]uint32),
		queued:         make(map[string]bool),
	}
	if opts.Debug == config.DebugFull {
		c.srcMap = &vm.SourceMap{Template: name}
	}

	// Template parameters occupy the first local slots; the renderer
	// pushes their values before Run.
	for _, p := range opts.Params {
		if err := c.declareLocal(p, 0, 0); err != nil {
			return nil, err
		}
	}

	if err := c.compileUnit(name, source); err != nil {
		return nil, err
	}

	// Partials queued by include tags compile after the main script, then
	// every CALL site gets its descriptor offset patched in.
	for len(c.partials) > 0 {
		p := c.partials[0]
		c.partials = c.partials[1:]
		if err := c.compilePartial(p); err != nil {
			return nil, err
		}
	}
	for _, patch := range c.callPatches {
		off, ok := c.partialOffsets[patch.key]
		if !ok {
			return nil, errorf(c.root, patch.line, patch.col, "partial %q was never compiled", patch.key)
		}
		c.w.PatchU32(patch.operandOff, off)
	}

	if err := c.w.SetEntry(0); err != nil {
		return nil, errorf(name, 0, 0, "%s", err)
	}
	raw, err := c.w.Finish()
	if err != nil {
		return nil, errorf(name, 0, 0, "%s", err)
	}
	img, err := vm.NewImage(raw)
	if err != nil {
		return nil, errorf(name, 0, 0, "emitted invalid image: %s", err)
	}
	return &Result{Image: img, SourceMap: c.srcMap}, nil
}

// compileUnit scans and compiles one template body (the main script or a
// partial), ending by popping the unit's locals and an implicit
// `return null`, so a normal return leaves the stack empty.
func (c *Compiler) compileUnit(name, source string) error {
	saved := c.name
	c.name = name
	defer func() { c.name = saved }()

	segs, err := scan(name, source)
	if err != nil {
		return err
	}
	blockBase := len(c.blocks)
	for _, seg := range segs {
		if err := c.compileSegment(seg); err != nil {
			return err
		}
	}
	if len(c.blocks) > blockBase {
		b := c.blocks[len(c.blocks)-1]
		return errorf(name, b.line, b.col, "block is never closed (missing <%% end %%>)")
	}

	c.endScope(0)
	c.w.EmitOp(vm.OP_CONSTANT_NULL)
	c.w.EmitOp(vm.OP_RETURN)
	return nil
}

// compilePartial compiles a queued include target as a zero-arity
// function with its own frame; its locals start at slot 0.
func (c *Compiler) compilePartial(p pendingPartial) error {
	savedLocals, savedCount, savedDepth := c.locals, c.localCount, c.scopeDepth
	c.locals, c.localCount, c.scopeDepth = nil, 0, 0

	start := c.w.Pos()
	if err := c.compileUnit(p.key, p.source); err != nil {
		return err
	}

	c.locals, c.localCount, c.scopeDepth = savedLocals, savedCount, savedDepth

	off, err := c.w.AddFunction(0, start)
	if err != nil {
		return errorf(p.key, 0, 0, "%s", err)
	}
	c.partialOffsets[p.key] = off
	return nil
}

func (c *Compiler) compileSegment(seg segment) error {
	switch seg.kind {
	case segText:
		c.emitDebug(seg.line, seg.col)
		if err := c.emitStringConstant(seg.text, seg.line, seg.col); err != nil {
			return err
		}
		c.w.EmitOp(vm.OP_WRITE)
		c.w.EmitByte(0)
		return nil

	case segOutput, segRawOutput:
		c.emitDebug(seg.line, seg.col)
		toks, err := lexAll(c.name, seg.text, seg.line, seg.col)
		if err != nil {
			return err
		}
		p := &parser{c: c, toks: toks}
		if err := p.expression(); err != nil {
			return err
		}
		if err := p.expectEOF(); err != nil {
			return err
		}
		escape := byte(0)
		if seg.kind == segOutput && c.opts.Escape {
			escape = 1
		}
		c.w.EmitOp(vm.OP_WRITE)
		c.w.EmitByte(escape)
		return nil

	case segCode:
		c.emitDebug(seg.line, seg.col)
		return c.compileStatement(seg)
	}
	return nil
}

// compileStatement handles one <% ... %> tag.
func (c *Compiler) compileStatement(seg segment) error {
	toks, err := lexAll(c.name, seg.text, seg.line, seg.col)
	if err != nil {
		return err
	}
	if toks[0].typ == tokEOF {
		return nil // empty tag
	}
	p := &parser{c: c, toks: toks}

	switch toks[0].typ {
	case tokIf:
		p.pos++
		return c.compileIf(p, toks[0])

	case tokElsif:
		p.pos++
		return c.compileElsif(p, toks[0])

	case tokElse:
		p.pos++
		if err := p.expectEOF(); err != nil {
			return err
		}
		return c.compileElse(toks[0])

	case tokEnd:
		p.pos++
		if err := p.expectEOF(); err != nil {
			return err
		}
		return c.compileEnd(toks[0])

	case tokFor:
		p.pos++
		return c.compileFor(p, toks[0])

	case tokInclude:
		p.pos++
		return c.compileInclude(p, toks[0])
	}

	// Assignment or expression statement.
	if toks[0].typ == tokIdent && len(toks) > 1 && toks[1].typ == tokAssign {
		p.pos = 2
		return c.compileAssignment(p, toks[0])
	}
	if err := p.expression(); err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}
	c.w.EmitOp(vm.OP_POP)
	return nil
}

// compileAssignment compiles `name = expr`. Assigning a new name
// allocates the next local slot and leaves the value on the stack as the
// slot's storage; assigning an existing name stores through SET_LOCAL.
func (c *Compiler) compileAssignment(p *parser, ident token) error {
	if err := p.expression(); err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}

	if slot, ok := c.resolveLocal(ident.literal); ok {
		c.w.EmitOp(vm.OP_SET_LOCAL)
		if err := c.emitLocalOperand(slot, ident); err != nil {
			return err
		}
		c.w.EmitOp(vm.OP_POP)
		return nil
	}
	return c.declareLocal(ident.literal, ident.line, ident.col)
}

func (c *Compiler) compileIf(p *parser, at token) error {
	if err := p.expression(); err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}
	falseJump := c.emitJump(vm.OP_JUMP_IF_FALSE)
	c.w.EmitOp(vm.OP_POP) // condition, on the true path
	c.blocks = append(c.blocks, openBlock{
		kind:           blockIf,
		line:           at.line,
		col:            at.col,
		falseJump:      falseJump,
		baseLocalCount: c.localCount,
	})
	c.scopeDepth++
	return nil
}

func (c *Compiler) compileElsif(p *parser, at token) error {
	b := c.currentBlock(blockIf)
	if b == nil || b.sawElse {
		return errorf(c.name, at.line, at.col, "elsif without a matching if")
	}
	c.closeBranch(b)

	// False path of the previous condition lands here: discard it and
	// test the next one.
	c.patchJump(b.falseJump)
	c.w.EmitOp(vm.OP_POP)
	if err := p.expression(); err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}
	b.falseJump = c.emitJump(vm.OP_JUMP_IF_FALSE)
	c.w.EmitOp(vm.OP_POP)
	return nil
}

func (c *Compiler) compileElse(at token) error {
	b := c.currentBlock(blockIf)
	if b == nil || b.sawElse {
		return errorf(c.name, at.line, at.col, "else without a matching if")
	}
	c.closeBranch(b)

	c.patchJump(b.falseJump)
	c.w.EmitOp(vm.OP_POP)
	b.falseJump = -1
	b.sawElse = true
	return nil
}

// closeBranch ends the current if-branch: scope locals are popped and a
// jump to the end of the whole if is recorded.
func (c *Compiler) closeBranch(b *openBlock) {
	c.endScope(b.baseLocalCount)
	b.endJumps = append(b.endJumps, c.emitJump(vm.OP_JUMP))
}

func (c *Compiler) compileEnd(at token) error {
	if len(c.blocks) == 0 {
		return errorf(c.name, at.line, at.col, "end without a matching if or for")
	}
	b := &c.blocks[len(c.blocks)-1]

	switch b.kind {
	case blockIf:
		c.closeBranch(b)
		if b.falseJump >= 0 {
			// No else: the false path still has to discard the condition.
			c.patchJump(b.falseJump)
			c.w.EmitOp(vm.OP_POP)
		}
		for _, j := range b.endJumps {
			c.patchJump(j)
		}

	case blockFor:
		// Pop the per-iteration values (scope locals and loop variables)
		// and go around again.
		c.endScope(b.baseLocalCount)
		c.emitLoop(b.loopStart)
		// Exhausted iterations land here with the iterator on top.
		c.patchJump(b.exitJump)
		c.w.EmitOp(vm.OP_POP) // iterator
		c.dropLocalsTo(b.iterSlot)
	}

	c.blocks = c.blocks[:len(c.blocks)-1]
	c.scopeDepth--
	return nil
}

func (c *Compiler) compileFor(p *parser, at token) error {
	first, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	var second *token
	if p.peek().typ == tokComma {
		p.pos++
		t, err := p.expect(tokIdent)
		if err != nil {
			return err
		}
		second = &t
	}
	if _, err := p.expect(tokIn); err != nil {
		return err
	}
	if err := p.expression(); err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}

	c.scopeDepth++
	// The iterator occupies an anonymous slot for the life of the loop.
	iterSlot := c.localCount
	c.w.EmitOp(vm.OP_GET_ITERATOR)
	if err := c.declareLocal("", at.line, at.col); err != nil {
		return err
	}

	b := openBlock{
		kind:     blockFor,
		line:     at.line,
		col:      at.col,
		iterSlot: iterSlot,
		// Everything above the iterator (the loop variables and any
		// locals the body declares) is popped on every iteration.
		baseLocalCount: iterSlot + 1,
	}
	b.loopStart = c.w.Pos()
	c.w.EmitOp(vm.OP_ITERATE_NEXT)
	b.exitJump = c.w.Pos()
	c.w.EmitI16(0) // patched by end

	if second == nil {
		// The pushed element becomes the loop variable's slot.
		if err := c.declareLocal(first.literal, first.line, first.col); err != nil {
			return err
		}
	} else {
		// Map iteration pushes an entry view; destructure it into the
		// key and value variables.
		entrySlot := c.localCount
		if err := c.declareLocal("", at.line, at.col); err != nil {
			return err
		}
		for i, t := range []token{first, *second} {
			c.w.EmitOp(vm.OP_GET_LOCAL)
			if err := c.emitLocalOperand(entrySlot, at); err != nil {
				return err
			}
			c.w.EmitOp(vm.OP_CONSTANT_I64)
			c.w.EmitU64(uint64(i))
			c.w.EmitOp(vm.OP_INDEX_GET)
			if err := c.declareLocal(t.literal, t.line, t.col); err != nil {
				return err
			}
		}
	}
	c.blocks = append(c.blocks, b)
	return nil
}

func (c *Compiler) compileInclude(p *parser, at token) error {
	key, err := p.expect(tokString)
	if err != nil {
		return err
	}
	if err := p.expectEOF(); err != nil {
		return err
	}
	if c.opts.Resolver == nil {
		return errorf(c.name, at.line, at.col, "includes are not enabled (no partial resolver)")
	}

	source, resolvedKey, rerr := c.opts.Resolver.ResolvePartial(c.name, key.literal)
	if rerr != nil {
		return errorf(c.name, key.line, key.col, "cannot resolve partial %q: %s", key.literal, rerr)
	}
	if _, done := c.partialOffsets[resolvedKey]; !done && !c.queued[resolvedKey] {
		c.queued[resolvedKey] = true
		c.partials = append(c.partials, pendingPartial{key: resolvedKey, source: source})
	}

	c.w.EmitOp(vm.OP_CALL)
	c.callPatches = append(c.callPatches, callPatch{
		operandOff: c.w.Pos(),
		key:        resolvedKey,
		line:       key.line,
		col:        key.col,
	})
	c.w.EmitU32(0)        // patched once the partial's descriptor exists
	c.w.EmitOp(vm.OP_POP) // partials return null
	return nil
}

// Locals

func (c *Compiler) declareLocal(name string, line, col int) error {
	if c.localCount >= config.MaxLocals {
		return errorf(c.name, line, col, "too many locals: limit is %d", config.MaxLocals)
	}
	c.locals = append(c.locals, Local{Name: name, Depth: c.scopeDepth, Slot: c.localCount})
	c.localCount++
	return nil
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			return c.locals[i].Slot, true
		}
	}
	return 0, false
}

// endScope pops every local declared above base, both from the compile
// table and (via POP) from the runtime stack.
func (c *Compiler) endScope(base int) {
	for c.localCount > base {
		c.w.EmitOp(vm.OP_POP)
		c.localCount--
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// dropLocalsTo rolls the compile table back without emitting pops (used
// where the runtime values were consumed by other means).
func (c *Compiler) dropLocalsTo(base int) {
	for c.localCount > base {
		c.localCount--
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) currentBlock(kind blockKind) *openBlock {
	if len(c.blocks) == 0 {
		return nil
	}
	b := &c.blocks[len(c.blocks)-1]
	if b.kind != kind {
		return nil
	}
	return b
}

// Emit helpers

func (c *Compiler) emitLocalOperand(slot int, at token) error {
	if err := c.w.EmitLocal(slot); err != nil {
		return errorf(c.name, at.line, at.col, "%s", err)
	}
	return nil
}

func (c *Compiler) emitStringConstant(s string, line, col int) error {
	off, err := c.w.AddString(s)
	if err != nil {
		return errorf(c.name, line, col, "%s", err)
	}
	c.w.EmitOp(vm.OP_CONSTANT_STRING)
	c.w.EmitU32(off)
	return nil
}

// emitJump emits op with a placeholder i16 offset and returns the operand
// position for patchJump.
func (c *Compiler) emitJump(op vm.Opcode) int {
	c.w.EmitOp(op)
	off := c.w.Pos()
	c.w.EmitI16(0)
	return off
}

// patchJump resolves a forward jump to the current position. Offsets are
// measured from the byte after the operand.
func (c *Compiler) patchJump(operandOff int) {
	rel := c.w.Pos() - (operandOff + 2)
	c.w.PatchI16(operandOff, int16(rel))
}

// emitLoop emits a backward JUMP to target.
func (c *Compiler) emitLoop(target int) {
	c.w.EmitOp(vm.OP_JUMP)
	rel := target - (c.w.Pos() + 2)
	c.w.EmitI16(int16(rel))
}

// emitDebug emits a DEBUG marker (line, col payload) at statement
// boundaries when debug info is on, and records the source map entry at
// full debug.
func (c *Compiler) emitDebug(line, col int) {
	if c.srcMap != nil {
		c.srcMap.Add(c.w.Pos(), line, col)
	}
	if c.opts.Debug < config.DebugMinimal {
		return
	}
	c.w.EmitOp(vm.OP_DEBUG)
	c.w.EmitU16(6) // length prefix + 4 payload bytes
	c.w.EmitU16(uint16(line))
	c.w.EmitU16(uint16(col))
}

// Expression parser (Pratt, emitting as it goes)

type parser struct {
	c    *Compiler
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(typ tokenType) (token, error) {
	t := p.next()
	if t.typ != typ {
		return t, errorf(p.c.name, t.line, t.col, "unexpected %q", t.literal)
	}
	return t, nil
}

func (p *parser) expectEOF() error {
	if t := p.peek(); t.typ != tokEOF {
		return errorf(p.c.name, t.line, t.col, "unexpected %q after expression", t.literal)
	}
	return nil
}

// Precedence levels, lowest first.
const (
	precNone = iota
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precIndex
)

func precedenceOf(t tokenType) int {
	switch t {
	case tokOr:
		return precOr
	case tokAnd:
		return precAnd
	case tokEq, tokNotEq:
		return precEquality
	case tokLess, tokGreater, tokLessEq, tokGreaterEq:
		return precComparison
	case tokPlus, tokMinus:
		return precTerm
	case tokStar, tokSlash, tokPercent:
		return precFactor
	case tokLBracket:
		return precIndex
	default:
		return precNone
	}
}

func (p *parser) expression() error {
	return p.parsePrecedence(precOr)
}

func (p *parser) parsePrecedence(min int) error {
	if err := p.unary(); err != nil {
		return err
	}
	for {
		prec := precedenceOf(p.peek().typ)
		if prec < min {
			return nil
		}
		op := p.next()
		if err := p.infix(op, prec); err != nil {
			return err
		}
	}
}

func (p *parser) infix(op token, prec int) error {
	w := p.c.w

	switch op.typ {
	case tokAnd:
		// a && b: keep a when it is not true, else b.
		falseJump := p.c.emitJump(vm.OP_JUMP_IF_FALSE)
		w.EmitOp(vm.OP_POP)
		if err := p.parsePrecedence(prec + 1); err != nil {
			return err
		}
		p.c.patchJump(falseJump)
		return nil

	case tokOr:
		// a || b: keep a when it is true, else b.
		elseJump := p.c.emitJump(vm.OP_JUMP_IF_FALSE)
		endJump := p.c.emitJump(vm.OP_JUMP)
		p.c.patchJump(elseJump)
		w.EmitOp(vm.OP_POP)
		if err := p.parsePrecedence(prec + 1); err != nil {
			return err
		}
		p.c.patchJump(endJump)
		return nil

	case tokLBracket:
		if err := p.expression(); err != nil {
			return err
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return err
		}
		w.EmitOp(vm.OP_INDEX_GET)
		return nil
	}

	if err := p.parsePrecedence(prec + 1); err != nil {
		return err
	}

	switch op.typ {
	case tokPlus:
		w.EmitOp(vm.OP_ADD)
	case tokMinus:
		w.EmitOp(vm.OP_SUBTRACT)
	case tokStar:
		w.EmitOp(vm.OP_MULTIPLY)
	case tokSlash:
		w.EmitOp(vm.OP_DIVIDE)
	case tokPercent:
		w.EmitOp(vm.OP_MODULUS)
	case tokEq:
		w.EmitOp(vm.OP_EQUAL)
	case tokNotEq:
		w.EmitOp(vm.OP_EQUAL)
		w.EmitOp(vm.OP_NOT)
	case tokLess:
		w.EmitOp(vm.OP_LESSER)
	case tokGreater:
		w.EmitOp(vm.OP_GREATER)
	case tokLessEq:
		w.EmitOp(vm.OP_GREATER)
		w.EmitOp(vm.OP_NOT)
	case tokGreaterEq:
		w.EmitOp(vm.OP_LESSER)
		w.EmitOp(vm.OP_NOT)
	default:
		return errorf(p.c.name, op.line, op.col, "unexpected operator %q", op.literal)
	}
	return nil
}

func (p *parser) unary() error {
	t := p.peek()
	switch t.typ {
	case tokMinus:
		p.pos++
		if err := p.parsePrecedence(precUnary); err != nil {
			return err
		}
		p.c.w.EmitOp(vm.OP_NEGATE)
		return nil
	case tokBang:
		p.pos++
		if err := p.parsePrecedence(precUnary); err != nil {
			return err
		}
		p.c.w.EmitOp(vm.OP_NOT)
		return nil
	}
	return p.primary()
}

func (p *parser) primary() error {
	w := p.c.w
	t := p.next()

	switch t.typ {
	case tokInt:
		v, err := strconv.ParseInt(t.literal, 10, 64)
		if err != nil {
			return errorf(p.c.name, t.line, t.col, "integer literal %q out of range", t.literal)
		}
		w.EmitOp(vm.OP_CONSTANT_I64)
		w.EmitU64(uint64(v))
		return nil

	case tokFloat:
		v, err := strconv.ParseFloat(t.literal, 64)
		if err != nil {
			return errorf(p.c.name, t.line, t.col, "float literal %q out of range", t.literal)
		}
		w.EmitOp(vm.OP_CONSTANT_F64)
		w.EmitU64(math.Float64bits(v))
		return nil

	case tokString:
		return p.c.emitStringConstant(t.literal, t.line, t.col)

	case tokTrue, tokFalse:
		w.EmitOp(vm.OP_CONSTANT_BOOL)
		if t.typ == tokTrue {
			w.EmitByte(1)
		} else {
			w.EmitByte(0)
		}
		return nil

	case tokNull:
		w.EmitOp(vm.OP_CONSTANT_NULL)
		return nil

	case tokLParen:
		if err := p.expression(); err != nil {
			return err
		}
		_, err := p.expect(tokRParen)
		return err

	case tokLBracket:
		count := 0
		if p.peek().typ != tokRBracket {
			for {
				if err := p.expression(); err != nil {
					return err
				}
				count++
				if p.peek().typ != tokComma {
					break
				}
				p.pos++
			}
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return err
		}
		w.EmitOp(vm.OP_INITIALIZE_ARRAY)
		w.EmitU32(uint32(count))
		return nil

	case tokIdent:
		if p.peek().typ == tokLParen {
			return p.hostCall(t)
		}
		slot, ok := p.c.resolveLocal(t.literal)
		if !ok {
			return errorf(p.c.name, t.line, t.col, "unknown variable %q", t.literal)
		}
		w.EmitOp(vm.OP_GET_LOCAL)
		return p.c.emitLocalOperand(slot, t)
	}

	return errorf(p.c.name, t.line, t.col, "unexpected %q", t.literal)
}

// hostCall compiles name(args...) against the registered host functions.
func (p *parser) hostCall(name token) error {
	id, ok := p.c.opts.Funcs[name.literal]
	if !ok {
		return errorf(p.c.name, name.line, name.col, "unknown function %q", name.literal)
	}
	p.pos++ // (

	argc := 0
	if p.peek().typ != tokRParen {
		for {
			if err := p.expression(); err != nil {
				return err
			}
			argc++
			if p.peek().typ != tokComma {
				break
			}
			p.pos++
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return err
	}
	if argc > 255 {
		return errorf(p.c.name, name.line, name.col, "too many arguments to %q: %d (max 255)", name.literal, argc)
	}
	if id < 0 || id > 0xFFFF {
		return errorf(p.c.name, name.line, name.col, "function id %d for %q out of range", id, name.literal)
	}

	p.c.w.EmitOp(vm.OP_CALL_HOST)
	p.c.w.EmitU16(uint16(id))
	p.c.w.EmitByte(byte(argc))
	return nil
}
