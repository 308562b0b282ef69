// Package compiler compiles glox source into bytecode in a single pass.
//
// There is no AST: the compiler pulls tokens from the scanner and emits
// instructions as it parses, resolving lexical scope on the way. Each
// function body gets its own compiler context (locals, upvalues, scope
// depth) linked to its enclosing context, which is how closures find the
// variables they capture.
//
// Errors do not stop compilation. Each diagnostic is recorded, the parser
// synchronizes to a statement boundary, and parsing continues, so one
// pass reports as many errors as possible.
package compiler

import (
	"fmt"
	"strings"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/heap"
	"github.com/kristofer/glox/pkg/scanner"
)

const (
	// maxLocals bounds a function's local slots, slot 0 included. Slot
	// indices must fit in a byte.
	maxLocals = 256

	// maxUpvalues bounds the variables one function can capture.
	maxUpvalues = 256

	// maxConstants bounds a chunk's constant pool; indices are one byte.
	maxConstants = 256

	// maxJump is the widest representable jump operand.
	maxJump = 65535
)

// Error is a single compile diagnostic: a message and the source span it
// points at.
type Error struct {
	Message string
	Span    scanner.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("[line %d] Error: %s", e.Span.Line, e.Message)
}

// ErrorList is the set of diagnostics from one compile session.
type ErrorList []*Error

func (el ErrorList) Error() string {
	msgs := make([]string, len(el))
	for i, e := range el {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// FunctionKind distinguishes the compilation contexts that change how
// slot 0 and return statements behave.
type FunctionKind int

const (
	// KindScript is the implicit top-level function.
	KindScript FunctionKind = iota
	// KindFunction is an ordinary function declaration.
	KindFunction
	// KindMethod is a method body; slot 0 holds 'this'.
	KindMethod
	// KindInitializer is a method named init; returns produce the instance.
	KindInitializer
)

// Local tracks one declared local variable in the current function.
// Depth is -1 between declaration and the end of the initializer, which
// is what makes `var a = a;` detectable.
type Local struct {
	Name       string
	Depth      int
	IsCaptured bool
}

// funcCompiler is the per-function compiler context. Contexts nest: each
// function body pushes a fresh one linked to its enclosing context.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *bytecode.ObjFunction
	kind       FunctionKind
	locals     []Local
	scopeDepth int
}

// classCompiler tracks the innermost class declaration being compiled,
// so 'this' and 'super' can be validated without runtime checks.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler drives the token stream and holds shared parse state across
// the stack of function contexts.
type Compiler struct {
	sc      *scanner.Scanner
	heap    *heap.Heap
	current *funcCompiler
	class   *classCompiler

	previous scanner.Token
	token    scanner.Token

	errors    ErrorList
	panicMode bool
}

// Compile compiles source to the top-level function. On any compile
// error the function is nil and the error list has at least one entry.
//
// The heap is used for every object the compiler materializes (name
// strings, function objects); in-progress functions are pinned so a
// collection triggered mid-compile cannot reclaim them.
func Compile(source string, h *heap.Heap) (*bytecode.ObjFunction, ErrorList) {
	c := &Compiler{
		sc:   scanner.New(source),
		heap: h,
	}
	c.pushContext(KindScript)

	c.advance()
	for !c.match(scanner.TokenEOF) {
		c.declaration()
	}
	fn := c.popContext()

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return fn, nil
}

// pushContext starts compiling a new function body. The fresh function
// object is pinned so it stays reachable while its chunk and constants
// are being built.
func (c *Compiler) pushContext(kind FunctionKind) {
	fn := c.heap.NewFunction()
	c.heap.Pin(bytecode.ObjValue(fn))
	if kind != KindScript {
		fn.Name = c.heap.InternString(c.previous.Lexeme)
	}

	fc := &funcCompiler{
		enclosing: c.current,
		function:  fn,
		kind:      kind,
		locals:    make([]Local, 0, 8),
	}

	// Slot 0 is reserved: it holds 'this' inside methods and
	// initializers, and the callee otherwise.
	slotZero := Local{Depth: 0}
	if kind == KindMethod || kind == KindInitializer {
		slotZero.Name = "this"
	}
	fc.locals = append(fc.locals, slotZero)

	c.current = fc
}

// popContext finishes the current function: emits the implicit return,
// unpins the function, and restores the enclosing context.
func (c *Compiler) popContext() *bytecode.ObjFunction {
	c.emitReturn()
	fn := c.current.function
	c.current = c.current.enclosing
	c.heap.Unpin()
	return fn
}

// === Token stream ===

// advance moves to the next token, reporting any error tokens in between
func (c *Compiler) advance() {
	c.previous = c.token
	for {
		c.token = c.sc.Next()
		if c.token.Type != scanner.TokenError {
			break
		}
		c.errorAtCurrent(c.token.Lexeme)
	}
}

// consume advances past a required token or reports message
func (c *Compiler) consume(tt scanner.TokenType, message string) {
	if c.token.Type == tt {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// check reports whether the current token has the given type
func (c *Compiler) check(tt scanner.TokenType) bool {
	return c.token.Type == tt
}

// match consumes the current token if it has the given type
func (c *Compiler) match(tt scanner.TokenType) bool {
	if !c.check(tt) {
		return false
	}
	c.advance()
	return true
}

// === Diagnostics ===

func (c *Compiler) errorAt(tok scanner.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.errors = append(c.errors, &Error{Message: message, Span: tok.Span})
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.token, message)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

// synchronize skips tokens until a likely statement boundary: just past
// a semicolon, or just before a keyword that starts a declaration or
// statement.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.token.Type != scanner.TokenEOF {
		if c.previous.Type == scanner.TokenSemicolon {
			return
		}
		switch c.token.Type {
		case scanner.TokenClass, scanner.TokenFun, scanner.TokenVar,
			scanner.TokenFor, scanner.TokenIf, scanner.TokenWhile,
			scanner.TokenPrint, scanner.TokenReturn:
			return
		}
		c.advance()
	}
}

// === Emission ===

func (c *Compiler) chunk() *bytecode.Chunk {
	return c.current.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Span)
}

func (c *Compiler) emitOp(op bytecode.Opcode) {
	c.chunk().WriteOp(op, c.previous.Span)
}

func (c *Compiler) emitOps(op1, op2 bytecode.Opcode) {
	c.emitOp(op1)
	c.emitOp(op2)
}

func (c *Compiler) emitOpByte(op bytecode.Opcode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

// emitReturn emits the implicit function epilogue. Initializers return
// the instance in slot 0; everything else returns nil.
func (c *Compiler) emitReturn() {
	if c.current.kind == KindInitializer {
		c.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

// makeConstant adds a value to the constant pool, enforcing the one-byte
// index bound at compile time.
func (c *Compiler) makeConstant(v bytecode.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx >= maxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	c.emitOpByte(bytecode.OpConstant, c.makeConstant(v))
}

// identifierConstant interns an identifier and adds it to the pool
func (c *Compiler) identifierConstant(name string) byte {
	str := c.heap.InternString(name)
	return c.makeConstant(bytecode.ObjValue(str))
}

// emitJump writes a forward jump with a placeholder operand and returns
// the operand's offset for patchJump.
func (c *Compiler) emitJump(op bytecode.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

// patchJump back-fills a forward jump to land after the current
// instruction.
func (c *Compiler) patchJump(offset int) {
	// -2 adjusts for the operand bytes themselves
	jump := len(c.chunk().Code) - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

// emitLoop writes a backward jump to loopStart
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// === Scopes and variable resolution ===

func (c *Compiler) beginScope() {
	c.current.scopeDepth++
}

// endScope pops the scope's locals in reverse declaration order. A
// captured local is closed instead of plainly popped, so any upvalue
// pointing at its slot takes ownership of the value first.
func (c *Compiler) endScope() {
	cur := c.current
	cur.scopeDepth--
	for len(cur.locals) > 0 && cur.locals[len(cur.locals)-1].Depth > cur.scopeDepth {
		if cur.locals[len(cur.locals)-1].IsCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		cur.locals = cur.locals[:len(cur.locals)-1]
	}
}

// addLocal declares a new local in the current scope, uninitialized
func (c *Compiler) addLocal(name string) {
	if len(c.current.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.current.locals = append(c.current.locals, Local{Name: name, Depth: -1})
}

// declareVariable records a local declaration. Globals are late-bound by
// name, so at depth zero there is nothing to do.
func (c *Compiler) declareVariable() {
	if c.current.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.current.locals) - 1; i >= 0; i-- {
		local := &c.current.locals[i]
		if local.Depth != -1 && local.Depth < c.current.scopeDepth {
			break
		}
		if local.Name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// markInitialized completes a local declaration so the name becomes
// referable.
func (c *Compiler) markInitialized() {
	if c.current.scopeDepth == 0 {
		return
	}
	c.current.locals[len(c.current.locals)-1].Depth = c.current.scopeDepth
}

// defineVariable finishes a variable declaration: globals get a define
// instruction, locals simply become initialized in place.
func (c *Compiler) defineVariable(global byte) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, global)
}

// resolveLocal finds name among fc's locals, innermost first. Returns -1
// when the name is not a local of this function.
func (c *Compiler) resolveLocal(fc *funcCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].Name == name {
			if fc.locals[i].Depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue finds name in an enclosing function and threads an
// upvalue chain down to fc. The directly enclosing function contributes
// an is-local descriptor; each intermediate function re-exports it as a
// non-local descriptor. Returns -1 when the name is not found anywhere
// up the chain, meaning it must be a global.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}

	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].IsCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}

	if upvalue := c.resolveUpvalue(fc.enclosing, name); upvalue != -1 {
		return c.addUpvalue(fc, byte(upvalue), false)
	}

	return -1
}

// addUpvalue appends an upvalue descriptor to fc's function, reusing an
// existing matching descriptor so each variable is captured once.
func (c *Compiler) addUpvalue(fc *funcCompiler, index byte, isLocal bool) int {
	fn := fc.function
	for i, up := range fn.Upvalues {
		if up.Index == index && up.IsLocal == isLocal {
			return i
		}
	}

	if len(fn.Upvalues) >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}

	fn.Upvalues = append(fn.Upvalues, bytecode.UpvalueDesc{Index: index, IsLocal: isLocal})
	return len(fn.Upvalues) - 1
}
