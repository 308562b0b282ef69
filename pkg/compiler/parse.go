package compiler

import (
	"strconv"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/scanner"
)

// Precedence levels, lowest to highest. Each infix rule parses its right
// operand at one level above its own, which is what makes the operators
// left-associative.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

// parseFn is a Pratt handler. canAssign tells prefix handlers for
// assignable expressions whether an '=' here would be an assignment or a
// misparse (it is only passed down while precedence <= assignment).
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is the Pratt table, indexed by token type. Populated in init to
// break the initialization cycle between the table and the handlers.
var rules map[scanner.TokenType]parseRule

func init() {
	rules = map[scanner.TokenType]parseRule{
		scanner.TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, precCall},
		scanner.TokenDot:          {nil, (*Compiler).dot, precCall},
		scanner.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		scanner.TokenPlus:         {nil, (*Compiler).binary, precTerm},
		scanner.TokenSlash:        {nil, (*Compiler).binary, precFactor},
		scanner.TokenStar:         {nil, (*Compiler).binary, precFactor},
		scanner.TokenBang:         {(*Compiler).unary, nil, precNone},
		scanner.TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
		scanner.TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
		scanner.TokenGreater:      {nil, (*Compiler).binary, precComparison},
		scanner.TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
		scanner.TokenLess:         {nil, (*Compiler).binary, precComparison},
		scanner.TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
		scanner.TokenIdentifier:   {(*Compiler).variable, nil, precNone},
		scanner.TokenString:       {(*Compiler).stringLiteral, nil, precNone},
		scanner.TokenNumber:       {(*Compiler).number, nil, precNone},
		scanner.TokenAnd:          {nil, (*Compiler).and, precAnd},
		scanner.TokenOr:           {nil, (*Compiler).or, precOr},
		scanner.TokenFalse:        {(*Compiler).literal, nil, precNone},
		scanner.TokenTrue:         {(*Compiler).literal, nil, precNone},
		scanner.TokenNil:          {(*Compiler).literal, nil, precNone},
		scanner.TokenSuper:        {(*Compiler).super, nil, precNone},
		scanner.TokenThis:         {(*Compiler).this, nil, precNone},
	}
}

func getRule(tt scanner.TokenType) parseRule {
	return rules[tt]
}

// parsePrecedence parses any expression at the given precedence or
// higher. This is the heart of the Pratt parser: one prefix handler,
// then infix handlers as long as their precedence qualifies.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.token.Type).prec {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	// An '=' still sitting here means the prefix expression was not an
	// assignment target.
	if canAssign && c.match(scanner.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// === Declarations ===

func (c *Compiler) declaration() {
	switch {
	case c.match(scanner.TokenClass):
		c.classDeclaration()
	case c.match(scanner.TokenFun):
		c.funDeclaration()
	case c.match(scanner.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

// parseVariable consumes an identifier and declares it. For globals it
// returns the constant index of the name; for locals the index is
// meaningless (resolution is by slot).
func (c *Compiler) parseVariable(message string) byte {
	c.consume(scanner.TokenIdentifier, message)
	c.declareVariable()
	if c.current.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(scanner.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(scanner.TokenSemicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// A function may refer to itself; the name is usable as soon as the
	// body starts.
	c.markInitialized()
	c.function(KindFunction)
	c.defineVariable(global)
}

// function compiles a parameter list and body in a fresh context, then
// emits the closure instruction in the enclosing function.
func (c *Compiler) function(kind FunctionKind) {
	c.pushContext(kind)
	c.beginScope()

	c.consume(scanner.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(scanner.TokenRightParen) {
		for {
			c.current.function.Arity++
			if c.current.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			param := c.parseVariable("Expect parameter name.")
			c.defineVariable(param)
			if !c.match(scanner.TokenComma) {
				break
			}
		}
	}
	c.consume(scanner.TokenRightParen, "Expect ')' after parameters.")
	c.consume(scanner.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	// No endScope: the frame teardown on return discards the locals.
	fn := c.popContext()

	c.emitOpByte(bytecode.OpClosure, c.makeConstant(bytecode.ObjValue(fn)))
	for _, up := range fn.Upvalues {
		if up.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(up.Index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(scanner.TokenIdentifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(className.Lexeme)
	c.declareVariable()

	c.emitOpByte(bytecode.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	c.class = &classCompiler{enclosing: c.class}

	if c.match(scanner.TokenLess) {
		c.consume(scanner.TokenIdentifier, "Expect superclass name.")
		c.variable(false)

		if className.Lexeme == c.previous.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		// Bind the superclass to a hidden local named 'super' in its own
		// scope, so methods can capture it as an upvalue.
		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(bytecode.OpInherit)
		c.class.hasSuperclass = true
	}

	// The methods need the class back on the stack to bind into.
	c.namedVariable(className, false)
	c.consume(scanner.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(scanner.TokenRightBrace) && !c.check(scanner.TokenEOF) {
		c.method()
	}
	c.consume(scanner.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(bytecode.OpPop)

	if c.class.hasSuperclass {
		c.endScope()
	}
	c.class = c.class.enclosing
}

func (c *Compiler) method() {
	c.consume(scanner.TokenIdentifier, "Expect method name.")
	constant := c.identifierConstant(c.previous.Lexeme)

	kind := KindMethod
	if c.previous.Lexeme == "init" {
		kind = KindInitializer
	}
	c.function(kind)
	c.emitOpByte(bytecode.OpMethod, constant)
}

// === Statements ===

func (c *Compiler) statement() {
	switch {
	case c.match(scanner.TokenPrint):
		c.printStatement()
	case c.match(scanner.TokenFor):
		c.forStatement()
	case c.match(scanner.TokenIf):
		c.ifStatement()
	case c.match(scanner.TokenReturn):
		c.returnStatement()
	case c.match(scanner.TokenWhile):
		c.whileStatement()
	case c.match(scanner.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(scanner.TokenRightBrace) && !c.check(scanner.TokenEOF) {
		c.declaration()
	}
	c.consume(scanner.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(scanner.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(scanner.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(scanner.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	elseJump := c.emitJump(bytecode.OpJump)

	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(scanner.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(scanner.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

// forStatement desugars for(init; cond; step) into nested scopes around
// a while-shaped loop, with the increment clause compiled after the body
// via a pair of jumps.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(scanner.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(scanner.TokenSemicolon):
		// No initializer
	case c.match(scanner.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(scanner.TokenSemicolon) {
		c.expression()
		c.consume(scanner.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(scanner.TokenRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(scanner.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.current.kind == KindScript {
		c.error("Can't return from top-level code.")
	}

	if c.match(scanner.TokenSemicolon) {
		c.emitReturn()
		return
	}

	if c.current.kind == KindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(scanner.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(bytecode.OpReturn)
}

// === Expressions ===

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(scanner.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(canAssign bool) {
	value, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(bytecode.NumberValue(value))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	// Trim the surrounding quotes
	lexeme := c.previous.Lexeme
	str := c.heap.InternString(lexeme[1 : len(lexeme)-1])
	c.emitConstant(bytecode.ObjValue(str))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case scanner.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case scanner.TokenNil:
		c.emitOp(bytecode.OpNil)
	case scanner.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func (c *Compiler) unary(canAssign bool) {
	op := c.previous.Type
	c.parsePrecedence(precUnary)
	switch op {
	case scanner.TokenBang:
		c.emitOp(bytecode.OpNot)
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	}
}

// binary compiles the right operand, then the operator. The relational
// operators >= and <= lower to the strict comparison plus Not; with NaN
// operands this makes `a <= b` behave as `!(a > b)`, matching the
// bytecode this interpreter is modeled on.
func (c *Compiler) binary(canAssign bool) {
	op := c.previous.Type
	rule := getRule(op)
	c.parsePrecedence(rule.prec + 1)

	switch op {
	case scanner.TokenBangEqual:
		c.emitOps(bytecode.OpEqual, bytecode.OpNot)
	case scanner.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case scanner.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case scanner.TokenGreaterEqual:
		c.emitOps(bytecode.OpLess, bytecode.OpNot)
	case scanner.TokenLess:
		c.emitOp(bytecode.OpLess)
	case scanner.TokenLessEqual:
		c.emitOps(bytecode.OpGreater, bytecode.OpNot)
	case scanner.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case scanner.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case scanner.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case scanner.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	}
}

// and short-circuits: if the left side is falsey it stays as the result,
// otherwise it is popped and the right side takes over.
func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

// or short-circuits the mirror way, built from the same conditional jump
func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

// namedVariable emits the load or store for an identifier, resolving it
// through the three tiers: local slot, upvalue, then late-bound global.
func (c *Compiler) namedVariable(name scanner.Token, canAssign bool) {
	var getOp, setOp bytecode.Opcode
	var arg int

	if arg = c.resolveLocal(c.current, name.Lexeme); arg != -1 {
		getOp = bytecode.OpGetLocal
		setOp = bytecode.OpSetLocal
	} else if arg = c.resolveUpvalue(c.current, name.Lexeme); arg != -1 {
		getOp = bytecode.OpGetUpvalue
		setOp = bytecode.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name.Lexeme))
		getOp = bytecode.OpGetGlobal
		setOp = bytecode.OpSetGlobal
	}

	if canAssign && c.match(scanner.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// call compiles an argument list for the expression just compiled
func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOpByte(bytecode.OpCall, argCount)
}

// dot compiles property access, assignment, or a fused method invocation
func (c *Compiler) dot(canAssign bool) {
	c.consume(scanner.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous.Lexeme)

	switch {
	case canAssign && c.match(scanner.TokenEqual):
		c.expression()
		c.emitOpByte(bytecode.OpSetProperty, name)
	case c.match(scanner.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(bytecode.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(bytecode.OpGetProperty, name)
	}
}

func (c *Compiler) this(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	// 'this' is just local slot 0, resolved like any variable so nested
	// closures capture it as an upvalue.
	c.variable(false)
}

func (c *Compiler) super(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(scanner.TokenDot, "Expect '.' after 'super'.")
	c.consume(scanner.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(scanner.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpGetSuper, name)
	}
}

// argumentList compiles a parenthesized argument list and returns the
// count, enforcing the one-byte bound.
func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.check(scanner.TokenRightParen) {
		for {
			c.expression()
			if argCount == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(scanner.TokenComma) {
				break
			}
		}
	}
	c.consume(scanner.TokenRightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

// syntheticToken fabricates an identifier token for names the compiler
// introduces itself ('this', 'super').
func syntheticToken(name string) scanner.Token {
	return scanner.Token{Type: scanner.TokenIdentifier, Lexeme: name}
}
