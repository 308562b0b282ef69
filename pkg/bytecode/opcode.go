// Package bytecode defines the bytecode format and runtime value model for glox.
//
// The bytecode is the low-level representation the glox virtual machine
// executes. Each compiled function body becomes a Chunk: a flat byte stream
// of instructions, a constant pool of literal values, and a parallel table
// of source spans for diagnostics.
//
// Architecture:
//
// The system follows a stack-based architecture where:
//  1. Values are pushed onto and popped from a runtime stack
//  2. Operations consume values from the stack and push results back
//  3. Locals live in stack slots addressed relative to the current call frame
//  4. Globals live in a hash table keyed by interned name
//
// Example compilation:
//
//	Source:  print 1 + 2;
//
//	Bytecode:
//	  CONSTANT 0      ; push constant[0] (1)
//	  CONSTANT 1      ; push constant[1] (2)
//	  ADD             ; pop two, push sum
//	  PRINT           ; pop and print
//	  NIL
//	  RETURN          ; end of script
//
//	Constants: [1, 2]
//
// Instruction Format:
//
// Opcodes are single bytes. Operands follow inline in the code stream:
//   - constant indices, local slots and upvalue indices are one byte
//   - jump and loop offsets are two bytes, big-endian
//   - OpClosure is followed by one (isLocal, index) byte pair per upvalue
//   - OpInvoke and OpSuperInvoke carry a name index byte and an argument
//     count byte
//
// The constant pool keeps the instruction stream compact: literals and
// names are referenced by index instead of being embedded. Entries are
// not deduplicated; every literal and every use of a name (globals,
// properties) adds its own entry.
package bytecode

// Opcode represents a bytecode instruction operation.
//
// Opcodes are single bytes (0-255), making them compact and fast to decode.
type Opcode byte

const (
	// === Constants and literals ===

	// OpConstant pushes a constant from the pool onto the stack.
	// Operand: one byte, index into the constant pool.
	OpConstant Opcode = iota

	// OpNil pushes the nil value.
	OpNil

	// OpTrue pushes the boolean true value.
	OpTrue

	// OpFalse pushes the boolean false value.
	OpFalse

	// === Stack operations ===

	// OpPop removes the top value from the stack.
	// Used to discard expression-statement results and scope locals.
	OpPop

	// === Variable operations ===

	// OpGetLocal pushes the value of a local slot.
	// Operand: one byte, slot index relative to the frame base.
	OpGetLocal

	// OpSetLocal stores the top of the stack into a local slot.
	// The value stays on the stack (assignments are expressions).
	OpSetLocal

	// OpGetGlobal pushes a global variable's value.
	// Operand: one byte, constant index of the interned name.
	OpGetGlobal

	// OpDefineGlobal defines a global from the top of the stack, then pops.
	OpDefineGlobal

	// OpSetGlobal assigns to an existing global. Assigning to a name that
	// was never defined is a runtime error.
	OpSetGlobal

	// OpGetUpvalue pushes the value a closure upvalue currently refers to.
	// Operand: one byte, index into the closure's upvalue vector.
	OpGetUpvalue

	// OpSetUpvalue stores the top of the stack through an upvalue.
	OpSetUpvalue

	// === Property operations ===

	// OpGetProperty reads a field or binds a method on an instance.
	// Operand: one byte, constant index of the property name.
	OpGetProperty

	// OpSetProperty writes a field on an instance.
	OpSetProperty

	// OpGetSuper binds a superclass method to the current receiver.
	// Operand: one byte, constant index of the method name.
	// Stack: the superclass is popped, the receiver stays.
	OpGetSuper

	// === Comparison and arithmetic ===

	// OpEqual pops two values and pushes their equality. Numbers, booleans
	// and nil compare structurally; heap objects compare by identity
	// (interning makes this correct for strings).
	OpEqual

	// OpGreater pops two numbers and pushes a > b.
	OpGreater

	// OpLess pops two numbers and pushes a < b.
	OpLess

	// OpAdd adds two numbers or concatenates two strings.
	OpAdd

	// OpSubtract pops two numbers and pushes a - b.
	OpSubtract

	// OpMultiply pops two numbers and pushes a * b.
	OpMultiply

	// OpDivide pops two numbers and pushes a / b.
	OpDivide

	// OpNot pops a value and pushes its logical negation. Only nil and
	// false are falsey.
	OpNot

	// OpNegate pops a number and pushes its arithmetic negation.
	OpNegate

	// === Statements ===

	// OpPrint pops the top value and hands it to the VM's printer.
	OpPrint

	// === Control flow ===

	// OpJump unconditionally skips forward.
	// Operand: two bytes (big-endian), distance from the next instruction.
	OpJump

	// OpJumpIfFalse skips forward when the top of the stack is falsey.
	// The condition value is left on the stack; if and while pop it on
	// both paths, while and/or keep it as the result when they short-circuit.
	OpJumpIfFalse

	// OpLoop unconditionally jumps backward.
	// Operand: two bytes (big-endian), distance back from the next
	// instruction.
	OpLoop

	// === Calls and closures ===

	// OpCall calls the value sitting below its arguments.
	// Operand: one byte, argument count.
	// Stack before: [callee, arg1, ..., argN]
	OpCall

	// OpInvoke is a fused property-get + call for the common
	// obj.method(args) shape, avoiding a bound-method allocation.
	// Operands: one byte name constant index, one byte argument count.
	OpInvoke

	// OpSuperInvoke is the fused form of OpGetSuper + OpCall.
	// Operands: same as OpInvoke. The superclass is on top of the stack.
	OpSuperInvoke

	// OpClosure wraps a function constant in a closure and pushes it.
	// Operand: one byte constant index, then one (isLocal, index) byte
	// pair per upvalue the function captures.
	OpClosure

	// OpCloseUpvalue closes every open upvalue pointing at the top stack
	// slot, then pops it. Emitted when a captured local goes out of scope.
	OpCloseUpvalue

	// OpReturn returns the top of the stack from the current frame.
	OpReturn

	// === Classes ===

	// OpClass pushes a freshly created class.
	// Operand: one byte, constant index of the class name.
	OpClass

	// OpInherit copies the superclass's method table into the subclass.
	// Stack: [superclass, subclass] -> [superclass]
	OpInherit

	// OpMethod binds the closure on top of the stack as a method of the
	// class beneath it.
	// Operand: one byte, constant index of the method name.
	OpMethod
)

// String returns a human-readable name for an opcode.
//
// Used by the disassembler and the execution tracer so instruction streams
// read as text instead of opaque numbers.
func (op Opcode) String() string {
	switch op {
	case OpConstant:
		return "CONSTANT"
	case OpNil:
		return "NIL"
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	case OpPop:
		return "POP"
	case OpGetLocal:
		return "GET_LOCAL"
	case OpSetLocal:
		return "SET_LOCAL"
	case OpGetGlobal:
		return "GET_GLOBAL"
	case OpDefineGlobal:
		return "DEFINE_GLOBAL"
	case OpSetGlobal:
		return "SET_GLOBAL"
	case OpGetUpvalue:
		return "GET_UPVALUE"
	case OpSetUpvalue:
		return "SET_UPVALUE"
	case OpGetProperty:
		return "GET_PROPERTY"
	case OpSetProperty:
		return "SET_PROPERTY"
	case OpGetSuper:
		return "GET_SUPER"
	case OpEqual:
		return "EQUAL"
	case OpGreater:
		return "GREATER"
	case OpLess:
		return "LESS"
	case OpAdd:
		return "ADD"
	case OpSubtract:
		return "SUBTRACT"
	case OpMultiply:
		return "MULTIPLY"
	case OpDivide:
		return "DIVIDE"
	case OpNot:
		return "NOT"
	case OpNegate:
		return "NEGATE"
	case OpPrint:
		return "PRINT"
	case OpJump:
		return "JUMP"
	case OpJumpIfFalse:
		return "JUMP_IF_FALSE"
	case OpLoop:
		return "LOOP"
	case OpCall:
		return "CALL"
	case OpInvoke:
		return "INVOKE"
	case OpSuperInvoke:
		return "SUPER_INVOKE"
	case OpClosure:
		return "CLOSURE"
	case OpCloseUpvalue:
		return "CLOSE_UPVALUE"
	case OpReturn:
		return "RETURN"
	case OpClass:
		return "CLASS"
	case OpInherit:
		return "INHERIT"
	case OpMethod:
		return "METHOD"
	default:
		return "UNKNOWN"
	}
}
