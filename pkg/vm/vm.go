// Package vm implements the bytecode virtual machine for glox.
//
// The VM is a stack-based interpreter and the final stage in the
// execution pipeline:
//
//	Source Code -> Scanner -> Compiler -> Bytecode -> VM -> Execution
//
// Virtual Machine Architecture:
//
//  1. Value Stack: one fixed array shared by every call frame. A frame
//     owns the window starting at its base slot; slot 0 of the window is
//     the callee (or the receiver, for methods), parameters follow.
//  2. Call Frames: a fixed array of (closure, instruction pointer, base
//     slot) records. Calling pushes a frame, returning pops it and
//     truncates the value stack back to the base.
//  3. Globals: a hash table keyed by interned name, late-bound so
//     functions can reference globals defined after them.
//  4. Open Upvalues: a list, sorted by stack slot descending, of the
//     upvalues that still point into the value stack. Closing moves the
//     value into the upvalue and retargets it.
//  5. Heap: every object the program materializes goes through the heap
//     manager; the VM registers itself as the root set for collection.
//
// Execution Model:
//
// The main loop fetches one opcode from the current frame, advances the
// instruction pointer, and dispatches. Execution ends when the outermost
// frame returns or a runtime error is raised. Runtime errors carry the
// source span of the faulting instruction and a stack trace; the stack
// is reset so the VM is reusable afterwards (the REPL relies on this).
package vm

import (
	"go.uber.org/zap"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/compiler"
	"github.com/kristofer/glox/pkg/heap"
)

const (
	// FramesMax bounds call depth; exceeding it is a stack overflow.
	FramesMax = 64

	// StackMax is the value stack size: room for every frame's window.
	StackMax = 256 * FramesMax
)

// CallFrame is one function invocation: the closure being run, the
// instruction pointer into its chunk, and the stack index of slot 0.
type CallFrame struct {
	closure *bytecode.ObjClosure
	ip      int
	slots   int
}

// VM is the virtual machine. One instance is owned by exactly one
// caller; nothing in it is safe for concurrent use.
type VM struct {
	stack      [StackMax]bytecode.Value
	stackTop   int
	frames     [FramesMax]CallFrame
	frameCount int

	heap         *heap.Heap
	globals      bytecode.Table
	openUpvalues *bytecode.ObjUpvalue
	initString   *bytecode.ObjString

	printer  Printer
	trace    bool
	stressGC bool
	log      *zap.Logger
}

// Option configures a VM at construction
type Option func(*VM)

// WithPrinter replaces the printer the print statement writes to
func WithPrinter(p Printer) Option {
	return func(vm *VM) { vm.printer = p }
}

// WithLogger sets the logger used for GC logs and execution tracing
func WithLogger(log *zap.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithTrace enables per-instruction disassembly and stack logging
func WithTrace() Option {
	return func(vm *VM) { vm.trace = true }
}

// WithStressGC forces a collection on every allocation
func WithStressGC() Option {
	return func(vm *VM) { vm.stressGC = true }
}

// New creates a virtual machine with its own heap and the standard
// native functions registered. The VM is reusable: Interpret can be
// called repeatedly and globals persist across runs.
func New(opts ...Option) *VM {
	vm := &VM{
		printer: ConsolePrinter{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.heap = heap.New(vm.log)
	vm.heap.Stress = vm.stressGC
	vm.heap.AddRoots(vm)

	// Cached so constructor lookup does not re-intern on every call.
	vm.initString = vm.heap.InternString("init")

	vm.defineNatives()
	return vm
}

// Heap exposes the VM's heap manager
func (vm *VM) Heap() *heap.Heap { return vm.heap }

// Interpret compiles and runs one unit of source. The returned error is
// a compiler.ErrorList for compile failures or a *RuntimeError for
// runtime failures.
func (vm *VM) Interpret(source string) error {
	fn, errs := compiler.Compile(source, vm.heap)
	if errs != nil {
		return errs
	}

	// Keep the function rooted while the closure is allocated.
	vm.push(bytecode.ObjValue(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(bytecode.ObjValue(closure))

	if err := vm.callValue(bytecode.ObjValue(closure), 0); err != nil {
		vm.resetStack()
		return err
	}
	if err := vm.run(); err != nil {
		vm.resetStack()
		return err
	}
	return nil
}

// run is the fetch/decode/execute loop
func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]

	for {
		if vm.trace {
			vm.traceInstruction(frame)
		}

		op := bytecode.Opcode(vm.readByte(frame))
		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNil:
			vm.push(bytecode.NilValue())

		case bytecode.OpTrue:
			vm.push(bytecode.BoolValue(true))

		case bytecode.OpFalse:
			vm.push(bytecode.BoolValue(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slots+slot])

		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slots+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readConstant(frame)
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError(frame, "Undefined variable '%s'.", name)
			}
			vm.push(value)

		case bytecode.OpDefineGlobal:
			name := vm.readConstant(frame)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case bytecode.OpSetGlobal:
			name := vm.readConstant(frame)
			// An insert that reports "new" means the name was never
			// defined: roll the entry back and error.
			if isNew := vm.globals.Set(name, vm.peek(0)); isNew {
				vm.globals.Delete(name)
				return vm.runtimeError(frame, "Undefined variable '%s'.", name)
			}

		case bytecode.OpGetUpvalue:
			index := int(vm.readByte(frame))
			vm.push(*frame.closure.Upvalues[index].Location)

		case bytecode.OpSetUpvalue:
			index := int(vm.readByte(frame))
			*frame.closure.Upvalues[index].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			name := vm.readConstant(frame)
			instance, ok := vm.peek(0).AsObj().(*bytecode.ObjInstance)
			if !ok {
				return vm.runtimeError(frame, "Only instances have properties.")
			}
			if value, found := instance.Fields.Get(name); found {
				vm.pop()
				vm.push(value)
			} else if err := vm.bindMethod(frame, instance.Class, name); err != nil {
				return err
			}

		case bytecode.OpSetProperty:
			name := vm.readConstant(frame)
			instance, ok := vm.peek(1).AsObj().(*bytecode.ObjInstance)
			if !ok {
				return vm.runtimeError(frame, "Only instances have fields.")
			}
			instance.Fields.Set(name, vm.peek(0))
			value := vm.pop()
			vm.pop()
			vm.push(value)

		case bytecode.OpGetSuper:
			name := vm.readConstant(frame)
			superclass := vm.pop().AsObj().(*bytecode.ObjClass)
			if err := vm.bindMethod(frame, superclass, name); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.BoolValue(a.Equals(b)))

		case bytecode.OpGreater:
			if err := vm.binaryCompare(frame, op); err != nil {
				return err
			}

		case bytecode.OpLess:
			if err := vm.binaryCompare(frame, op); err != nil {
				return err
			}

		case bytecode.OpAdd:
			if err := vm.add(frame); err != nil {
				return err
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if err := vm.binaryArith(frame, op); err != nil {
				return err
			}

		case bytecode.OpNot:
			vm.push(bytecode.BoolValue(vm.pop().IsFalsey()))

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(frame, "Operand must be a number.")
			}
			vm.push(bytecode.NumberValue(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			vm.printer.Print(vm.pop())

		case bytecode.OpJump:
			offset := vm.readShort(frame)
			frame.ip += offset

		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case bytecode.OpLoop:
			offset := vm.readShort(frame)
			frame.ip -= offset

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpInvoke:
			name := vm.readConstant(frame)
			argCount := int(vm.readByte(frame))
			if err := vm.invoke(frame, name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpSuperInvoke:
			name := vm.readConstant(frame)
			argCount := int(vm.readByte(frame))
			superclass := vm.pop().AsObj().(*bytecode.ObjClass)
			if err := vm.invokeFromClass(frame, superclass, name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := vm.readConstant(frame).AsObj().(*bytecode.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(bytecode.ObjValue(closure))
			for i := range closure.Upvalues {
				isLocal := vm.readByte(frame)
				index := int(vm.readByte(frame))
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			name := vm.readConstant(frame).AsString()
			class := vm.heap.NewClass(name)
			vm.push(bytecode.ObjValue(class))

		case bytecode.OpInherit:
			superclass, ok := vm.peek(1).AsObj().(*bytecode.ObjClass)
			if !ok {
				return vm.runtimeError(frame, "Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*bytecode.ObjClass)
			subclass.Methods.AddAll(&superclass.Methods)
			vm.pop() // subclass

		case bytecode.OpMethod:
			name := vm.readConstant(frame)
			method := vm.peek(0)
			class := vm.peek(1).AsObj().(*bytecode.ObjClass)
			class.Methods.Set(name, method)
			vm.pop()

		default:
			return vm.runtimeError(frame, "Unknown opcode %d.", byte(op))
		}
	}
}

// === Instruction decoding ===

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readShort(frame *CallFrame) int {
	hi := int(vm.readByte(frame))
	lo := int(vm.readByte(frame))
	return hi<<8 | lo
}

func (vm *VM) readConstant(frame *CallFrame) bytecode.Value {
	return frame.closure.Function.Chunk.Constants[vm.readByte(frame)]
}

// === Stack ===

func (vm *VM) push(v bytecode.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// StackSize returns the number of values on the stack. After Interpret
// returns it is always zero; tests lean on that invariant.
func (vm *VM) StackSize() int { return vm.stackTop }

// === Arithmetic ===

func (vm *VM) binaryArith(frame *CallFrame, op bytecode.Opcode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(frame, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case bytecode.OpSubtract:
		vm.push(bytecode.NumberValue(a - b))
	case bytecode.OpMultiply:
		vm.push(bytecode.NumberValue(a * b))
	case bytecode.OpDivide:
		vm.push(bytecode.NumberValue(a / b))
	}
	return nil
}

func (vm *VM) binaryCompare(frame *CallFrame, op bytecode.Opcode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(frame, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	if op == bytecode.OpGreater {
		vm.push(bytecode.BoolValue(a > b))
	} else {
		vm.push(bytecode.BoolValue(a < b))
	}
	return nil
}

// add handles numeric addition and string concatenation. The operands
// stay on the stack until the result string is interned, so a collection
// triggered by the allocation cannot reclaim them.
func (vm *VM) add(frame *CallFrame) error {
	switch {
	case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
		b := vm.pop().AsNumber()
		a := vm.pop().AsNumber()
		vm.push(bytecode.NumberValue(a + b))
		return nil
	case vm.peek(0).AsString() != nil && vm.peek(1).AsString() != nil:
		b := vm.peek(0).AsString()
		a := vm.peek(1).AsString()
		result := vm.heap.InternString(a.Value + b.Value)
		vm.pop()
		vm.pop()
		vm.push(bytecode.ObjValue(result))
		return nil
	default:
		return vm.runtimeError(frame, "Operands must be two numbers or two strings.")
	}
}

// === Calls ===

// callValue dispatches a call on any value: closures push a frame,
// natives run inline, classes construct, bound methods re-insert their
// receiver. Anything else is not callable.
func (vm *VM) callValue(callee bytecode.Value, argCount int) error {
	frame := vm.currentFrame()
	if !callee.IsObj() {
		return vm.runtimeError(frame, "Can only call functions or classes.")
	}

	switch obj := callee.AsObj().(type) {
	case *bytecode.ObjClosure:
		return vm.call(obj, argCount)

	case *bytecode.ObjNative:
		args := vm.stack[vm.stackTop-argCount : vm.stackTop]
		result := obj.Fn(argCount, args, vm)
		vm.stackTop -= argCount + 1
		vm.push(result)
		return nil

	case *bytecode.ObjClass:
		instance := vm.heap.NewInstance(obj)
		vm.stack[vm.stackTop-argCount-1] = bytecode.ObjValue(instance)
		if initializer, ok := obj.Methods.Get(bytecode.ObjValue(vm.initString)); ok {
			return vm.call(initializer.AsObj().(*bytecode.ObjClosure), argCount)
		}
		if argCount != 0 {
			return vm.runtimeError(frame, "Expected 0 arguments but got %d.", argCount)
		}
		return nil

	case *bytecode.ObjBoundMethod:
		vm.stack[vm.stackTop-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)

	default:
		return vm.runtimeError(frame, "Can only call functions or classes.")
	}
}

// call pushes a frame for a closure after checking arity and depth
func (vm *VM) call(closure *bytecode.ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError(vm.currentFrame(),
			"Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError(vm.currentFrame(), "Stack overflow.")
	}

	frame := &vm.frames[vm.frameCount]
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	vm.frameCount++
	return nil
}

// invoke is the fused obj.name(args) path. A field holding a callable
// shadows a method of the same name, so fields are checked first.
func (vm *VM) invoke(frame *CallFrame, name bytecode.Value, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := receiver.AsObj().(*bytecode.ObjInstance)
	if !ok {
		return vm.runtimeError(frame, "Only instances have methods.")
	}

	if field, found := instance.Fields.Get(name); found {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(frame, instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(frame *CallFrame, class *bytecode.ObjClass, name bytecode.Value, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(frame, "Undefined property '%s'.", name)
	}
	return vm.call(method.AsObj().(*bytecode.ObjClosure), argCount)
}

// bindMethod wraps a method looked up on class in a bound method whose
// receiver is the value on top of the stack.
func (vm *VM) bindMethod(frame *CallFrame, class *bytecode.ObjClass, name bytecode.Value) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(frame, "Undefined property '%s'.", name)
	}

	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObj().(*bytecode.ObjClosure))
	vm.pop()
	vm.push(bytecode.ObjValue(bound))
	return nil
}

// === Upvalues ===

// captureUpvalue returns the open upvalue for a stack slot, creating one
// in list position if none exists. The list is sorted by slot descending,
// so the walk stops at the first slot not above the target.
func (vm *VM) captureUpvalue(slot int) *bytecode.ObjUpvalue {
	var prev *bytecode.ObjUpvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && upvalue.Slot > slot {
		prev = upvalue
		upvalue = upvalue.Next
	}

	if upvalue != nil && upvalue.Slot == slot {
		return upvalue
	}

	created := vm.heap.NewUpvalue(&vm.stack[slot], slot)
	created.Next = upvalue
	if prev != nil {
		prev.Next = created
	} else {
		vm.openUpvalues = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above the given slot.
// Because the list is sorted, that is a prefix of it.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		upvalue := vm.openUpvalues
		vm.openUpvalues = upvalue.Next
		upvalue.Close()
		upvalue.Next = nil
	}
}

func (vm *VM) currentFrame() *CallFrame {
	if vm.frameCount == 0 {
		return nil
	}
	return &vm.frames[vm.frameCount-1]
}

// === GC root set ===

// MarkRoots implements heap.RootMarker: the stack, every frame's
// closure, the open upvalues, the globals table and the cached init
// string are the VM's roots.
func (vm *VM) MarkRoots(h *heap.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for upvalue := vm.openUpvalues; upvalue != nil; upvalue = upvalue.Next {
		h.MarkObject(upvalue)
	}
	h.MarkTable(&vm.globals)
	// Nil while New is still interning it (a stress collection can run then)
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

// CollectGarbage implements bytecode.Runtime for the gc() native
func (vm *VM) CollectGarbage() {
	vm.heap.Collect()
}

// DumpHeap implements bytecode.Runtime for the heapdump() native
func (vm *VM) DumpHeap() {
	vm.heap.DumpToStdout()
}
