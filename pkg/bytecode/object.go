package bytecode

import "fmt"

// ObjType tags the variants of a heap object.
type ObjType byte

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeNative
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeClass
	ObjTypeInstance
	ObjTypeBoundMethod
)

// String returns a human-readable name for an object type
func (ot ObjType) String() string {
	switch ot {
	case ObjTypeString:
		return "string"
	case ObjTypeFunction:
		return "function"
	case ObjTypeNative:
		return "native"
	case ObjTypeClosure:
		return "closure"
	case ObjTypeUpvalue:
		return "upvalue"
	case ObjTypeClass:
		return "class"
	case ObjTypeInstance:
		return "instance"
	case ObjTypeBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Obj is the header embedded in every heap object. The heap manager owns
// all three fields: the Next link (the all-objects list walked by the
// sweeper), the mark bit (clear between collections, set during the mark
// phase), and the size recorded at allocation so the sweeper can credit
// the bytes-allocated counter when the object is freed.
type Obj struct {
	Marked bool
	Size   int
	Next   Object
}

// Header gives the heap manager access to the embedded header
func (o *Obj) Header() *Obj { return o }

// Object is implemented by every heap-allocated value variant. A heap
// reference is stable for the object's lifetime; the collector never
// relocates.
type Object interface {
	Type() ObjType
	Header() *Obj
	String() string
}

// Runtime is the handle native functions receive. It exposes just enough
// of the VM for the built-in natives; natives must not retain Values
// across calls, since a collection may run at any later allocation.
type Runtime interface {
	CollectGarbage()
	DumpHeap()
}

// NativeFn is the signature of a host function callable from glox code.
type NativeFn func(argCount int, args []Value, vm Runtime) Value

// UpvalueDesc describes one variable a function captures: the slot or
// upvalue index in the enclosing function, and whether that index refers
// to an enclosing local (true) or to the enclosing function's own
// upvalue vector (false).
type UpvalueDesc struct {
	Index   byte
	IsLocal bool
}

// ObjString is an immutable byte sequence with its FNV-1a hash computed
// at allocation. Strings are interned: byte-equal strings managed by the
// same heap share one object, so identity equality is byte equality.
type ObjString struct {
	Obj
	Value string
	Hash  uint32
}

func (s *ObjString) Type() ObjType  { return ObjTypeString }
func (s *ObjString) String() string { return s.Value }

// ObjFunction is a compiled function body: its arity, bytecode chunk,
// optional name, and the upvalue descriptors the compiler resolved.
type ObjFunction struct {
	Obj
	Arity    int
	Chunk    *Chunk
	Name     *ObjString // nil for the top-level script
	Upvalues []UpvalueDesc
}

func (f *ObjFunction) Type() ObjType { return ObjTypeFunction }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Value)
}

// ObjNative wraps a host function registered at VM construction.
type ObjNative struct {
	Obj
	Name string
	Fn   NativeFn
}

func (n *ObjNative) Type() ObjType  { return ObjTypeNative }
func (n *ObjNative) String() string { return "<native fn>" }

// ObjClosure pairs a function with the upvalue objects it captured, one
// per descriptor, resolved when the closure is created.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Type() ObjType  { return ObjTypeClosure }
func (c *ObjClosure) String() string { return c.Function.String() }

// ObjUpvalue is the cell through which a closure reaches a captured
// variable. While the variable's stack slot is live the upvalue is
// "open": Location points into the VM stack and Slot records the slot
// index (open upvalues thread through Next in descending slot order).
// When the slot is about to pop, the value moves into Closed and
// Location is retargeted at it.
type ObjUpvalue struct {
	Obj
	Location *Value
	Closed   Value
	Slot     int // stack slot while open, -1 once closed
	Next     *ObjUpvalue
}

func (u *ObjUpvalue) Type() ObjType  { return ObjTypeUpvalue }
func (u *ObjUpvalue) String() string { return "upvalue" }

// Close moves the referenced value into the upvalue's own cell
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
	u.Slot = -1
}

// ObjClass is a class: a name and a method table mapping interned method
// names to closures.
type ObjClass struct {
	Obj
	Name    *ObjString
	Methods Table
}

func (c *ObjClass) Type() ObjType  { return ObjTypeClass }
func (c *ObjClass) String() string { return c.Name.Value }

// ObjInstance is an instance of a class with its own field table.
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields Table
}

func (i *ObjInstance) Type() ObjType { return ObjTypeInstance }

func (i *ObjInstance) String() string {
	return fmt.Sprintf("%s instance", i.Class.Name.Value)
}

// ObjBoundMethod is a method closure paired with the receiver it was
// looked up on, so the method can be passed around as a value.
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) Type() ObjType  { return ObjTypeBoundMethod }
func (b *ObjBoundMethod) String() string { return b.Method.String() }
