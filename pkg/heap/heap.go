// Package heap implements the glox heap manager: allocation, string
// interning, and precise mark-sweep garbage collection.
//
// Every user-visible value that outlives a stack slot is owned by the
// heap. Objects are threaded on a singly-linked list through their
// embedded header; the sweeper walks that list and unlinks anything the
// mark phase did not reach. References are stable for an object's
// lifetime: the collector never relocates.
//
// Collection Triggers:
//
// Alloc collects when the bytes-allocated counter crosses an adaptive
// threshold (it doubles relative to the live size after each cycle), or
// on every allocation when stress mode is on. Callers must therefore
// keep every in-progress object reachable from a root before allocating
// again; the VM does this with its value stack and the compiler with the
// heap's pin stack.
package heap

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kristofer/glox/pkg/bytecode"
)

const (
	// initialGCThreshold is the bytes-allocated level that triggers the
	// first collection.
	initialGCThreshold = 1024 * 1024

	// growFactor scales the next threshold from the post-collection live size.
	growFactor = 2
)

// RootMarker is implemented by owners of GC roots (the VM). During a
// collection the heap asks each registered marker to mark everything it
// can reach.
type RootMarker interface {
	MarkRoots(h *Heap)
}

// Heap owns every live object and the string intern pool.
type Heap struct {
	objects        bytecode.Object // head of the all-objects list
	strings        bytecode.Table  // intern pool: ObjString -> nil
	gray           []bytecode.Object
	pins           []bytecode.Value // explicit roots for in-progress work
	roots          []RootMarker
	bytesAllocated int
	nextGC         int

	// Stress forces a collection on every allocation. Used by tests and
	// the -stress-gc flag to surface reachability bugs immediately.
	Stress bool

	log *zap.Logger
}

// New creates an empty heap. Pass zap.NewNop() to silence GC logging.
func New(log *zap.Logger) *Heap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heap{
		nextGC: initialGCThreshold,
		log:    log,
	}
}

// AddRoots registers a root set owner. The VM registers itself at
// construction; the heap keeps no other reference to it.
func (h *Heap) AddRoots(r RootMarker) {
	h.roots = append(h.roots, r)
}

// BytesAllocated returns the current allocation counter
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// NextGC returns the threshold for the next automatic collection
func (h *Heap) NextGC() int { return h.nextGC }

// Pin pushes a value onto the pin stack, keeping it (and everything it
// references) alive across allocations. The compiler pins the function
// under construction; Unpin must be called in LIFO order.
func (h *Heap) Pin(v bytecode.Value) {
	h.pins = append(h.pins, v)
}

// Unpin pops the most recent pin
func (h *Heap) Unpin() {
	h.pins = h.pins[:len(h.pins)-1]
}

// Alloc takes ownership of a freshly created object: it may first run a
// collection, then accounts the object's size and links it into the
// all-objects list. The object must not yet be reachable from any root;
// it becomes the caller's job to root it before the next allocation.
func (h *Heap) Alloc(obj bytecode.Object) bytecode.Object {
	if h.Stress {
		h.Collect()
	} else if h.bytesAllocated >= h.nextGC {
		h.Collect()
	}

	size := sizeOf(obj)
	h.bytesAllocated += size

	header := obj.Header()
	header.Size = size
	header.Next = h.objects
	h.objects = obj

	h.log.Debug("allocate",
		zap.String("type", obj.Type().String()),
		zap.Int("bytes", size),
		zap.Int("total", h.bytesAllocated))
	return obj
}

// InternString returns the canonical ObjString for s, allocating one if
// this heap has not seen the byte sequence before. Byte-equal strings
// always return the same reference, so value equality on strings reduces
// to pointer equality.
func (h *Heap) InternString(s string) *bytecode.ObjString {
	hash := bytecode.HashString(s)
	if interned := h.strings.FindString(s, hash); interned != nil {
		return interned
	}

	str := &bytecode.ObjString{Value: s, Hash: hash}
	h.Alloc(str)
	// Root the new string while the pool itself may allocate
	h.Pin(bytecode.ObjValue(str))
	h.strings.Set(bytecode.ObjValue(str), bytecode.NilValue())
	h.Unpin()
	return str
}

// NewFunction allocates an empty function object
func (h *Heap) NewFunction() *bytecode.ObjFunction {
	fn := &bytecode.ObjFunction{Chunk: bytecode.NewChunk()}
	h.Alloc(fn)
	return fn
}

// NewNative allocates a native function object
func (h *Heap) NewNative(name string, fn bytecode.NativeFn) *bytecode.ObjNative {
	native := &bytecode.ObjNative{Name: name, Fn: fn}
	h.Alloc(native)
	return native
}

// NewClosure allocates a closure for fn with room for its upvalues
func (h *Heap) NewClosure(fn *bytecode.ObjFunction) *bytecode.ObjClosure {
	closure := &bytecode.ObjClosure{
		Function: fn,
		Upvalues: make([]*bytecode.ObjUpvalue, len(fn.Upvalues)),
	}
	h.Alloc(closure)
	return closure
}

// NewUpvalue allocates an open upvalue for the given stack cell
func (h *Heap) NewUpvalue(location *bytecode.Value, slot int) *bytecode.ObjUpvalue {
	up := &bytecode.ObjUpvalue{Location: location, Slot: slot}
	h.Alloc(up)
	return up
}

// NewClass allocates a class with an empty method table
func (h *Heap) NewClass(name *bytecode.ObjString) *bytecode.ObjClass {
	class := &bytecode.ObjClass{Name: name}
	h.Alloc(class)
	return class
}

// NewInstance allocates an instance with an empty field table
func (h *Heap) NewInstance(class *bytecode.ObjClass) *bytecode.ObjInstance {
	instance := &bytecode.ObjInstance{Class: class}
	h.Alloc(instance)
	return instance
}

// NewBoundMethod allocates a bound method pairing receiver and method
func (h *Heap) NewBoundMethod(receiver bytecode.Value, method *bytecode.ObjClosure) *bytecode.ObjBoundMethod {
	bound := &bytecode.ObjBoundMethod{Receiver: receiver, Method: method}
	h.Alloc(bound)
	return bound
}

// Dump writes one line per live object, newest first. Backs the
// heapdump() native.
func (h *Heap) Dump(w io.Writer) {
	for obj := h.objects; obj != nil; obj = obj.Header().Next {
		fmt.Fprintf(w, "%-12s %s\n", obj.Type(), obj)
	}
}

// DumpToStdout writes the heap dump to standard output
func (h *Heap) DumpToStdout() {
	h.Dump(os.Stdout)
}

// Objects returns the number of live objects. Linear; used by tests and
// GC logging only.
func (h *Heap) Objects() int {
	n := 0
	for obj := h.objects; obj != nil; obj = obj.Header().Next {
		n++
	}
	return n
}

// sizeOf estimates the memory footprint of an object for the collection
// trigger. Go does not expose per-object allocator sizes, so these are
// explicit per-variant estimates: a fixed header plus the variable
// payload. The trigger only needs the counter to grow and shrink in
// proportion to real usage.
func sizeOf(obj bytecode.Object) int {
	const headerSize = 32
	switch o := obj.(type) {
	case *bytecode.ObjString:
		return headerSize + len(o.Value)
	case *bytecode.ObjFunction:
		return headerSize + len(o.Chunk.Code) + 16*len(o.Chunk.Constants) + 2*len(o.Upvalues)
	case *bytecode.ObjNative:
		return headerSize + 16
	case *bytecode.ObjClosure:
		return headerSize + 8*len(o.Upvalues)
	case *bytecode.ObjUpvalue:
		return headerSize + 16
	case *bytecode.ObjClass:
		return headerSize + 16
	case *bytecode.ObjInstance:
		return headerSize + 16
	case *bytecode.ObjBoundMethod:
		return headerSize + 24
	default:
		return headerSize
	}
}
