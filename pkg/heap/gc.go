package heap

import (
	"go.uber.org/zap"

	"github.com/kristofer/glox/pkg/bytecode"
)

// Collect runs one full mark-sweep cycle:
//
//  1. Mark roots: every registered root set plus the pin stack.
//  2. Trace: drain the gray worklist, marking everything reachable.
//  3. Prune the intern pool of strings the trace did not reach.
//  4. Sweep the all-objects list, unlinking unmarked objects and
//     clearing the mark bit on survivors.
//
// Afterwards the next threshold is set to the live size times the growth
// factor.
func (h *Heap) Collect() {
	h.log.Debug("gc begin")
	before := h.bytesAllocated

	h.markRoots()
	h.trace()
	h.strings.DeleteUnmarked()
	h.sweep()

	h.nextGC = h.bytesAllocated * growFactor

	h.log.Debug("gc end",
		zap.Int("collected", before-h.bytesAllocated),
		zap.Int("before", before),
		zap.Int("after", h.bytesAllocated),
		zap.Int("next", h.nextGC))
}

func (h *Heap) markRoots() {
	for _, r := range h.roots {
		r.MarkRoots(h)
	}
	for _, v := range h.pins {
		h.MarkValue(v)
	}
}

// MarkValue marks the object a value references, if any
func (h *Heap) MarkValue(v bytecode.Value) {
	if v.IsObj() {
		h.MarkObject(v.AsObj())
	}
}

// MarkObject marks an object and queues it for tracing. Marking an
// already-marked object is a no-op, which is what terminates cycles.
func (h *Heap) MarkObject(obj bytecode.Object) {
	if obj == nil || obj.Header().Marked {
		return
	}
	obj.Header().Marked = true
	h.gray = append(h.gray, obj)
}

// MarkTable marks every key and value in a table
func (h *Heap) MarkTable(t *bytecode.Table) {
	t.Each(func(key, value bytecode.Value) {
		h.MarkValue(key)
		h.MarkValue(value)
	})
}

// trace drains the gray worklist, blackening one object at a time
func (h *Heap) trace() {
	for len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(obj)
	}
}

// blacken marks everything an object references. Strings and natives
// hold no references; the other variants mirror the data model.
func (h *Heap) blacken(obj bytecode.Object) {
	switch o := obj.(type) {
	case *bytecode.ObjString, *bytecode.ObjNative:
		// No outgoing references
	case *bytecode.ObjFunction:
		if o.Name != nil {
			h.MarkObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			h.MarkValue(c)
		}
	case *bytecode.ObjClosure:
		h.MarkObject(o.Function)
		for _, up := range o.Upvalues {
			// Slots are nil while OpClosure is still capturing
			if up != nil {
				h.MarkObject(up)
			}
		}
	case *bytecode.ObjUpvalue:
		// Marking the closed cell of a still-open upvalue touches a nil
		// value, which is harmless.
		h.MarkValue(o.Closed)
	case *bytecode.ObjClass:
		h.MarkObject(o.Name)
		h.MarkTable(&o.Methods)
	case *bytecode.ObjInstance:
		h.MarkObject(o.Class)
		h.MarkTable(&o.Fields)
	case *bytecode.ObjBoundMethod:
		h.MarkValue(o.Receiver)
		h.MarkObject(o.Method)
	}
}

// sweep walks the all-objects list, freeing unmarked objects and
// clearing the mark bit on survivors so the next cycle starts clean.
func (h *Heap) sweep() {
	var previous bytecode.Object
	obj := h.objects
	for obj != nil {
		header := obj.Header()
		if header.Marked {
			header.Marked = false
			previous = obj
			obj = header.Next
			continue
		}

		unreached := obj
		obj = header.Next
		if previous != nil {
			previous.Header().Next = obj
		} else {
			h.objects = obj
		}
		h.free(unreached)
	}
}

// free unlinks an object from the accounting. The Go runtime reclaims
// the storage once nothing references it; what matters here is that the
// object has left the heap's object list and byte counter.
func (h *Heap) free(obj bytecode.Object) {
	header := obj.Header()
	h.bytesAllocated -= header.Size
	header.Next = nil

	h.log.Debug("free",
		zap.String("type", obj.Type().String()),
		zap.Int("bytes", header.Size))
}
