// Package vm - built-in native functions
package vm

import (
	"time"

	"github.com/kristofer/glox/pkg/bytecode"
)

// defineNatives registers the standard native functions:
//
//	clock()    wall-clock time in seconds
//	gc()       force a full collection
//	heapdump() print every live heap object
func (vm *VM) defineNatives() {
	vm.defineNative("clock", func(argCount int, args []bytecode.Value, rt bytecode.Runtime) bytecode.Value {
		seconds := float64(time.Now().UnixNano()) / float64(time.Second)
		return bytecode.NumberValue(seconds)
	})
	vm.defineNative("gc", func(argCount int, args []bytecode.Value, rt bytecode.Runtime) bytecode.Value {
		rt.CollectGarbage()
		return bytecode.NilValue()
	})
	vm.defineNative("heapdump", func(argCount int, args []bytecode.Value, rt bytecode.Runtime) bytecode.Value {
		rt.DumpHeap()
		return bytecode.NilValue()
	})
}

// defineNative installs one native in the globals table. Both the name
// string and the native object are parked on the stack until the table
// insert completes, since either allocation can trigger a collection.
func (vm *VM) defineNative(name string, fn bytecode.NativeFn) {
	str := vm.heap.InternString(name)
	vm.push(bytecode.ObjValue(str))
	native := vm.heap.NewNative(name, fn)
	vm.push(bytecode.ObjValue(native))

	vm.globals.Set(vm.peek(1), vm.peek(0))
	vm.pop()
	vm.pop()
}
