// Package vm - execution tracing
package vm

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kristofer/glox/pkg/bytecode"
)

// traceInstruction logs the instruction about to execute and the current
// stack contents. Enabled by WithTrace; the output goes through the
// configured logger at debug level, so a silent logger makes tracing
// free to leave compiled in.
func (vm *VM) traceInstruction(frame *CallFrame) {
	chunk := frame.closure.Function.Chunk
	vm.log.Debug(bytecode.DisassembleAt(chunk, frame.ip),
		zap.String("stack", vm.traceStack()))
}

// traceStack renders the value stack bottom-to-top as [ a ][ b ][ c ]
func (vm *VM) traceStack() string {
	var b strings.Builder
	for i := 0; i < vm.stackTop; i++ {
		b.WriteString("[ ")
		b.WriteString(vm.stack[i].String())
		b.WriteString(" ]")
	}
	return b.String()
}
