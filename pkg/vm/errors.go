// Package vm - runtime error handling with stack traces
package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/glox/pkg/scanner"
)

// StackFrame captures one call frame for a stack trace.
type StackFrame struct {
	Line     int    // source line of the instruction being executed
	Function string // function name, or "script" for the top level
}

// RuntimeError is a runtime failure: the message, the source span of the
// faulting instruction, and the call stack at the time of the error,
// innermost frame first.
type RuntimeError struct {
	Message    string
	Span       scanner.Span
	StackTrace []StackFrame
}

// Error implements the error interface, rendering the message followed
// by one trace line per frame.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, frame := range e.StackTrace {
		fmt.Fprintf(&b, "\n[line %d] in %s", frame.Line, frame.Function)
	}
	return b.String()
}

// runtimeError builds a RuntimeError at the current instruction. The
// instruction pointer has already advanced past the opcode, so the span
// is taken one byte back.
func (vm *VM) runtimeError(frame *CallFrame, format string, args ...interface{}) *RuntimeError {
	err := &RuntimeError{
		Message:    fmt.Sprintf(format, args...),
		StackTrace: vm.stacktrace(),
	}
	if frame != nil {
		err.Span = frame.closure.Function.Chunk.Span(frame.ip - 1)
	}
	return err
}

// stacktrace walks the live frames innermost first
func (vm *VM) stacktrace() []StackFrame {
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function

		name := "script"
		if fn.Name != nil {
			name = fn.Name.Value + "()"
		}
		trace = append(trace, StackFrame{
			Line:     fn.Chunk.Line(frame.ip - 1),
			Function: name,
		})
	}
	return trace
}
