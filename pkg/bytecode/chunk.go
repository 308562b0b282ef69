package bytecode

import "github.com/kristofer/glox/pkg/scanner"

// Chunk is a compiled unit of bytecode: the instruction stream for one
// function body, its constant pool, and one source span per code byte.
//
// The spans array runs parallel to Code so that any instruction offset
// can be mapped back to the source text that produced it. Operand bytes
// carry the span of their instruction.
type Chunk struct {
	Code      []byte
	Constants []Value
	Spans     []scanner.Span
}

// NewChunk creates an empty chunk
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends a raw byte to the instruction stream
func (c *Chunk) Write(b byte, span scanner.Span) {
	c.Code = append(c.Code, b)
	c.Spans = append(c.Spans, span)
}

// WriteOp appends an opcode to the instruction stream
func (c *Chunk) WriteOp(op Opcode, span scanner.Span) {
	c.Write(byte(op), span)
}

// AddConstant appends a value to the constant pool and returns its index.
// The compiler checks the 8-bit index bound before emitting a reference.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Span returns the source span recorded for the code byte at offset
func (c *Chunk) Span(offset int) scanner.Span {
	if offset < 0 || offset >= len(c.Spans) {
		return scanner.Span{}
	}
	return c.Spans[offset]
}

// Line returns the source line recorded for the code byte at offset
func (c *Chunk) Line(offset int) int {
	return c.Span(offset).Line
}
