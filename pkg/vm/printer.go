// Package vm - the print statement's output sink
package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/glox/pkg/bytecode"
)

// Printer receives one value per executed print statement. The VM
// formats nothing itself; the printer decides how a value reaches the
// user.
type Printer interface {
	Print(value bytecode.Value)
}

// ConsolePrinter writes one line per value to standard output.
type ConsolePrinter struct{}

// Print implements Printer
func (ConsolePrinter) Print(value bytecode.Value) {
	fmt.Println(value)
}

// CapturePrinter records printed values in memory. Tests use it to
// assert on program output.
type CapturePrinter struct {
	values []bytecode.Value
}

// Print implements Printer
func (p *CapturePrinter) Print(value bytecode.Value) {
	p.values = append(p.values, value)
}

// Output returns the captured output, one line per printed value
func (p *CapturePrinter) Output() string {
	var b strings.Builder
	for _, v := range p.values {
		b.WriteString(v.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Lines returns the captured values rendered individually
func (p *CapturePrinter) Lines() []string {
	lines := make([]string, len(p.values))
	for i, v := range p.values {
		lines[i] = v.String()
	}
	return lines
}
