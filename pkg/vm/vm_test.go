package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/glox/pkg/compiler"
)

// run interprets source on a fresh VM and returns the VM, its captured
// output, and the interpreter error.
func run(t *testing.T, source string) (*VM, *CapturePrinter, error) {
	t.Helper()
	printer := &CapturePrinter{}
	machine := New(WithPrinter(printer))
	err := machine.Interpret(source)
	return machine, printer, err
}

// runOK asserts the program runs cleanly and returns its output
func runOK(t *testing.T, source string) string {
	t.Helper()
	machine, printer, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, 0, machine.StackSize(), "stack must be empty after interpret")
	return printer.Output()
}

// runtimeErr asserts the program fails at runtime and returns the error
func runtimeErr(t *testing.T, source string) *RuntimeError {
	t.Helper()
	machine, _, err := run(t, source)
	require.Error(t, err)
	rte, ok := err.(*RuntimeError)
	require.True(t, ok, "expected runtime error, got %T: %v", err, err)
	assert.Equal(t, 0, machine.StackSize(), "stack must be reset after error")
	return rte
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print 1 + 2 * 3;", "7\n"},
		{"print (1 + 2) * 3;", "9\n"},
		{"print 10 - 3;", "7\n"},
		{"print 12 / 3;", "4\n"},
		{"print -4;", "-4\n"},
		{"print --4;", "4\n"},
		{"print 0.1 + 0.2;", "0.30000000000000004\n"},
		{"print 1 / 0;", "+Inf\n"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), "source %q", tt.source)
	}
}

func TestComparisonAndEquality(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print 3 < 4;", "true\n"},
		{"print 4 < 3;", "false\n"},
		{"print 3 > 4;", "false\n"},
		{"print 3 <= 3;", "true\n"},
		{"print 3 >= 4;", "false\n"},
		{"print 1 == 1;", "true\n"},
		{"print 1 == 2;", "false\n"},
		{"print 1 != 2;", "true\n"},
		{"print nil == nil;", "true\n"},
		{"print true == true;", "true\n"},
		{"print 1 == true;", "false\n"},
		{"print nil == false;", "false\n"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), "source %q", tt.source)
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print !nil;", "true\n"},
		{"print !false;", "true\n"},
		{"print !true;", "false\n"},
		{"print !0;", "false\n"},
		{"print !\"\";", "false\n"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), "source %q", tt.source)
	}
}

func TestStringConcatenation(t *testing.T) {
	out := runOK(t, `print "foo" + "bar";`)
	assert.Equal(t, "foobar\n", out)
}

func TestStringInterningGivesIdentityEquality(t *testing.T) {
	out := runOK(t, `var a = "foo"; var b = "foo"; print a == b;`)
	assert.Equal(t, "true\n", out)
}

func TestConcatenatedStringsInternToo(t *testing.T) {
	out := runOK(t, `
var a = "foo" + "bar";
var b = "foobar";
print a == b;
`)
	assert.Equal(t, "true\n", out)
}

func TestGlobals(t *testing.T) {
	out := runOK(t, `
var a = 1;
var b = 2;
print a + b;
a = 10;
print a + b;
`)
	assert.Equal(t, "3\n12\n", out)
}

func TestGlobalRedeclarationIsLastWriteWins(t *testing.T) {
	out := runOK(t, "var a = 1; var a = 2; print a;")
	assert.Equal(t, "2\n", out)
}

func TestLocals(t *testing.T) {
	out := runOK(t, `
{
  var a = 1;
  {
    var b = 2;
    print a + b;
  }
  print a;
}
`)
	assert.Equal(t, "3\n1\n", out)
}

func TestLocalShadowing(t *testing.T) {
	out := runOK(t, `
var a = "global";
{
  var a = "local";
  print a;
}
print a;
`)
	assert.Equal(t, "local\nglobal\n", out)
}

func TestIfElse(t *testing.T) {
	out := runOK(t, `
if (true) { print "then"; } else { print "else"; }
if (false) { print "then"; } else { print "else"; }
if (nil) print "skipped";
print "done";
`)
	assert.Equal(t, "then\nelse\ndone\n", out)
}

func TestWhile(t *testing.T) {
	out := runOK(t, `
var i = 0;
while (i < 3) {
  print i;
  i = i + 1;
}
`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestFor(t *testing.T) {
	out := runOK(t, "for (var a = 1; a < 5; a = a + 1) { print a; }")
	assert.Equal(t, "1\n2\n3\n4\n", out)
}

func TestForWithoutCondition(t *testing.T) {
	// An empty condition never exits the loop; the return does.
	out := runOK(t, `
fun f() {
  var i = 0;
  for (;; i = i + 1) {
    if (i == 3) return i;
    print i;
  }
}
print f();
`)
	assert.Equal(t, "0\n1\n2\n3\n", out)
}

func TestForExpressionInitializer(t *testing.T) {
	out := runOK(t, `
var i = 10;
for (i = 0; i < 2; i = i + 1) print i;
`)
	assert.Equal(t, "0\n1\n", out)
}

func TestAndOr(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"print true and 1;", "1\n"},
		{"print false and 1;", "false\n"},
		{"print nil and 1;", "nil\n"},
		{"print true or 1;", "true\n"},
		{"print false or 1;", "1\n"},
		{"print nil or \"fallback\";", "fallback\n"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, runOK(t, tt.source), "source %q", tt.source)
	}
}

func TestFunctionsAndReturn(t *testing.T) {
	out := runOK(t, `
fun add(a, b) { return a + b; }
print add(1, 2);
print add("x", "y");
`)
	assert.Equal(t, "3\nxy\n", out)
}

func TestFunctionWithoutReturnYieldsNil(t *testing.T) {
	out := runOK(t, "fun noop() {} print noop();")
	assert.Equal(t, "nil\n", out)
}

func TestRecursion(t *testing.T) {
	out := runOK(t, `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 2) + fib(n - 1);
}
print fib(10);
`)
	assert.Equal(t, "55\n", out)
}

func TestForwardGlobalReferenceInsideFunction(t *testing.T) {
	out := runOK(t, `
fun show() { print later; }
var later = "defined afterwards";
show();
`)
	assert.Equal(t, "defined afterwards\n", out)
}

func TestPrintFunctionValues(t *testing.T) {
	out := runOK(t, `
fun f() {}
print f;
print clock;
`)
	assert.Equal(t, "<fn f>\n<native fn>\n", out)
}

func TestNativeClock(t *testing.T) {
	out := runOK(t, "print clock() > 0;")
	assert.Equal(t, "true\n", out)
}

// === Runtime errors ===

func TestRuntimeErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"negate non-number", "print -\"s\";", "Operand must be a number."},
		{"add mismatched", "print 1 + \"s\";", "Operands must be two numbers or two strings."},
		{"subtract strings", `print "a" - "b";`, "Operands must be numbers."},
		{"compare mixed", "print 1 < \"s\";", "Operands must be numbers."},
		{"undefined global get", "print missing;", "Undefined variable 'missing'."},
		{"undefined global set", "x = 1;", "Undefined variable 'x'."},
		{"call non-callable", "var x = 1; x();", "Can only call functions or classes."},
		{"call string", `"s"();`, "Can only call functions or classes."},
		{"arity mismatch", "fun f(a, b) {} f(1);", "Expected 2 arguments but got 1."},
		{"arity surplus", "fun f() {} f(1, 2);", "Expected 0 arguments but got 2."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runtimeErr(t, tt.source)
			assert.Contains(t, err.Message, tt.message)
		})
	}
}

func TestSetGlobalRollsBackFailedInsert(t *testing.T) {
	// The failed assignment must not define the variable.
	printer := &CapturePrinter{}
	machine := New(WithPrinter(printer))

	err := machine.Interpret("x = 1;")
	require.Error(t, err)

	err = machine.Interpret("print x;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'x'.")
}

func TestStackOverflow(t *testing.T) {
	err := runtimeErr(t, `
fun infinite() { infinite(); }
infinite();
`)
	assert.Contains(t, err.Message, "Stack overflow.")
}

func TestFrameDepthBoundary(t *testing.T) {
	// The script frame occupies one slot, so 63 nested calls reach
	// exactly the 64-frame capacity.
	out := runOK(t, `
fun down(n) {
  if (n > 1) { down(n - 1); }
}
down(63);
print "ok";
`)
	assert.Equal(t, "ok\n", out)

	err := runtimeErr(t, `
fun down(n) {
  if (n > 1) { down(n - 1); }
}
down(64);
`)
	assert.Contains(t, err.Message, "Stack overflow.")
}

func TestCompileErrorsSurfaceAsErrorList(t *testing.T) {
	_, _, err := run(t, "print ;")
	require.Error(t, err)
	_, ok := err.(compiler.ErrorList)
	assert.True(t, ok, "expected compiler.ErrorList, got %T", err)
}

func TestVMReusableAcrossRuns(t *testing.T) {
	printer := &CapturePrinter{}
	machine := New(WithPrinter(printer))

	require.NoError(t, machine.Interpret("var a = 1;"))
	require.NoError(t, machine.Interpret("a = a + 1;"))
	require.NoError(t, machine.Interpret("print a;"))
	assert.Equal(t, "2\n", printer.Output())
}

func TestRuntimeErrorSpanPointsAtInstruction(t *testing.T) {
	err := runtimeErr(t, "var a = 1;\nprint -\"s\";")
	assert.Equal(t, 2, err.Span.Line)
}
