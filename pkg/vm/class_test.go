package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassPrintsItsName(t *testing.T) {
	out := runOK(t, "class Widget {} print Widget;")
	assert.Equal(t, "Widget\n", out)
}

func TestInstanceCreationAndFields(t *testing.T) {
	out := runOK(t, `
class Bag {}
var bag = Bag();
print bag;
bag.item = "apple";
print bag.item;
`)
	assert.Equal(t, "Bag instance\napple\n", out)
}

func TestFieldAssignmentIsAnExpression(t *testing.T) {
	out := runOK(t, `
class Bag {}
var bag = Bag();
print bag.x = 7;
`)
	assert.Equal(t, "7\n", out)
}

func TestMethodsAndThis(t *testing.T) {
	out := runOK(t, `
class Greeter {
  greet(name) { print "hello " + name; }
  self() { return this; }
}
var g = Greeter();
g.greet("world");
print g.self() == g;
`)
	assert.Equal(t, "hello world\ntrue\n", out)
}

func TestInitializerRunsOnConstruction(t *testing.T) {
	out := runOK(t, `
class Point {
  init(x, y) {
    this.x = x;
    this.y = y;
  }
}
var p = Point(3, 4);
print p.x + p.y;
`)
	assert.Equal(t, "7\n", out)
}

func TestInitializerReturnsInstance(t *testing.T) {
	out := runOK(t, `
class Thing {
  init() { this.tag = "made"; }
}
print Thing().tag;
`)
	assert.Equal(t, "made\n", out)
}

func TestInitializerBareReturnShortCircuits(t *testing.T) {
	out := runOK(t, `
class Early {
  init(flag) {
    if (flag) return;
    this.set = true;
  }
}
var e = Early(true);
print e;
`)
	assert.Equal(t, "Early instance\n", out)
}

func TestBoundMethodCarriesReceiver(t *testing.T) {
	out := runOK(t, `
class Speaker {
  init(word) { this.word = word; }
  say() { print this.word; }
}
var method = Speaker("bound").say;
method();
`)
	assert.Equal(t, "bound\n", out)
}

func TestFieldShadowsMethodInInvoke(t *testing.T) {
	out := runOK(t, `
class Confusing {
  action() { print "method"; }
}
fun replacement() { print "field"; }
var c = Confusing();
c.field = replacement;
c.field();
c.action();
`)
	assert.Equal(t, "field\nmethod\n", out)
}

func TestInheritanceCopiesMethods(t *testing.T) {
	out := runOK(t, `
class Base { shared() { print "from base"; } }
class Derived < Base {}
Derived().shared();
`)
	assert.Equal(t, "from base\n", out)
}

func TestOverrideWinsOverInherited(t *testing.T) {
	out := runOK(t, `
class Base { m() { print "base"; } }
class Derived < Base { m() { print "derived"; } }
Derived().m();
`)
	assert.Equal(t, "derived\n", out)
}

func TestSuperCallsParentMethod(t *testing.T) {
	out := runOK(t, `
class A { greet() { print "A"; } }
class B < A { greet() { super.greet(); print "B"; } }
B().greet();
`)
	assert.Equal(t, "A\nB\n", out)
}

func TestSuperBindsThisFromSubclassInstance(t *testing.T) {
	out := runOK(t, `
class A {
  who() { return this.name; }
  describe() { print "I am " + this.who(); }
}
class B < A {
  init() { this.name = "B-instance"; }
  describe() { super.describe(); }
}
B().describe();
`)
	assert.Equal(t, "I am B-instance\n", out)
}

func TestSuperMethodReference(t *testing.T) {
	out := runOK(t, `
class A { m() { print "A.m"; } }
class B < A {
  grab() {
    var method = super.m;
    method();
  }
}
B().grab();
`)
	assert.Equal(t, "A.m\n", out)
}

func TestSuperSkipsOverride(t *testing.T) {
	out := runOK(t, `
class A { m() { print "A"; } }
class B < A { m() { print "B"; } }
class C < B { m() { super.m(); } }
C().m();
`)
	assert.Equal(t, "B\n", out)
}

func TestInheritedInitializer(t *testing.T) {
	out := runOK(t, `
class Base { init(v) { this.v = v; } }
class Child < Base {}
print Child(9).v;
`)
	assert.Equal(t, "9\n", out)
}

func TestSuperInsideInit(t *testing.T) {
	out := runOK(t, `
class Base { init() { this.base = "yes"; } }
class Child < Base {
  init() {
    super.init();
    this.child = "also";
  }
}
var c = Child();
print c.base;
print c.child;
`)
	assert.Equal(t, "yes\nalso\n", out)
}

// === Runtime errors ===

func TestClassRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"property on number", "print 1.x;", "Only instances have properties."},
		{"field on string", `"s".x = 1;`, "Only instances have fields."},
		{"method on number", "1.m();", "Only instances have methods."},
		{"undefined property", "class A {} print A().missing;", "Undefined property 'missing'."},
		{"undefined method", "class A {} A().missing();", "Undefined property 'missing'."},
		{"superclass not class", "var NotClass = 1; class A < NotClass {}", "Superclass must be a class."},
		{"implicit init arity", "class A {} A(1);", "Expected 0 arguments but got 1."},
		{"init arity", "class A { init(x) {} } A();", "Expected 1 arguments but got 0."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runtimeErr(t, tt.source)
			assert.Contains(t, err.Message, tt.message)
		})
	}
}
