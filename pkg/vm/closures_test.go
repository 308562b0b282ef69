package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosureCapturesLocal(t *testing.T) {
	out := runOK(t, `
fun outer() {
  var x = "hi";
  fun inner() { print x; }
  return inner;
}
outer()();
`)
	assert.Equal(t, "hi\n", out)
}

func TestClosureCapturesAfterScopeExit(t *testing.T) {
	out := runOK(t, `
var closure;
{
  var captured = "still here";
  fun grab() { print captured; }
  closure = grab;
}
closure();
`)
	assert.Equal(t, "still here\n", out)
}

func TestClosureSeesMutations(t *testing.T) {
	out := runOK(t, `
fun outer() {
  var x = 1;
  fun read() { print x; }
  x = 2;
  read();
}
outer();
`)
	assert.Equal(t, "2\n", out)
}

func TestClosuresShareOneUpvalue(t *testing.T) {
	out := runOK(t, `
fun pair() {
  var n = 0;
  fun inc() { n = n + 1; }
  fun get() { print n; }
  inc();
  inc();
  get();
}
pair();
`)
	assert.Equal(t, "2\n", out)
}

func TestCounterClosure(t *testing.T) {
	out := runOK(t, `
fun makeCounter() {
  var count = 0;
  fun tick() {
    count = count + 1;
    print count;
  }
  return tick;
}
var counter = makeCounter();
counter();
counter();
counter();
`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestIndependentCounters(t *testing.T) {
	out := runOK(t, `
fun makeCounter() {
  var count = 0;
  fun tick() {
    count = count + 1;
    print count;
  }
  return tick;
}
var a = makeCounter();
var b = makeCounter();
a();
a();
b();
`)
	assert.Equal(t, "1\n2\n1\n", out)
}

func TestNestedClosureThreading(t *testing.T) {
	out := runOK(t, `
fun a() {
  var x = "threaded";
  fun b() {
    fun c() { print x; }
    return c;
  }
  return b;
}
a()()();
`)
	assert.Equal(t, "threaded\n", out)
}

func TestClosureOverLoopVariableScopes(t *testing.T) {
	out := runOK(t, `
var first;
var second;
{
  var i = 1;
  fun f() { print i; }
  first = f;
}
{
  var i = 2;
  fun g() { print i; }
  second = g;
}
first();
second();
`)
	assert.Equal(t, "1\n2\n", out)
}

func TestClosedUpvaluePreservesValue(t *testing.T) {
	// The value visible after closing equals the value in the stack
	// slot just before the scope ended.
	out := runOK(t, `
var get;
{
  var v = "before";
  fun read() { print v; }
  v = "after";
  get = read;
}
get();
`)
	assert.Equal(t, "after\n", out)
}

func TestUpvalueAssignmentThroughClosure(t *testing.T) {
	out := runOK(t, `
fun box() {
  var value = "initial";
  fun set(v) { value = v; }
  fun get() { print value; }
  set("updated");
  get();
}
box();
`)
	assert.Equal(t, "updated\n", out)
}
