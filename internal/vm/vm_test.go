package vm_test

import (
	"bytes"
	"testing"

	"github.com/clarete/golox/internal/config"
	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxerr"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/clarete/golox/internal/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVM() *vm.VM {
	h := heap.New()
	return vm.New(h, config.New(), loxlog.New(nil, false))
}

// interpretCapture runs source against a fresh VM, redirecting `print`
// output into a buffer instead of stdout, and returns what was printed
// alongside whatever error Interpret returned.
func interpretCapture(t *testing.T, source string) (stdout string, err error) {
	t.Helper()
	machine := newVM()
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	err = machine.Interpret(source)
	return buf.String(), err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := interpretCapture(t, "print 1 + 2 * 3;")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenationInternsOnce(t *testing.T) {
	h := heap.New()
	machine := vm.New(h, config.New(), loxlog.New(nil, false))
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	err := machine.Interpret(`var a = "he"; var b = "llo"; print a + b;`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", buf.String())

	before := h.BytesAllocated()
	a := h.InternCopy([]byte("hello"))
	assert.Equal(t, before, h.BytesAllocated(), "concatenation result should already be interned")
	b := h.InternCopy([]byte("hello"))
	assert.Same(t, a, b)
}

func TestClosureCounter(t *testing.T) {
	out, err := interpretCapture(t, `
		fun makeCounter() {
			var n = 0;
			fun f() {
				n = n + 1;
				return n;
			}
			return f;
		}
		var c = makeCounter();
		print c();
		print c();
		print c();
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInheritanceAndSuper(t *testing.T) {
	out, err := interpretCapture(t, `
		class A {
			greet() {
				print "A";
			}
		}
		class B < A {
			greet() {
				super.greet();
				print "B";
			}
		}
		B().greet();
	`)
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", out)
}

func TestInitAndFieldAccess(t *testing.T) {
	out, err := interpretCapture(t, `
		class Point {
			init(x, y) {
				this.x = x;
				this.y = y;
			}
		}
		var p = Point(3, 4);
		print p.x + p.y;
	`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	out, err := interpretCapture(t, "print zzz;")
	require.Error(t, err)
	assert.Empty(t, out)
	var rerr *loxerr.RuntimeError
	assert.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "Undefined variable 'zzz'")
}

func TestCompileErrorSurfacesBeforeRunning(t *testing.T) {
	out, err := interpretCapture(t, "var a = ;")
	require.Error(t, err)
	assert.Empty(t, out)
	var cerr *loxerr.CompileError
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Line)
	assert.Contains(t, cerr.Error(), "Expect expression")
}

func TestCallingNonCallableIsRuntimeError(t *testing.T) {
	out, err := interpretCapture(t, `var a = 1; a();`)
	require.Error(t, err)
	assert.Empty(t, out)
	var rerr *loxerr.RuntimeError
	assert.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "Can only call functions and classes")
}

func TestGCStressSurvivesProgram(t *testing.T) {
	h := heap.New()
	h.SetStressGC(true)
	machine := vm.New(h, config.New(), loxlog.New(nil, false))
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	err := machine.Interpret(`
		class Node {
			init(value) {
				this.value = value;
			}
		}
		fun build(n) {
			var head = nil;
			for (var i = 0; i < n; i = i + 1) {
				var node = Node(i);
				head = node;
			}
			return head;
		}
		var last = build(20);
		print last.value;
	`)
	require.NoError(t, err)
	assert.Equal(t, "19\n", buf.String())
}

func TestClockNativeReturnsNumber(t *testing.T) {
	out, err := interpretCapture(t, "print clock();")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
