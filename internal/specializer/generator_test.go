package specializer

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/testutil"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func generate(t *testing.T, s *problem.Shape, opts ...Option) *ir.Program {
	t.Helper()
	prog, err := New(append([]Option{quiet()}, opts...)...).Generate(s)
	require.NoError(t, err)
	return prog
}

func function(t *testing.T, p *ir.Program, name string) *ir.Function {
	t.Helper()
	f, ok := p.Function(name)
	require.True(t, ok, "function %q not defined", name)
	return f
}

func global(p *ir.Program, name string) *ir.Operand {
	for _, op := range p.Globals {
		if op.Name() == name {
			return op
		}
	}
	return nil
}

func names[T interface{ Name() string }](xs []T) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.Name()
	}
	return out
}

// calls counts the calls of callee anywhere in f.
func calls(f *ir.Function, callee string) int {
	n := 0
	ir.Walk(f.Body(), func(node ir.Node, _ int) bool {
		if c, ok := node.(*ir.Call); ok && c.Func.Name() == callee {
			n++
		}
		return true
	})
	return n
}

func externCall(t *testing.T, f *ir.Function, name string) *ir.ExternCall {
	t.Helper()
	var found *ir.ExternCall
	ir.Walk(f.Body(), func(node ir.Node, _ int) bool {
		if c, ok := node.(*ir.ExternCall); ok && c.Extern.Name == name {
			found = c
		}
		return true
	})
	require.NotNil(t, found, "no call of %q in %s", name, f.Name())
	return found
}

func loops(f *ir.Function) []*ir.ForLoop {
	var out []*ir.ForLoop
	ir.Walk(f.Body(), func(node ir.Node, _ int) bool {
		if l, ok := node.(*ir.ForLoop); ok {
			out = append(out, l)
		}
		return true
	})
	return out
}

func assertDense(t *testing.T, want []float64, op *ir.Operand) {
	t.Helper()
	require.NotNil(t, op)
	m, ok := ir.Given(op)
	require.True(t, ok, "%s is not given", op.Name())
	r, c := m.Dims()
	assert.True(t, mat.EqualApprox(mat.NewDense(r, c, want), m, 1e-12), "%s = %v", op.Name(), mat.Formatted(m))
}

func TestGenerate_Cart(t *testing.T) {
	prog := generate(t, testutil.CartShape(t))

	assert.Equal(t, []string{
		"modelSimulation",
		"setStagef",
		"evaluateObjective",
		"evaluateConstraints",
		"preparationStep",
		"feedbackStep",
		"initialize",
		"initializeNodes",
		"shiftStates",
		"shiftControls",
		"getKKT",
		"getObjective",
	}, names(prog.Functions))

	assert.Equal(t, []string{
		"preparationStep",
		"feedbackStep",
		"initialize",
		"initializeNodes",
		"shiftStates",
		"shiftControls",
		"getKKT",
		"getObjective",
		"evaluateObjective",
		"evaluateConstraints",
	}, names(prog.Exported))

	var externs []string
	for _, e := range prog.Externs {
		externs = append(externs, e.Name)
	}
	assert.Equal(t, []string{"rti_integrate", "rti_evaluateLSQ", "rti_evaluateLSQEndTerm", "rti_hpmpc_ip_wrapper"}, externs)

	assert.Equal(t, []ir.Asset{{Template: HPMPCInterfaceTemplate, Path: "rti_hpmpc_interface.c"}}, prog.Assets)

	assert.Equal(t, []string{"y", "yN", "x0"}, names(prog.Class(ir.StorageInterface)))
}

func TestGenerate_LevenbergMarquardtFolding(t *testing.T) {
	prog := generate(t, testutil.CartShape(t))

	// Jx'Jx + 0.5 I
	assertDense(t, []float64{1.5, 0, 0, 0.5}, global(prog, "Q1"))
	assertDense(t, []float64{1, 0, 0, 0}, global(prog, "Q2"))
	// Ju'Ju + 0.5
	assertDense(t, []float64{1.5}, global(prog, "R1"))
	assertDense(t, []float64{0, 1}, global(prog, "R2"))
	// Terminal block is not regularized.
	assertDense(t, []float64{10, 0, 0, 10}, global(prog, "QN1"))
	assertDense(t, []float64{10, 0, 0, 10}, global(prog, "QN2"))
}

func TestGenerate_NoLevenbergMarquardt(t *testing.T) {
	d := testutil.CartDescriptor()
	d.LevenbergMarquardt = 0
	prog := generate(t, testutil.Compile(t, d))

	assertDense(t, []float64{1, 0, 0, 0}, global(prog, "Q1"))
	assertDense(t, []float64{1}, global(prog, "R1"))
}

func TestGenerate_Feedback(t *testing.T) {
	prog := generate(t, testutil.CartShape(t))
	fb := function(t, prog, "feedbackStep")

	assert.Equal(t, 2, calls(fb, "setStagef"))

	wrapper := externCall(t, fb, "rti_hpmpc_ip_wrapper")
	require.Len(t, wrapper.Args, 18)
	assert.Equal(t, ir.IntLit(2), wrapper.Args[0])
	assert.Equal(t, ir.IntLit(2), wrapper.Args[1])
	assert.Equal(t, ir.IntLit(1), wrapper.Args[2])

	var operands []string
	for _, a := range wrapper.Args[3:] {
		op, ok := a.(*ir.Operand)
		require.True(t, ok, "solver argument %v is not a whole operand", a)
		operands = append(operands, op.Name())
	}
	assert.Equal(t, []string{
		"evGx", "evGu", "d",
		"qpQ", "qpQf", "qpS", "qpR",
		"qpq", "qpqf", "qpr",
		"qpLb", "qpUb",
		"qpx", "qpu",
		"nIt",
	}, operands)

	require.NotNil(t, fb.Return())
	assert.Equal(t, "retVal", fb.Return().Name())
	assert.Equal(t, ir.Int, fb.Return().Type())
}

func TestGenerate_Constraints(t *testing.T) {
	prog := generate(t, testutil.CartShape(t))
	f := function(t, prog, "evaluateConstraints")

	var lb *ir.Operand
	for _, op := range f.Locals() {
		if op.Name() == "evLbValues" {
			lb = op
		}
	}
	require.NotNil(t, lb)
	assert.Equal(t, ir.Shape{Rows: 6, Cols: 1}, lb.Shape())
	assertDense(t, []float64{-1, -1, -1, -1, -1, -1}, lb)

	assert.Equal(t, ir.Shape{Rows: 6, Cols: 1}, global(prog, "qpLb").Shape())
	assert.Len(t, f.Body().Nodes(), 4)
}

func TestGenerate_StageBounds(t *testing.T) {
	d := testutil.CartDescriptor()
	d.Bounds.Control = &problem.BoxSpec{Stages: []problem.StageBox{
		{Lower: []float64{-3}, Upper: []float64{3}},
		{Lower: []float64{-2}, Upper: []float64{2}},
	}}
	d.Bounds.State = nil
	prog := generate(t, testutil.Compile(t, d))

	f := function(t, prog, "evaluateConstraints")
	u := problem.Unbounded
	assertDense(t, []float64{3, 2, u, u, u, u}, f.Locals()[1])
}

func TestGenerate_Initialize(t *testing.T) {
	prog := generate(t, testutil.CartShape(t))
	f := function(t, prog, "initialize")

	ls := loops(f)
	require.Len(t, ls, 1)
	assert.Equal(t, 2, ls[0].Trips())
	assert.Len(t, ls[0].Body.Nodes(), 2)
	// comment, loop, terminal block, comment, cross block
	nodes := f.Body().Nodes()
	require.Len(t, nodes, 5)
	assert.Equal(t, &ir.Raw{Text: "/* Hessian blocks are constant over the horizon. */"}, nodes[0])
	assert.Equal(t, &ir.Raw{Text: "/* No control/state cross weighting. */"}, nodes[3])
}

func TestGenerate_StageCount(t *testing.T) {
	for _, n := range []int{1, 3, 5} {
		prog := generate(t, testutil.Compile(t, testutil.WithHorizon(n)))

		assert.Equal(t, n, calls(function(t, prog, "feedbackStep"), "setStagef"), "N=%d", n)
		assert.Equal(t, n, loops(function(t, prog, "initialize"))[0].Trips(), "N=%d", n)
		assert.Equal(t, ir.IntLit(n), externCall(t, function(t, prog, "feedbackStep"), "rti_hpmpc_ip_wrapper").Args[0])
		assert.Equal(t, ir.Shape{Rows: n * 3, Cols: 1}, global(prog, "qpLb").Shape(), "N=%d", n)
		assert.Equal(t, ir.Shape{Rows: (n + 1) * 2, Cols: 1}, global(prog, "qpx").Shape(), "N=%d", n)
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	s := testutil.CartShape(t)
	a := generate(t, s)
	b := generate(t, s)

	assert.Equal(t, names(a.Functions), names(b.Functions))
	assert.Equal(t, names(a.Globals), names(b.Globals))
	for i := range a.Functions {
		assert.Equal(t, a.Functions[i].Body().Len(), b.Functions[i].Body().Len())
	}
}

func TestGenerate_CrossTermRejected(t *testing.T) {
	for name, cross := range map[string]*problem.Matrix{
		"nonzero": testutil.Rows([]float64{1}, []float64{0}),
		"runtime": testutil.Runtime(),
	} {
		t.Run(name, func(t *testing.T) {
			d := testutil.CartDescriptor()
			d.Cross = cross
			prog, err := New(quiet()).Generate(testutil.Compile(t, d))

			require.Error(t, err)
			assert.Nil(t, prog)
			var cfg *ir.ConfigurationError
			require.True(t, errors.As(err, &cfg))
			assert.Equal(t, "objective", cfg.Component)
			assert.Contains(t, cfg.Message, "mixed control-state terms")
		})
	}
}

func TestGenerate_RuntimeWeightsFailInitialize(t *testing.T) {
	prog, err := New(quiet()).Generate(testutil.Compile(t, testutil.TrackingDescriptor()))

	require.Error(t, err)
	assert.Nil(t, prog)
	var cfg *ir.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "initialize", cfg.Component)
}

func TestGenerate_UnknownBackend(t *testing.T) {
	_, err := New(quiet(), WithBackend("qpoases")).Generate(testutil.CartShape(t))

	var cfg *ir.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "backend", cfg.Component)
	assert.Contains(t, cfg.Message, "hpmpc")
}

func TestGenerate_Guards(t *testing.T) {
	_, err := New(quiet()).Generate(nil)
	assert.Error(t, err)

	_, err = New(quiet(), WithPrefix("")).Generate(testutil.CartShape(t))
	assert.Error(t, err)
}

func TestGenerate_Prefix(t *testing.T) {
	prog := generate(t, testutil.CartShape(t), WithPrefix("cart"))

	assert.Equal(t, "cart_integrate", prog.Externs[0].Name)
	assert.Equal(t, "cart_hpmpc_interface.c", prog.Assets[0].Path)
}

func TestGenerate_OpenMP(t *testing.T) {
	prog := generate(t, testutil.CartShape(t), WithOpenMP(true))

	ls := loops(function(t, prog, "evaluateObjective"))
	require.Len(t, ls, 1)
	assert.True(t, ls[0].Parallel)
	assert.Equal(t, []string{"objValueIn", "objValueOut"}, names(ls[0].Private))

	prog = generate(t, testutil.CartShape(t))
	ls = loops(function(t, prog, "evaluateObjective"))
	assert.False(t, ls[0].Parallel)
	assert.Empty(t, ls[0].Private)
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{"hpmpc"}, Backends())

	b, err := Lookup("hpmpc")
	require.NoError(t, err)
	assert.Equal(t, "hpmpc", b.Name())
}
