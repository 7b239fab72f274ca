package specializer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
)

// Generation is the state of one run: the builder, the problem and every
// operand and function the steps share. It is threaded through the
// backend steps and discarded after the program is built.
type Generation struct {
	B     *ir.Builder
	Shape *problem.Shape
	Opts  Options

	// Interface inputs, supplied by the caller each cycle.
	X0 *ir.Operand // current state feedback
	Y  *ir.Operand // stage references, N x NY
	YN *ir.Operand // terminal reference, NYN x 1
	OD *ir.Operand // online data, (N+1) x NOD; nil when NOD == 0

	// Weighting matrices: constant when given, interface otherwise.
	ObjS        *ir.Operand // NY x NY, or N*NY x NY with per-stage weighting
	ObjSEndTerm *ir.Operand // NYN x NYN

	// Given measurement Jacobians; nil when produced by the measurement
	// function at runtime.
	ObjEvFx    *ir.Operand // NY x NX
	ObjEvFu    *ir.Operand // NY x NU
	ObjEvFxEnd *ir.Operand // NYN x NX

	// Persistent workspace.
	X    *ir.Operand // state trajectory, (N+1) x NX
	U    *ir.Operand // control trajectory, N x NU
	EvGx *ir.Operand // stacked dynamics Jacobians w.r.t. x, N*NX x NX
	EvGu *ir.Operand // stacked dynamics Jacobians w.r.t. u, N*NX x NU
	D    *ir.Operand // stacked defects, N*NX x 1
	Dy   *ir.Operand // stacked stage residuals, N*NY x 1
	DyN  *ir.Operand // terminal residual, NYN x 1

	// Hessian and gradient factors. Constant when given, stacked
	// per-stage workspace otherwise.
	Q1, Q2   *ir.Operand
	R1, R2   *ir.Operand
	QN1, QN2 *ir.Operand

	// QP payload.
	QpQ, QpQf, QpS, QpR *ir.Operand
	Qpq, Qpqf, Qpr      *ir.Operand
	QpLb, QpUb          *ir.Operand
	Qpx, Qpu            *ir.Operand
	NIt                 *ir.Operand

	// External symbols.
	Integrate          *ir.Extern
	EvaluateLSQ        *ir.Extern
	EvaluateLSQEndTerm *ir.Extern

	// Functions.
	ModelSimulation     *ir.Function
	EvaluateObjective   *ir.Function
	EvaluateConstraints *ir.Function
	SetStagef           *ir.Function
	Preparation         *ir.Function
	Feedback            *ir.Function
	Initialize          *ir.Function
	InitializeNodes     *ir.Function
	ShiftStates         *ir.Function
	ShiftControls       *ir.Function
	GetKKT              *ir.Function
	GetObjective        *ir.Function

	helpers []*ir.Function
}

func newGeneration(shape *problem.Shape, opts Options) *Generation {
	return &Generation{B: ir.NewBuilder(), Shape: shape, Opts: opts}
}

// AddHelper registers an internal helper function. Helpers are defined
// after the simulation step and before objective evaluation, in
// registration order.
func (g *Generation) AddHelper(f *ir.Function) {
	g.helpers = append(g.helpers, f)
}

// Helpers returns the registered helpers.
func (g *Generation) Helpers() []*ir.Function {
	return append([]*ir.Function(nil), g.helpers...)
}

// Symbol returns name with the run's prefix.
func (g *Generation) Symbol(name string) string {
	return g.Opts.Prefix + "_" + name
}

// StateSize is the length of the integrator state row:
// x, dx/dx0, dx/du, u, od.
func (g *Generation) StateSize() int {
	s := g.Shape
	return s.NX*(1+s.NX+s.NU) + s.NU + s.NOD
}

func (g *Generation) setupVariables() error {
	b, s := g.B, g.Shape

	g.X = b.Declare("x", s.N+1, s.NX, ir.StorageWorkspace, nil).
		SetDoc("Matrix containing N+1 differential variable vectors.")
	g.U = b.Declare("u", s.N, s.NU, ir.StorageWorkspace, nil).
		SetDoc("Matrix containing N control variable vectors.")
	if s.NOD > 0 {
		g.OD = b.Declare("od", s.N+1, s.NOD, ir.StorageInterface, nil).
			SetDoc("Matrix containing N+1 online data vectors.")
	}
	g.Y = b.Declare("y", s.N, s.NY, ir.StorageInterface, nil).
		SetDoc("Matrix containing N reference/measurement vectors of size NY for the LSQ objective.")
	g.YN = b.Declare("yN", s.NYN, 1, ir.StorageInterface, nil).
		SetDoc("Reference/measurement vector for the terminal cost.")
	g.X0 = b.Declare("x0", s.NX, 1, ir.StorageInterface, nil).
		SetDoc("Current state feedback vector.")

	switch {
	case s.Weight.IsGiven():
		g.ObjS = b.Declare("objS", s.NY, s.NY, ir.StorageConstant, s.Weight.Given)
	case s.VariableWeighting:
		g.ObjS = b.Declare("W", s.N*s.NY, s.NY, ir.StorageInterface, nil).
			SetDoc("Matrix containing N weighting matrices of size NY x NY, stacked row-wise.")
	default:
		g.ObjS = b.Declare("W", s.NY, s.NY, ir.StorageInterface, nil).
			SetDoc("Weighting matrix of the stage cost.")
	}
	if s.WeightN.IsGiven() {
		g.ObjSEndTerm = b.Declare("objSEndTerm", s.NYN, s.NYN, ir.StorageConstant, s.WeightN.Given)
	} else {
		g.ObjSEndTerm = b.Declare("WN", s.NYN, s.NYN, ir.StorageInterface, nil).
			SetDoc("Weighting matrix of the terminal cost.")
	}
	if s.Jx.IsGiven() {
		g.ObjEvFx = b.Declare("objEvFx", s.NY, s.NX, ir.StorageConstant, s.Jx.Given)
	}
	if s.Ju.IsGiven() {
		g.ObjEvFu = b.Declare("objEvFu", s.NY, s.NU, ir.StorageConstant, s.Ju.Given)
	}
	if s.JxN.IsGiven() {
		g.ObjEvFxEnd = b.Declare("objEvFxEnd", s.NYN, s.NX, ir.StorageConstant, s.JxN.Given)
	}

	g.EvGx = b.Declare("evGx", s.N*s.NX, s.NX, ir.StorageWorkspace, nil)
	g.EvGu = b.Declare("evGu", s.N*s.NX, s.NU, ir.StorageWorkspace, nil)
	g.D = b.Declare("d", s.N*s.NX, 1, ir.StorageWorkspace, nil)
	g.Dy = b.Declare("Dy", s.N*s.NY, 1, ir.StorageWorkspace, nil)
	g.DyN = b.Declare("DyN", s.NYN, 1, ir.StorageWorkspace, nil)
	return nil
}

// packState fills the integrator state row for stage k: the stage state,
// identity and zero sensitivity seeds, the stage control and online data.
func (g *Generation) packState(state *ir.Operand, k ir.Offset) []ir.Node {
	b, s := g.B, g.Shape
	nx, nu := s.NX, s.NU
	nodes := []ir.Node{
		b.Assign(state.Cols(ir.At(0), nx), g.X.Row(k)),
		b.Assign(state.Cols(ir.At(nx), nx*nx), b.Reshape(b.Identity(nx), 1, nx*nx)),
		b.Assign(state.Cols(ir.At(nx+nx*nx), nx*nu), b.Zeros(1, nx*nu)),
		b.Assign(state.Cols(ir.At(nx*(1+nx+nu)), nu), g.U.Row(k)),
	}
	if g.OD != nil {
		nodes = append(nodes, b.Assign(state.Cols(ir.At(nx*(1+nx+nu)+nu), s.NOD), g.OD.Row(k)))
	}
	return nodes
}

// setupSimulation builds modelSimulation, which integrates every stage
// and stores the defects and the dynamics Jacobians.
func (g *Generation) setupSimulation() error {
	b, s := g.B, g.Shape
	nx, nu := s.NX, s.NU

	g.Integrate = b.Extern(g.Symbol("integrate"), ir.Int,
		"Integrates one stage in place. Returns 0 on success.",
		ir.ExternParam{Name: "state", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "reset", Kind: ir.KindIntValue},
	)

	f := b.Function("modelSimulation", "Integrate and linearize the dynamics on every stage.")
	ret := f.LocalInt("ret")
	ret.SetDoc("Status of the integration module. =0: OK, otherwise the error code.")
	state := f.Local("state", 1, g.StateSize())

	loop := b.Loop("runSim", 0, s.N)
	k := loop.Index.Offset()
	for _, n := range g.packState(state, k) {
		loop.Add(n)
	}
	loop.Add(
		b.Invoke(ret, g.Integrate, state, ir.IntLit(1)),
		b.Assign(g.D.Rows(loop.Index.Times(nx), nx), b.Sub(b.T(state.Cols(ir.At(0), nx)), b.T(g.X.Row(k.Plus(1))))),
		b.Assign(g.EvGx.Rows(loop.Index.Times(nx), nx), b.Reshape(state.Cols(ir.At(nx), nx*nx), nx, nx)),
		b.Assign(g.EvGu.Rows(loop.Index.Times(nx), nx), b.Reshape(state.Cols(ir.At(nx+nx*nx), nx*nu), nx, nu)),
	)
	f.Add(loop)
	f.Returns(ret)

	g.ModelSimulation = f
	return nil
}

// setupEvaluation builds the preparation and feedback phases.
func (g *Generation) setupEvaluation(backend Backend) error {
	b := g.B

	prep := b.Function("preparationStep", "Preparation step of the RTI scheme.")
	ret := prep.LocalInt("ret")
	ret.SetDoc("Status of the integration module. =0: OK, otherwise the error code.")
	prep.Add(
		b.CallInto(ret, g.ModelSimulation),
		b.Call(g.EvaluateObjective),
		b.Call(g.EvaluateConstraints),
	)
	prep.Returns(ret)
	g.Preparation = prep

	g.Feedback = b.Function("feedbackStep", "Feedback/estimation step of the RTI scheme.")
	return backend.BuildFeedbackCall(g, g.Feedback)
}

// setupAuxiliaryFunctions builds the caller-facing helpers that do not
// depend on the backend.
func (g *Generation) setupAuxiliaryFunctions() error {
	b, s := g.B, g.Shape

	// initializeNodes
	f := b.Function("initializeNodes", "Initialize the state trajectory by forward simulation from x[0].")
	state := f.Local("state", 1, g.StateSize())
	loop := b.Loop("index", 0, s.N)
	k := loop.Index.Offset()
	for _, n := range g.packState(state, k) {
		loop.Add(n)
	}
	loop.Add(
		b.Invoke(nil, g.Integrate, state, ir.IntLit(1)),
		b.Assign(g.X.Row(k.Plus(1)), state.Cols(ir.At(0), s.NX)),
	)
	f.Add(loop)
	g.InitializeNodes = f

	// shiftStates
	f = b.Function("shiftStates", "Shift the state trajectory one stage forward and append xEnd.")
	xEnd := f.Param("xEnd", s.NX, 1)
	loop = b.Loop("index", 0, s.N)
	loop.Add(b.Assign(g.X.Row(loop.Index.Offset()), g.X.Row(loop.Index.Offset().Plus(1))))
	f.Add(loop, b.Assign(g.X.Row(ir.At(s.N)), b.T(xEnd)))
	g.ShiftStates = f

	// shiftControls
	f = b.Function("shiftControls", "Shift the control trajectory one stage forward and append uEnd.")
	uEnd := f.Param("uEnd", s.NU, 1)
	loop = b.Loop("index", 0, s.N-1)
	loop.Add(b.Assign(g.U.Row(loop.Index.Offset()), g.U.Row(loop.Index.Offset().Plus(1))))
	f.Add(loop, b.Assign(g.U.Row(ir.At(s.N-1)), b.T(uEnd)))
	g.ShiftControls = f

	// getKKT
	f = b.Function("getKKT", "Get the KKT tolerance of the current iterate. Under development.")
	kkt := f.Local("kkt", 1, 1)
	kkt.SetDoc("0.")
	f.Add(b.Assign(kkt, b.Scalar(0)))
	f.Returns(kkt)
	g.GetKKT = f

	// getObjective
	f = b.Function("getObjective", "Calculate the objective value of the last linearization.")
	objVal := f.Local("objVal", 1, 1)
	objVal.SetDoc("Value of the objective function.")
	f.Add(b.Assign(objVal, b.Scalar(0)))
	loop = b.Loop("index", 0, s.N)
	dy := g.Dy.Rows(loop.Index.Times(s.NY), s.NY)
	var w ir.Expr = g.ObjS
	if s.VariableWeighting {
		w = g.ObjS.Rows(loop.Index.Times(s.NY), s.NY)
	}
	loop.Add(b.AddTo(objVal, b.Scale(0.5, b.Mul(b.T(dy), b.Mul(w, dy)))))
	f.Add(loop)
	f.Add(b.AddTo(objVal, b.Scale(0.5, b.Mul(b.T(g.DyN), b.Mul(g.ObjSEndTerm, g.DyN)))))
	f.Returns(objVal)
	g.GetObjective = f

	return nil
}

// define registers every function with the builder: definitions in
// dependency order, then the exported prototypes.
func (g *Generation) define() {
	b := g.B
	b.Define(g.ModelSimulation)
	b.Define(g.helpers...)
	b.Define(
		g.EvaluateObjective,
		g.EvaluateConstraints,
		g.Preparation,
		g.Feedback,
		g.Initialize,
		g.InitializeNodes,
		g.ShiftStates,
		g.ShiftControls,
		g.GetKKT,
		g.GetObjective,
	)
	b.Export(
		g.Preparation,
		g.Feedback,
		g.Initialize,
		g.InitializeNodes,
		g.ShiftStates,
		g.ShiftControls,
		g.GetKKT,
		g.GetObjective,
		g.EvaluateObjective,
		g.EvaluateConstraints,
	)
}

// lmSeed returns lambda*I of size n, or an n x n zero literal when lambda
// is zero so that additions fold away.
func (g *Generation) lmSeed(n int) ir.Expr {
	lambda := g.Shape.LevenbergMarquardt
	if lambda <= 0 {
		return g.B.Zeros(n, n)
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, lambda)
	}
	return g.B.Const(m)
}
