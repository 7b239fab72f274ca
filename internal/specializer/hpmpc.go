package specializer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/rtigen/internal/ir"
)

// HPMPCInterfaceTemplate is the embedded glue source requested next to
// the generated solver.
const HPMPCInterfaceTemplate = "hpmpc_interface.c.tmpl"

// HPMPC is the Gauss-Newton backend for the HPMPC interior-point QP
// solver. It supports constant Hessian blocks only and no control/state
// cross weighting.
type HPMPC struct{}

// Name implements Backend.
func (HPMPC) Name() string { return "hpmpc" }

// BuildObjectiveEvaluation builds evaluateObjective: the stage loop that
// evaluates the measurement function, stacks residuals and, for computed
// blocks, the Hessian factors; then the terminal term and the gradient
// helper setStagef.
func (HPMPC) BuildObjectiveEvaluation(g *Generation) error {
	b, s := g.B, g.Shape

	if !s.Cross.IsGiven() || !s.Cross.IsZero() {
		return &ir.ConfigurationError{
			Component: "objective",
			Message:   "mixed control-state terms in the objective function are not supported",
		}
	}

	g.EvaluateLSQ = b.Extern(g.Symbol("evaluateLSQ"), ir.Void,
		"Stage measurement function: residual followed by the runtime Jacobians.",
		ir.ExternParam{Name: "in", Kind: ir.KindRealConstPtr},
		ir.ExternParam{Name: "out", Kind: ir.KindRealPtr},
	)
	g.EvaluateLSQEndTerm = b.Extern(g.Symbol("evaluateLSQEndTerm"), ir.Void,
		"Terminal measurement function: residual followed by the runtime Jacobian.",
		ir.ExternParam{Name: "in", Kind: ir.KindRealConstPtr},
		ir.ExternParam{Name: "out", Kind: ir.KindRealPtr},
	)

	hpmpcFoldFactors(g)

	f := b.Function("evaluateObjective", "Evaluate the least-squares objective, its Hessian factors and residuals on every stage.")
	nIn := s.NX + s.NU + s.NOD
	nOut := s.NY
	if g.ObjEvFx == nil {
		nOut += s.NY * s.NX
	}
	if g.ObjEvFu == nil {
		nOut += s.NY * s.NU
	}
	in := f.Local("objValueIn", 1, nIn)
	out := f.Local("objValueOut", 1, nOut)

	loop := b.Loop("runObj", 0, s.N)
	loop.Parallel = g.Opts.OpenMP
	if loop.Parallel {
		loop.Private = []*ir.Operand{in, out}
	}
	k := loop.Index.Offset()

	loop.Add(
		b.Assign(in.Cols(ir.At(0), s.NX), g.X.Row(k)),
		b.Assign(in.Cols(ir.At(s.NX), s.NU), g.U.Row(k)),
	)
	if g.OD != nil {
		loop.Add(b.Assign(in.Cols(ir.At(s.NX+s.NU), s.NOD), g.OD.Row(k)))
	}
	loop.Add(
		b.Invoke(nil, g.EvaluateLSQ, in, out),
		b.Assign(g.Dy.Rows(loop.Index.Times(s.NY), s.NY), b.T(out.Cols(ir.At(0), s.NY))),
	)

	var weight ir.Expr = g.ObjS
	if s.VariableWeighting {
		weight = g.ObjS.Rows(loop.Index.Times(s.NY), s.NY)
	}
	indexX := s.NY

	if !g.Q1.Given() {
		helper := hpmpcFactorHelper(g, "setObjQ1Q2", "Q1", "Q2", s.NX, s.NY, g.lmSeed(s.NX))
		var fx ir.Expr
		if g.ObjEvFx != nil {
			fx = g.ObjEvFx
		} else {
			fx = b.Reshape(out.Cols(ir.At(indexX), s.NY*s.NX), s.NY, s.NX)
			indexX += s.NY * s.NX
		}
		loop.Add(b.Call(helper, fx, weight,
			g.Q1.Rows(loop.Index.Times(s.NX), s.NX),
			g.Q2.Rows(loop.Index.Times(s.NX), s.NX),
		))
	}

	if !g.R1.Given() {
		helper := hpmpcFactorHelper(g, "setObjR1R2", "R1", "R2", s.NU, s.NY, g.lmSeed(s.NU))
		var fu ir.Expr
		if g.ObjEvFu != nil {
			fu = g.ObjEvFu
		} else {
			fu = b.Reshape(out.Cols(ir.At(indexX), s.NY*s.NU), s.NY, s.NU)
		}
		loop.Add(b.Call(helper, fu, weight,
			g.R1.Rows(loop.Index.Times(s.NU), s.NU),
			g.R2.Rows(loop.Index.Times(s.NU), s.NU),
		))
	}
	f.Add(loop)

	// Mayer term.
	nOutN := s.NYN
	if g.ObjEvFxEnd == nil {
		nOutN += s.NYN * s.NX
	}
	inN := f.Local("objValueInEnd", 1, s.NX+s.NOD)
	outN := f.Local("objValueOutEnd", 1, nOutN)
	f.Add(b.Assign(inN.Cols(ir.At(0), s.NX), g.X.Row(ir.At(s.N))))
	if g.OD != nil {
		f.Add(b.Assign(inN.Cols(ir.At(s.NX), s.NOD), g.OD.Row(ir.At(s.N))))
	}
	f.Add(
		b.Invoke(nil, g.EvaluateLSQEndTerm, inN, outN),
		b.Assign(g.DyN, b.T(outN.Cols(ir.At(0), s.NYN))),
	)
	if !g.QN1.Given() {
		helper := hpmpcFactorHelper(g, "setObjQN1QN2", "QN1", "QN2", s.NX, s.NYN, g.B.Zeros(s.NX, s.NX))
		var fxN ir.Expr
		if g.ObjEvFxEnd != nil {
			fxN = g.ObjEvFxEnd
		} else {
			fxN = b.Reshape(outN.Cols(ir.At(s.NYN), s.NYN*s.NX), s.NYN, s.NX)
		}
		f.Add(b.Call(helper, fxN, g.ObjSEndTerm, g.QN1, g.QN2))
	}

	hpmpcGradientHelper(g)
	g.EvaluateObjective = f
	return nil
}

// hpmpcFoldFactors declares the Hessian factors. Given weights and
// Jacobians fold into constant Q1 = Jxᵗ·S·Jx + λI and Q2 = Jxᵗ·S (and
// likewise for R and the terminal QN); anything computed becomes a
// stacked per-stage workspace block filled by a helper.
func hpmpcFoldFactors(g *Generation) {
	b, s := g.B, g.Shape
	weightGiven := g.ObjS.Given() && !s.VariableWeighting

	factor := func(j *ir.Operand, w *ir.Operand, wGiven bool, lm ir.Expr,
		n1, n2 string, dim, ny, stages int) (*ir.Operand, *ir.Operand) {
		if j != nil && wGiven {
			f2 := b.Mul(b.T(j), w)
			f1 := b.Add(b.Mul(f2, j), lm)
			m1, ok1 := ir.Given(f1)
			m2, ok2 := ir.Given(f2)
			if ok1 && ok2 {
				return b.Declare(n1, dim, dim, ir.StorageConstant, m1),
					b.Declare(n2, dim, ny, ir.StorageConstant, m2)
			}
		}
		return b.Declare(n1, stages*dim, dim, ir.StorageWorkspace, nil),
			b.Declare(n2, stages*dim, ny, ir.StorageWorkspace, nil)
	}

	g.Q1, g.Q2 = factor(g.ObjEvFx, g.ObjS, weightGiven, g.lmSeed(s.NX), "Q1", "Q2", s.NX, s.NY, s.N)
	g.R1, g.R2 = factor(g.ObjEvFu, g.ObjS, weightGiven, g.lmSeed(s.NU), "R1", "R2", s.NU, s.NY, s.N)
	g.QN1, g.QN2 = factor(g.ObjEvFxEnd, g.ObjSEndTerm, g.ObjSEndTerm.Given(), b.Zeros(s.NX, s.NX), "QN1", "QN2", s.NX, s.NYN, 1)
}

// hpmpcFactorHelper synthesizes tmp2 = Jᵗ·S, tmp1 = tmp2·J + lm.
func hpmpcFactorHelper(g *Generation, name, n1, n2 string, dim, ny int, lm ir.Expr) *ir.Function {
	b := g.B
	f := b.Function(name, "")
	j := f.Param("tmpJ", ny, dim)
	w := f.Param("tmpObjS", ny, ny)
	t1 := f.Param("tmp"+n1, dim, dim)
	t2 := f.Param("tmp"+n2, dim, ny)
	f.Add(
		b.Assign(t2, b.Mul(b.T(j), w)),
		b.Assign(t1, b.Add(b.Mul(t2, j), lm)),
	)
	g.AddHelper(f)
	return f
}

// hpmpcGradientHelper synthesizes setStagef(stageq, stager, index):
// the weighted-Jacobian block times the stage residual.
func hpmpcGradientHelper(g *Generation) {
	b, s := g.B, g.Shape
	f := b.Function("setStagef", "")
	qq := f.Param("stageq", s.NX, 1)
	rr := f.Param("stager", s.NU, 1)
	index := f.IndexParam("index")

	dy := g.Dy.Rows(index.Times(s.NY), s.NY)
	var q2, r2 ir.Expr = g.Q2, g.R2
	if !g.Q2.Given() {
		q2 = g.Q2.Rows(index.Times(s.NX), s.NX)
	}
	if !g.R2.Given() {
		r2 = g.R2.Rows(index.Times(s.NU), s.NU)
	}
	f.Add(
		b.Assign(qq, b.Mul(q2, dy)),
		b.Assign(rr, b.Mul(r2, dy)),
	)
	g.AddHelper(f)
	g.SetStagef = f
}

// BuildConstraintEvaluation builds evaluateConstraints: constant bound
// vectors over controls (stages 0..N-1) then states (stages 1..N), and the
// bound residuals bound - trajectory.
func (HPMPC) BuildConstraintEvaluation(g *Generation) error {
	b, s := g.B, g.Shape
	nU, nX := s.N*s.NU, s.N*s.NX

	lb, ub := hpmpcBoundValues(g)

	f := b.Function("evaluateConstraints", "Evaluate the box constraint residuals of the QP.")
	evLb := f.Declare("evLbValues", nU+nX, 1, ir.StorageConstant, lb)
	evUb := f.Declare("evUbValues", nU+nX, 1, ir.StorageConstant, ub)

	g.QpLb = b.Declare("qpLb", nU+nX, 1, ir.StorageWorkspace, nil)
	g.QpUb = b.Declare("qpUb", nU+nX, 1, ir.StorageWorkspace, nil)

	uCol := g.U.ColVector()
	xCol := b.Rows(g.X.ColVector(), ir.At(s.NX), nX)
	f.Add(
		b.Assign(g.QpLb.Rows(ir.At(0), nU), b.Sub(evLb.Rows(ir.At(0), nU), uCol)),
		b.Assign(g.QpUb.Rows(ir.At(0), nU), b.Sub(evUb.Rows(ir.At(0), nU), uCol)),
		b.Assign(g.QpLb.Rows(ir.At(nU), nX), b.Sub(evLb.Rows(ir.At(nU), nX), xCol)),
		b.Assign(g.QpUb.Rows(ir.At(nU), nX), b.Sub(evUb.Rows(ir.At(nU), nX), xCol)),
	)
	g.EvaluateConstraints = f
	return nil
}

// BuildQPAssembly declares the QP payload and builds initialize, which
// copies the constant Hessian blocks into every stage slot and zeroes the
// cross block.
func (HPMPC) BuildQPAssembly(g *Generation) error {
	b, s := g.B, g.Shape

	if !g.Q1.Given() || !g.R1.Given() || !g.QN1.Given() {
		return &ir.ConfigurationError{
			Component: "initialize",
			Message:   "the hpmpc backend requires constant Hessian blocks (given weights and Jacobians)",
		}
	}

	g.QpQ = b.Declare("qpQ", s.N*s.NX, s.NX, ir.StorageWorkspace, nil)
	g.QpQf = b.Declare("qpQf", s.NX, s.NX, ir.StorageWorkspace, nil)
	g.QpS = b.Declare("qpS", s.N*s.NX, s.NU, ir.StorageWorkspace, nil)
	g.QpR = b.Declare("qpR", s.N*s.NU, s.NU, ir.StorageWorkspace, nil)

	g.Qpq = b.Declare("qpq", s.N*s.NX, 1, ir.StorageWorkspace, nil)
	g.Qpqf = b.Declare("qpqf", s.NX, 1, ir.StorageWorkspace, nil)
	g.Qpr = b.Declare("qpr", s.N*s.NU, 1, ir.StorageWorkspace, nil)

	g.Qpx = b.Declare("qpx", (s.N+1)*s.NX, 1, ir.StorageWorkspace, nil)
	g.Qpu = b.Declare("qpu", s.N*s.NU, 1, ir.StorageWorkspace, nil)

	g.NIt = b.DeclareInt("nIt", 1, 1, ir.StorageWorkspace)

	f := b.Function("initialize", "Initialize the constant blocks of the QP.")
	loop := b.Loop("blk", 0, s.N)
	loop.Add(
		b.Assign(g.QpQ.Rows(loop.Index.Times(s.NX), s.NX), g.Q1),
		b.Assign(g.QpR.Rows(loop.Index.Times(s.NU), s.NU), g.R1),
	)
	f.Add(
		b.Comment("Hessian blocks are constant over the horizon."),
		loop,
		b.Assign(g.QpQf, g.QN1),
		b.Comment("No control/state cross weighting."),
		b.Assign(g.QpS, b.Zeros(s.N*s.NX, s.NU)),
	)
	g.Initialize = f
	return nil
}

// BuildFeedbackCall fills feedbackStep: state feedback residual, reference
// subtraction, gradients, the solver call and the full Newton step.
func (HPMPC) BuildFeedbackCall(g *Generation, feedback *ir.Function) error {
	b, s := g.B, g.Shape

	wrapper := b.Extern(g.Symbol("hpmpc_ip_wrapper"), ir.Int,
		"Interior-point QP solve through the HPMPC interface shim.",
		ir.ExternParam{Name: "N", Kind: ir.KindUintValue},
		ir.ExternParam{Name: "nx", Kind: ir.KindUintValue},
		ir.ExternParam{Name: "nu", Kind: ir.KindUintValue},
		ir.ExternParam{Name: "A", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "B", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "d", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "Q", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "Qf", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "S", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "R", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "q", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "qf", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "r", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "lb", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "ub", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "x", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "u", Kind: ir.KindRealPtr},
		ir.ExternParam{Name: "nIt", Kind: ir.KindIntPtr},
	)
	b.RequestAsset(HPMPCInterfaceTemplate, g.Symbol("hpmpc_interface.c"))

	retVal := feedback.LocalInt("retVal")
	retVal.SetDoc("Status code of the HPMPC QP solver.")

	feedback.Add(
		b.Assign(g.Qpx.Rows(ir.At(0), s.NX), b.Sub(g.X0, b.T(g.X.Row(ir.At(0))))),
		b.SubFrom(g.Dy, g.Y.ColVector()),
		b.SubFrom(g.DyN, g.YN),
	)
	for i := 0; i < s.N; i++ {
		feedback.Add(b.Call(g.SetStagef,
			g.Qpq.Rows(ir.At(i*s.NX), s.NX),
			g.Qpr.Rows(ir.At(i*s.NU), s.NU),
			ir.At(i),
		))
	}
	feedback.Add(
		b.Assign(g.Qpqf, b.Mul(g.QN2, g.DyN)),
		b.Invoke(retVal, wrapper,
			ir.IntLit(s.N), ir.IntLit(s.NX), ir.IntLit(s.NU),
			g.EvGx, g.EvGu, g.D,
			g.QpQ, g.QpQf, g.QpS, g.QpR,
			g.Qpq, g.Qpqf, g.Qpr,
			g.QpLb, g.QpUb,
			g.Qpx, g.Qpu,
			g.NIt,
		),
		b.AddTo(g.X.ColVector(), g.Qpx),
		b.AddTo(g.U.ColVector(), g.Qpu),
	)
	feedback.Returns(retVal)
	return nil
}

// hpmpcBoundValues concatenates the control bounds of stages 0..N-1
// followed by the state bounds of stages 1..N and folds them. The initial
// state is fixed by x0. Both results are nil when the builder failed.
func hpmpcBoundValues(g *Generation) (lb, ub *mat.Dense) {
	b, s := g.B, g.Shape
	var lower, upper []ir.Expr
	stage := func(lo, hi []float64) {
		lower = append(lower, b.Const(mat.NewDense(len(lo), 1, append([]float64(nil), lo...))))
		upper = append(upper, b.Const(mat.NewDense(len(hi), 1, append([]float64(nil), hi...))))
	}
	for k := 0; k < s.N; k++ {
		stage(s.ControlBounds.Lower[k], s.ControlBounds.Upper[k])
	}
	for k := 1; k <= s.N; k++ {
		stage(s.StateBounds.Lower[k], s.StateBounds.Upper[k])
	}
	lb, _ = ir.Given(b.Concat(lower...))
	ub, _ = ir.Given(b.Concat(upper...))
	return lb, ub
}
