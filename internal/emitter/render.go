package emitter

import (
	"fmt"
	"strings"

	"github.com/roach88/rtigen/internal/ir"
)

// block emits nodes. env binds the indices of unrolled loops.
func (e *emitter) block(w *writer, nodes []ir.Node, env map[*ir.Index]int) {
	for _, n := range nodes {
		switch s := n.(type) {
		case *ir.Assign:
			e.assign(w, s, env)
		case *ir.Call:
			args := make([]string, len(s.Args))
			for i, a := range s.Args {
				args[i] = e.arg(a, env)
			}
			e.callLine(w, s.Result, e.symbol(s.Func), args)
		case *ir.ExternCall:
			args := make([]string, len(s.Args))
			for i, a := range s.Args {
				args[i] = e.arg(a, env)
			}
			e.callLine(w, s.Result, s.Extern.Name, args)
		case *ir.Raw:
			w.line(s.Text)
		case *ir.ForLoop:
			e.loop(w, s, env)
		default:
			e.fail("unsupported node %T", n)
		}
	}
}

func (e *emitter) loop(w *writer, l *ir.ForLoop, env map[*ir.Index]int) {
	if l.Trips() <= 0 {
		return
	}
	if e.opts.Unroll {
		for k := l.Lo; k < l.Hi; k++ {
			inner := make(map[*ir.Index]int, len(env)+1)
			for ix, v := range env {
				inner[ix] = v
			}
			inner[l.Index] = k
			e.block(w, l.Body.Nodes(), inner)
		}
		return
	}
	if l.Parallel {
		pragma := "#pragma omp parallel for"
		if len(l.Private) > 0 {
			names := make([]string, len(l.Private))
			for i, op := range l.Private {
				names[i] = op.Name()
			}
			pragma += " private(" + strings.Join(names, ", ") + ")"
		}
		// Pragmas start at column 0.
		depth := w.depth
		w.depth = 0
		w.line(pragma)
		w.depth = depth
	}
	name := l.Index.Name()
	w.line(fmt.Sprintf("for (%s = %d; %s < %d; ++%s)", name, l.Lo, name, l.Hi, name))
	w.line("{")
	w.depth++
	e.block(w, l.Body.Nodes(), env)
	w.depth--
	w.line("}")
}

func (e *emitter) callLine(w *writer, result *ir.Operand, callee string, args []string) {
	call := callee + "()"
	if len(args) > 0 {
		call = callee + "( " + strings.Join(args, ", ") + " )"
	}
	if result != nil {
		call = e.cell(result, ir.At(0), nil) + " = " + call
	}
	w.line(call + ";")
}

// assign expands lhs op rhs element by element. Accumulating a zero
// element is skipped.
func (e *emitter) assign(w *writer, a *ir.Assign, env map[*ir.Index]int) {
	s := a.LHS.Shape()
	op := a.Op.String()
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			if a.Op != ir.OpSet {
				if v, ok := known(a.RHS, i, j); ok && v == 0 {
					continue
				}
			}
			lhs := e.target(a.LHS, i, j, env)
			rhs := e.elem(a.RHS, i, j, env)
			w.line(lhs + " " + op + " " + rhs + ";")
		}
	}
}

// arg renders a call argument: integers by value, expressions by address.
func (e *emitter) arg(a ir.Arg, env map[*ir.Index]int) string {
	switch x := a.(type) {
	case ir.IntLit:
		return fmt.Sprintf("%d", int(x))
	case ir.Offset:
		return x.Bind(env).String()
	case ir.Expr:
		return e.address(x, env)
	}
	e.fail("unsupported argument %T", a)
	return ""
}

// address renders the address of the first element of a contiguous
// addressable expression.
func (e *emitter) address(x ir.Expr, env map[*ir.Index]int) string {
	if op, ok := x.(*ir.Operand); ok {
		if e.scalarLocal(op) {
			return "&" + op.Name()
		}
		return e.base(op)
	}
	root, off, ok := ir.Locate(x, ir.At(0), ir.At(0))
	if !ok {
		e.fail("argument is not addressable")
		return ""
	}
	if e.scalarLocal(root) {
		return "&" + root.Name()
	}
	return "&(" + e.base(root) + "[" + off.Bind(env).String() + "])"
}

// base renders the storage of op without an element index.
func (e *emitter) base(op *ir.Operand) string {
	switch op.Class() {
	case ir.StorageInterface:
		return e.varsName + "." + op.Name()
	case ir.StorageWorkspace:
		return e.workName + "." + op.Name()
	case ir.StorageConstant:
		e.used[op] = true
		return op.Name()
	default:
		return op.Name()
	}
}

// scalarLocal reports whether op is emitted as a plain C scalar.
func (e *emitter) scalarLocal(op *ir.Operand) bool {
	return op.Class() == ir.StorageLocal && op.Shape().IsScalar() && !e.params[op]
}

// cell renders the element of op at linear offset off.
func (e *emitter) cell(op *ir.Operand, off ir.Offset, env map[*ir.Index]int) string {
	if e.scalarLocal(op) {
		return op.Name()
	}
	return e.base(op) + "[" + off.Bind(env).String() + "]"
}

// target renders element (i, j) of an assignment target.
func (e *emitter) target(x ir.Expr, i, j int, env map[*ir.Index]int) string {
	root, off, ok := ir.Locate(x, ir.At(i), ir.At(j))
	if !ok {
		e.fail("assignment target is not addressable")
		return ""
	}
	return e.cell(root, off, env)
}

// known returns element (i, j) of x when x is given.
func known(x ir.Expr, i, j int) (float64, bool) {
	if m, ok := ir.Given(x); ok {
		return m.At(i, j), true
	}
	return 0, false
}

// elem renders element (i, j) of x as a C expression. Elements backed by
// an operand, constants included, keep the operand's name; every other
// given subexpression becomes a literal.
func (e *emitter) elem(x ir.Expr, i, j int, env map[*ir.Index]int) string {
	if _, ok := ir.Root(x); ok {
		return e.target(x, i, j, env)
	}
	if v, ok := known(x, i, j); ok {
		return formatReal(v)
	}
	switch n := x.(type) {
	case *ir.Transpose:
		return e.elem(n.X, j, i, env)
	case *ir.Slice:
		return e.elem(n.X, i+n.Row.Const, j+n.Col.Const, env)
	case *ir.Reshape:
		k := i*n.Shape().Cols + j
		xc := n.X.Shape().Cols
		return e.elem(n.X, k/xc, k%xc, env)
	case *ir.Concat:
		part, r := n.Part(i)
		if part == nil {
			e.fail("row %d outside concatenation %s", i, n.Shape())
			return ""
		}
		return e.elem(part, r, j, env)
	case *ir.Product:
		return e.product(n, i, j, env)
	case *ir.Elementwise:
		return e.elementwise(n, i, j, env)
	case *ir.Scaled:
		if v, ok := known(n.X, i, j); ok {
			return formatReal(n.Factor * v)
		}
		return formatReal(n.Factor) + "*" + e.elem(n.X, i, j, env)
	}
	e.fail("unsupported expression %T", x)
	return ""
}

// product renders the inner product of row i of L and column j of R,
// dropping zero terms and unit factors.
func (e *emitter) product(p *ir.Product, i, j int, env map[*ir.Index]int) string {
	var terms []string
	for k := 0; k < p.L.Shape().Cols; k++ {
		lv, lk := known(p.L, i, k)
		rv, rk := known(p.R, k, j)
		switch {
		case (lk && lv == 0) || (rk && rv == 0):
			continue
		case lk && rk:
			terms = append(terms, formatReal(lv*rv))
		case lk && lv == 1:
			terms = append(terms, e.elem(p.R, k, j, env))
		case rk && rv == 1:
			terms = append(terms, e.elem(p.L, i, k, env))
		default:
			l, r := formatReal(lv), formatReal(rv)
			if !lk {
				l = e.elem(p.L, i, k, env)
			}
			if !rk {
				r = e.elem(p.R, k, j, env)
			}
			terms = append(terms, l+"*"+r)
		}
	}
	switch len(terms) {
	case 0:
		return formatReal(0)
	case 1:
		return terms[0]
	}
	return "(" + strings.Join(terms, " + ") + ")"
}

func (e *emitter) elementwise(n *ir.Elementwise, i, j int, env map[*ir.Index]int) string {
	lv, lk := known(n.L, i, j)
	rv, rk := known(n.R, i, j)
	switch {
	case rk && rv == 0:
		return e.elem(n.L, i, j, env)
	case n.Op == ir.OpAdd && lk && lv == 0:
		return e.elem(n.R, i, j, env)
	}
	sign := " + "
	if n.Op == ir.OpSub {
		sign = " - "
	}
	return "(" + e.elem(n.L, i, j, env) + sign + e.elem(n.R, i, j, env) + ")"
}
