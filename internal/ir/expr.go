package ir

import "gonum.org/v1/gonum/mat"

// Expr is a recorded matrix expression. Expressions are never executed;
// the emitter renders them element by element.
//
// This is a sealed interface. The node types are:
//   - *Operand: reference
//   - *Transpose, *Product, *Elementwise, *Scaled
//   - *Slice, *Reshape: row/column ranges, sub-blocks, flattening
//   - *Concat: vertical stacking
//   - *Literal: zero, identity and other given matrices
type Expr interface {
	Arg
	Shape() Shape
	Content() Content
	exprNode() // Sealed
}

// Transpose is Xᵗ.
type Transpose struct {
	X       Expr
	content Content
}

func (*Transpose) exprNode() {}
func (*Transpose) argNode()  {}

func (t *Transpose) Shape() Shape {
	s := t.X.Shape()
	return Shape{Rows: s.Cols, Cols: s.Rows}
}

func (t *Transpose) Content() Content { return orComputed(t.content) }

// Product is the matrix product L*R.
type Product struct {
	L, R    Expr
	content Content
}

func (*Product) exprNode() {}
func (*Product) argNode()  {}

func (p *Product) Shape() Shape {
	return Shape{Rows: p.L.Shape().Rows, Cols: p.R.Shape().Cols}
}

func (p *Product) Content() Content { return orComputed(p.content) }

// ElemOp is an elementwise combination.
type ElemOp int

const (
	OpAdd ElemOp = iota + 1
	OpSub
)

func (op ElemOp) String() string {
	if op == OpSub {
		return "-"
	}
	return "+"
}

// Elementwise is L+R or L-R over equal shapes.
type Elementwise struct {
	Op      ElemOp
	L, R    Expr
	content Content
}

func (*Elementwise) exprNode() {}
func (*Elementwise) argNode()  {}

func (e *Elementwise) Shape() Shape     { return e.L.Shape() }
func (e *Elementwise) Content() Content { return orComputed(e.content) }

// Scaled is Factor*X.
type Scaled struct {
	Factor  float64
	X       Expr
	content Content
}

func (*Scaled) exprNode() {}
func (*Scaled) argNode()  {}

func (s *Scaled) Shape() Shape     { return s.X.Shape() }
func (s *Scaled) Content() Content { return orComputed(s.content) }

// Slice is the Rows x Cols window of X anchored at (Row, Col).
type Slice struct {
	X        Expr
	Row, Col Offset
	shape    Shape
	content  Content
}

func (*Slice) exprNode() {}
func (*Slice) argNode()  {}

func (s *Slice) Shape() Shape     { return s.shape }
func (s *Slice) Content() Content { return orComputed(s.content) }

// Reshape reinterprets the row-major element sequence of X with a new shape.
type Reshape struct {
	X       Expr
	shape   Shape
	content Content
}

func (*Reshape) exprNode() {}
func (*Reshape) argNode()  {}

func (r *Reshape) Shape() Shape     { return r.shape }
func (r *Reshape) Content() Content { return orComputed(r.content) }

// Concat stacks Parts vertically. All parts have the same column count.
// A concatenation is never addressable as a whole.
type Concat struct {
	Parts   []Expr
	shape   Shape
	content Content
}

func (*Concat) exprNode() {}
func (*Concat) argNode()  {}

func (c *Concat) Shape() Shape     { return c.shape }
func (c *Concat) Content() Content { return orComputed(c.content) }

// Part returns the part holding row r and the row's position inside it.
// It returns nil when r is out of range.
func (c *Concat) Part(r int) (Expr, int) {
	if r < 0 {
		return nil, 0
	}
	for _, p := range c.Parts {
		n := p.Shape().Rows
		if r < n {
			return p, r
		}
		r -= n
	}
	return nil, 0
}

// Literal is an anonymous given matrix.
type Literal struct {
	M *mat.Dense
}

func (*Literal) exprNode() {}
func (*Literal) argNode()  {}

func (l *Literal) Shape() Shape {
	r, c := l.M.Dims()
	return Shape{Rows: r, Cols: c}
}

func (l *Literal) Content() Content { return Constant{M: l.M} }

func orComputed(c Content) Content {
	if c == nil {
		return Computed{}
	}
	return c
}

// Root returns the operand whose storage backs every element of e.
// Only references, transposes, slices and reshapes of an operand have one.
func Root(e Expr) (*Operand, bool) {
	switch x := e.(type) {
	case *Operand:
		return x, true
	case *Transpose:
		return Root(x.X)
	case *Slice:
		return Root(x.X)
	case *Reshape:
		return Root(x.X)
	default:
		return nil, false
	}
}

// Contiguous reports whether e occupies one contiguous row-major run of
// its root operand, so that its address can be passed to a function.
func Contiguous(e Expr) bool {
	switch x := e.(type) {
	case *Operand:
		return true
	case *Reshape:
		return Contiguous(x.X)
	case *Transpose:
		s := x.X.Shape()
		return (s.Rows == 1 || s.Cols == 1) && Contiguous(x.X)
	case *Slice:
		if !Contiguous(x.X) {
			return false
		}
		return x.shape.Rows == 1 || x.shape.Cols == x.X.Shape().Cols
	default:
		return false
	}
}

// Locate maps element (row, col) of an addressable expression to its
// root operand and linear row-major storage offset.
func Locate(e Expr, row, col Offset) (*Operand, Offset, bool) {
	switch x := e.(type) {
	case *Operand:
		off, ok := row.Mul(x.shape.Cols).Add(col)
		return x, off, ok
	case *Transpose:
		return Locate(x.X, col, row)
	case *Slice:
		r, ok := row.Add(x.Row)
		if !ok {
			return nil, Offset{}, false
		}
		c, ok := col.Add(x.Col)
		if !ok {
			return nil, Offset{}, false
		}
		return Locate(x.X, r, c)
	case *Reshape:
		k, ok := row.Mul(x.shape.Cols).Add(col)
		if !ok {
			return nil, Offset{}, false
		}
		if Contiguous(x.X) {
			op, base, ok := Locate(x.X, At(0), At(0))
			if !ok {
				return nil, Offset{}, false
			}
			off, ok := base.Add(k)
			return op, off, ok
		}
		if !k.IsConst() {
			return nil, Offset{}, false
		}
		xc := x.X.Shape().Cols
		return Locate(x.X, At(k.Const/xc), At(k.Const%xc))
	case *Concat:
		// Per element only: the parts may live in different operands.
		if !row.IsConst() {
			return nil, Offset{}, false
		}
		part, r := x.Part(row.Const)
		if part == nil {
			return nil, Offset{}, false
		}
		return Locate(part, At(r), col)
	default:
		return nil, Offset{}, false
	}
}

// indexOf returns the single index e's addressing depends on.
// ok is false when two different indices are mixed.
func indexOf(e Expr) (ix *Index, ok bool) {
	merge := func(a, b *Index) (*Index, bool) {
		switch {
		case a == nil:
			return b, true
		case b == nil || a == b:
			return a, true
		}
		return nil, false
	}
	switch x := e.(type) {
	case *Transpose:
		return indexOf(x.X)
	case *Reshape:
		return indexOf(x.X)
	case *Scaled:
		return indexOf(x.X)
	case *Slice:
		inner, ok := indexOf(x.X)
		if !ok {
			return nil, false
		}
		for _, o := range []Offset{x.Row, x.Col} {
			if o.IsConst() {
				continue
			}
			if inner, ok = merge(inner, o.Index); !ok {
				return nil, false
			}
		}
		return inner, true
	case *Concat:
		var out *Index
		for _, p := range x.Parts {
			ix, ok := indexOf(p)
			if !ok {
				return nil, false
			}
			if out, ok = merge(out, ix); !ok {
				return nil, false
			}
		}
		return out, true
	default:
		return nil, true
	}
}

// Indices collects every index referenced by e, in first-use order.
func Indices(e Expr) []*Index {
	var out []*Index
	seen := map[*Index]bool{}
	add := func(o Offset) {
		if !o.IsConst() && !seen[o.Index] {
			seen[o.Index] = true
			out = append(out, o.Index)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Transpose:
			walk(x.X)
		case *Product:
			walk(x.L)
			walk(x.R)
		case *Elementwise:
			walk(x.L)
			walk(x.R)
		case *Scaled:
			walk(x.X)
		case *Slice:
			add(x.Row)
			add(x.Col)
			walk(x.X)
		case *Reshape:
			walk(x.X)
		case *Concat:
			for _, p := range x.Parts {
				walk(p)
			}
		}
	}
	walk(e)
	return out
}

// Operands collects every operand referenced by e, in first-use order.
func Operands(e Expr) []*Operand {
	var out []*Operand
	seen := map[*Operand]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Operand:
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		case *Transpose:
			walk(x.X)
		case *Product:
			walk(x.L)
			walk(x.R)
		case *Elementwise:
			walk(x.L)
			walk(x.R)
		case *Scaled:
			walk(x.X)
		case *Slice:
			walk(x.X)
		case *Reshape:
			walk(x.X)
		case *Concat:
			for _, p := range x.Parts {
				walk(p)
			}
		}
	}
	walk(e)
	return out
}

// Folding helpers. Callers guarantee compatible dimensions.

func foldTranspose(m *mat.Dense) *mat.Dense {
	return mat.DenseCopyOf(m.T())
}

func foldProduct(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

func foldElementwise(op ElemOp, a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	if op == OpSub {
		out.Sub(a, b)
	} else {
		out.Add(a, b)
	}
	return &out
}

func foldScale(f float64, a *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}

func foldSlice(a *mat.Dense, r, c, rows, cols int) *mat.Dense {
	return mat.DenseCopyOf(a.Slice(r, r+rows, c, c+cols))
}

func foldConcat(parts []*mat.Dense, rows, cols int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	r := 0
	for _, p := range parts {
		pr, _ := p.Dims()
		out.Slice(r, r+pr, 0, cols).(*mat.Dense).Copy(p)
		r += pr
	}
	return out
}

func foldReshape(a *mat.Dense, rows, cols int) *mat.Dense {
	_, ac := a.Dims()
	out := mat.NewDense(rows, cols, nil)
	for k := 0; k < rows*cols; k++ {
		out.Set(k/cols, k%cols, a.At(k/ac, k%ac))
	}
	return out
}
