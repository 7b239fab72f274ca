package ir

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// scope is an operand namespace: the program scope or one function body.
type scope struct {
	name    string
	parent  *scope
	names   map[string]bool
	builder *Builder
}

func newScope(name string, parent *scope, b *Builder) *scope {
	return &scope{name: name, parent: parent, names: make(map[string]bool), builder: b}
}

// claim reserves name in s. Locals may not shadow program-scope names.
func (s *scope) claim(name string, b *Builder) bool {
	if name == "" {
		b.fail(&ConfigurationError{Component: s.name, Message: "empty name"})
		return false
	}
	for cur := s; cur != nil; cur = cur.parent {
		if cur.names[name] {
			b.fail(&NameConflictError{Name: name, Scope: cur.name})
			return false
		}
	}
	s.names[name] = true
	return true
}

// Asset is a fixed support file the generated program needs next to it,
// e.g. the glue source of an external solver interface.
type Asset struct {
	Template string // embedded template name
	Path     string // output path relative to the export folder
}

// Builder accumulates one generation run: operands, functions, externs
// and requested assets. The first construction error is kept and every
// later construction becomes a no-op, so callers check Err once per step.
//
// A Builder is not safe for concurrent use; each run owns one.
type Builder struct {
	global   *scope
	globals  []*Operand
	funcs    map[string]*Function
	defined  []*Function
	exported []*Function
	externs  []*Extern
	assets   []Asset
	err      error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	b := &Builder{funcs: make(map[string]*Function)}
	b.global = newScope("program", nil, b)
	return b
}

// Err returns the first construction error, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Declare creates a program-scope operand. Passing a payload fixes the
// operand as given; given operands must be constant storage and constant
// storage must be given. Local scratch belongs to functions.
func (b *Builder) Declare(name string, rows, cols int, class StorageClass, given *mat.Dense) *Operand {
	if class == StorageLocal {
		b.fail(&ConfigurationError{Component: "program", Message: fmt.Sprintf("%q: local operands are declared on a function", name)})
	}
	op := b.declareIn(b.global, name, rows, cols, class, Real, given)
	if op.scope != nil {
		b.globals = append(b.globals, op)
	}
	return op
}

// DeclareInt creates a program-scope integer operand.
func (b *Builder) DeclareInt(name string, rows, cols int, class StorageClass) *Operand {
	op := b.declareIn(b.global, name, rows, cols, class, Int, nil)
	if op.scope != nil {
		b.globals = append(b.globals, op)
	}
	return op
}

func (b *Builder) declareIn(s *scope, name string, rows, cols int, class StorageClass, typ ScalarType, given *mat.Dense) *Operand {
	op := &Operand{name: name, shape: Shape{Rows: rows, Cols: cols}, class: class, typ: typ}
	if rows < 1 || cols < 1 {
		b.fail(&ConfigurationError{Component: s.name, Message: fmt.Sprintf("%q: invalid shape %s", name, op.shape)})
		return op
	}
	if given != nil {
		if r, c := given.Dims(); r != rows || c != cols {
			b.fail(&ShapeError{Op: "declare " + name, Left: op.shape, Right: Shape{Rows: r, Cols: c}})
			return op
		}
		if class != StorageConstant {
			b.fail(&ConfigurationError{Component: s.name, Message: fmt.Sprintf("%q: given content requires constant storage, got %s", name, class)})
			return op
		}
		op.value = mat.DenseCopyOf(given)
	} else if class == StorageConstant {
		b.fail(&ConfigurationError{Component: s.name, Message: fmt.Sprintf("%q: constant storage requires given content", name)})
		return op
	}
	if !s.claim(name, b) {
		return op
	}
	op.scope = s
	return op
}

// Function creates a function unit. It is emitted only once passed to Define.
func (b *Builder) Function(name, doc string) *Function {
	f := &Function{name: name, doc: doc, builder: b}
	f.scope = newScope(name, b.global, b)
	if _, dup := b.funcs[name]; dup {
		b.fail(&NameConflictError{Name: name, Scope: "functions"})
		return f
	}
	b.funcs[name] = f
	return f
}

// Define appends functions to the definitions, in registration order.
func (b *Builder) Define(fns ...*Function) {
	b.defined = append(b.defined, fns...)
}

// Export marks functions as part of the caller-facing surface; their
// prototypes go to the declarations section in this order.
func (b *Builder) Export(fns ...*Function) {
	b.exported = append(b.exported, fns...)
}

// Extern registers an external symbol signature.
func (b *Builder) Extern(name string, returns ScalarType, doc string, params ...ExternParam) *Extern {
	ext := &Extern{Name: name, Params: params, Returns: returns, Doc: doc}
	if _, dup := b.funcs[name]; dup {
		b.fail(&NameConflictError{Name: name, Scope: "functions"})
		return ext
	}
	for _, e := range b.externs {
		if e.Name == name {
			b.fail(&NameConflictError{Name: name, Scope: "externs"})
			return ext
		}
	}
	b.externs = append(b.externs, ext)
	return ext
}

// RequestAsset asks the exporter to materialize a template next to the
// generated source.
func (b *Builder) RequestAsset(template, path string) {
	b.assets = append(b.assets, Asset{Template: template, Path: path})
}

// Loop creates a for-loop over [lo, hi) with a fresh index.
func (b *Builder) Loop(index string, lo, hi int) *ForLoop {
	if hi < lo {
		b.fail(&ConfigurationError{Component: "loop " + index, Message: fmt.Sprintf("lower bound %d exceeds upper bound %d", lo, hi)})
	}
	return &ForLoop{Index: &Index{name: index, lo: lo, hi: hi, bounded: true}, Lo: lo, Hi: hi}
}

// ----------------------------------------------------------------------------
// Expressions

// Zeros returns a given rows x cols zero matrix.
func (b *Builder) Zeros(rows, cols int) Expr {
	if rows < 1 || cols < 1 {
		b.fail(&ConfigurationError{Component: "literal", Message: fmt.Sprintf("invalid shape (%dx%d)", rows, cols)})
		return &Literal{M: mat.NewDense(1, 1, nil)}
	}
	return &Literal{M: mat.NewDense(rows, cols, nil)}
}

// Identity returns a given n x n identity matrix.
func (b *Builder) Identity(n int) Expr {
	if n < 1 {
		b.fail(&ConfigurationError{Component: "literal", Message: fmt.Sprintf("invalid identity size %d", n)})
		return &Literal{M: mat.NewDense(1, 1, nil)}
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return &Literal{M: m}
}

// Const wraps a given matrix as an anonymous literal.
func (b *Builder) Const(m *mat.Dense) Expr {
	if m == nil {
		b.fail(&ConfigurationError{Component: "literal", Message: "nil payload"})
		return &Literal{M: mat.NewDense(1, 1, nil)}
	}
	return &Literal{M: mat.DenseCopyOf(m)}
}

// Scalar returns a given 1x1 literal.
func (b *Builder) Scalar(v float64) Expr {
	return &Literal{M: mat.NewDense(1, 1, []float64{v})}
}

// T returns xᵗ.
func (b *Builder) T(x Expr) Expr {
	if !b.usable(x) {
		return x
	}
	t := &Transpose{X: x}
	if m, ok := Given(x); ok {
		t.content = Constant{M: foldTranspose(m)}
	}
	return t
}

// Mul returns the matrix product l*r.
func (b *Builder) Mul(l, r Expr) Expr {
	if !b.usable(l) || !b.usable(r) {
		return l
	}
	ls, rs := l.Shape(), r.Shape()
	if ls.Cols != rs.Rows {
		b.fail(&ShapeError{Op: "*", Left: ls, Right: rs})
		return &Product{L: l, R: r}
	}
	p := &Product{L: l, R: r}
	lm, lok := Given(l)
	rm, rok := Given(r)
	if lok && rok {
		p.content = Constant{M: foldProduct(lm, rm)}
	}
	return p
}

// TMul returns lᵗ*r.
func (b *Builder) TMul(l, r Expr) Expr {
	return b.Mul(b.T(l), r)
}

// Add returns l+r. A given all-zero operand is dropped.
func (b *Builder) Add(l, r Expr) Expr {
	return b.elementwise(OpAdd, l, r)
}

// Sub returns l-r. A given all-zero right operand is dropped.
func (b *Builder) Sub(l, r Expr) Expr {
	return b.elementwise(OpSub, l, r)
}

func (b *Builder) elementwise(op ElemOp, l, r Expr) Expr {
	if !b.usable(l) || !b.usable(r) {
		return l
	}
	if l.Shape() != r.Shape() {
		b.fail(&ShapeError{Op: op.String(), Left: l.Shape(), Right: r.Shape()})
		return &Elementwise{Op: op, L: l, R: r}
	}
	lm, lok := Given(l)
	rm, rok := Given(r)
	switch {
	case lok && rok:
		return &Elementwise{Op: op, L: l, R: r, content: Constant{M: foldElementwise(op, lm, rm)}}
	case IsZero(r):
		return l
	case op == OpAdd && IsZero(l):
		return r
	}
	return &Elementwise{Op: op, L: l, R: r}
}

// Scale returns f*x.
func (b *Builder) Scale(f float64, x Expr) Expr {
	if !b.usable(x) {
		return x
	}
	s := &Scaled{Factor: f, X: x}
	if m, ok := Given(x); ok {
		s.content = Constant{M: foldScale(f, m)}
	}
	return s
}

// Slice returns the rows x cols window of x anchored at (r, c).
// Index-dependent anchors need an addressable x.
func (b *Builder) Slice(x Expr, r, c Offset, rows, cols int) Expr {
	if !b.usable(x) {
		return x
	}
	s := &Slice{X: x, Row: r, Col: c, shape: Shape{Rows: rows, Cols: cols}}
	xs := x.Shape()
	op := fmt.Sprintf("slice [%s+%d, %s+%d]", r, rows, c, cols)
	if rows < 1 || cols < 1 {
		b.fail(&ShapeError{Op: op, Left: xs, Right: s.shape})
		return s
	}
	if !b.fitsOffset(r, rows, xs.Rows) || !b.fitsOffset(c, cols, xs.Cols) {
		b.fail(&ShapeError{Op: op, Left: xs, Right: s.shape})
		return s
	}
	if !r.IsConst() || !c.IsConst() {
		if _, ok := Root(x); !ok {
			b.fail(&ConfigurationError{Component: "slice", Message: "index-dependent slice of a non-addressable expression"})
			return s
		}
		if _, ok := indexOf(s); !ok {
			b.fail(&ConfigurationError{Component: "slice", Message: "slice mixes two loop indices"})
			return s
		}
		return s
	}
	if m, ok := Given(x); ok {
		s.content = Constant{M: foldSlice(m, r.Const, c.Const, rows, cols)}
	}
	return s
}

func (b *Builder) fitsOffset(o Offset, n, limit int) bool {
	if o.Scale < 0 || n > limit {
		return false
	}
	if !o.IsConst() {
		if ilo, ihi, ok := o.Index.Bounds(); ok && ihi <= ilo {
			// Degenerate loop: never evaluated.
			return n <= limit
		}
	}
	lo, hi, bounded := o.Range()
	if lo < 0 {
		return false
	}
	if !bounded {
		return o.Const+n <= limit
	}
	return hi+n <= limit
}

// Rows returns n rows of x starting at start.
func (b *Builder) Rows(x Expr, start Offset, n int) Expr {
	return b.Slice(x, start, At(0), n, x.Shape().Cols)
}

// Cols returns n columns of x starting at start.
func (b *Builder) Cols(x Expr, start Offset, n int) Expr {
	return b.Slice(x, At(0), start, x.Shape().Rows, n)
}

// Reshape reinterprets x row-major as rows x cols.
func (b *Builder) Reshape(x Expr, rows, cols int) Expr {
	if !b.usable(x) {
		return x
	}
	r := &Reshape{X: x, shape: Shape{Rows: rows, Cols: cols}}
	if rows < 1 || cols < 1 || rows*cols != x.Shape().Len() {
		b.fail(&ShapeError{Op: "reshape", Left: x.Shape(), Right: r.shape})
		return r
	}
	if m, ok := Given(x); ok {
		r.content = Constant{M: foldReshape(m, rows, cols)}
	}
	return r
}

// Concat stacks parts vertically. Every part must have the same number
// of columns.
func (b *Builder) Concat(parts ...Expr) Expr {
	if len(parts) == 0 {
		b.fail(&ConfigurationError{Component: "concat", Message: "nothing to concatenate"})
		return &Literal{M: mat.NewDense(1, 1, nil)}
	}
	for _, p := range parts {
		if !b.usable(p) {
			return parts[0]
		}
	}
	first := parts[0].Shape()
	c := &Concat{Parts: append([]Expr(nil), parts...)}
	rows := 0
	for _, p := range parts {
		if p.Shape().Cols != first.Cols {
			b.fail(&ShapeError{Op: "concat", Left: first, Right: p.Shape()})
			c.shape = first
			return c
		}
		rows += p.Shape().Rows
	}
	c.shape = Shape{Rows: rows, Cols: first.Cols}

	given := make([]*mat.Dense, len(parts))
	for i, p := range parts {
		m, ok := Given(p)
		if !ok {
			return c
		}
		given[i] = m
	}
	c.content = Constant{M: foldConcat(given, rows, first.Cols)}
	return c
}

// usable checks that every operand inside x has been set up by this builder.
func (b *Builder) usable(x Expr) bool {
	if x == nil {
		b.fail(&ConfigurationError{Component: "expression", Message: "nil expression"})
		return false
	}
	for _, op := range Operands(x) {
		if op.scope == nil || op.scope.builder != b {
			b.fail(&ConfigurationError{Component: "expression", Message: fmt.Sprintf("operand %q used before it was declared", op.name)})
			return false
		}
	}
	return true
}

// ----------------------------------------------------------------------------
// Statements

// Assign returns lhs = rhs.
func (b *Builder) Assign(lhs, rhs Expr) *Assign { return b.assign(OpSet, lhs, rhs) }

// AddTo returns lhs += rhs.
func (b *Builder) AddTo(lhs, rhs Expr) *Assign { return b.assign(OpAddTo, lhs, rhs) }

// SubFrom returns lhs -= rhs.
func (b *Builder) SubFrom(lhs, rhs Expr) *Assign { return b.assign(OpSubFrom, lhs, rhs) }

func (b *Builder) assign(op AssignOp, lhs, rhs Expr) *Assign {
	a := &Assign{Op: op, LHS: lhs, RHS: rhs}
	if !b.usable(lhs) || !b.usable(rhs) {
		return a
	}
	if lhs.Shape() != rhs.Shape() {
		b.fail(&ShapeError{Op: op.String(), Left: lhs.Shape(), Right: rhs.Shape()})
		return a
	}
	root, ok := Root(lhs)
	if !ok {
		b.fail(&ConfigurationError{Component: "assignment", Message: "target is not addressable"})
		return a
	}
	if root.class.readOnly() {
		b.fail(&MutationError{Operand: root.name, Class: root.class})
	}
	return a
}

// Call returns a call of fn binding args positionally.
func (b *Builder) Call(fn *Function, args ...Arg) *Call {
	return b.CallInto(nil, fn, args...)
}

// CallInto returns result = fn(args...).
func (b *Builder) CallInto(result *Operand, fn *Function, args ...Arg) *Call {
	c := &Call{Func: fn, Args: args, Result: result}
	if fn == nil {
		b.fail(&ConfigurationError{Component: "call", Message: "nil function"})
		return c
	}
	if len(args) != len(fn.params) {
		b.fail(&ArityError{Callee: fn.name, Want: len(fn.params), Got: len(args), Arg: -1})
		return c
	}
	for i, p := range fn.params {
		if msg := b.bindParam(p, args[i]); msg != "" {
			b.fail(&ArityError{Callee: fn.name, Want: len(fn.params), Got: len(args), Arg: i, Message: msg})
			return c
		}
	}
	b.bindResult(fn.name, result, fn.ret != nil, typeOf(fn.ret))
	return c
}

func typeOf(op *Operand) ScalarType {
	if op == nil {
		return Void
	}
	return op.typ
}

func (b *Builder) bindParam(p Param, a Arg) string {
	switch param := p.(type) {
	case *Index:
		if _, ok := a.(Offset); !ok {
			return fmt.Sprintf("index parameter %q needs an offset, got %T", param.name, a)
		}
	case *Operand:
		e, ok := a.(Expr)
		if !ok {
			return fmt.Sprintf("parameter %q needs an expression, got %T", param.name, a)
		}
		if !b.usable(e) {
			return "unusable expression"
		}
		if e.Shape() != param.shape {
			return fmt.Sprintf("parameter %q has shape %s, argument has shape %s", param.name, param.shape, e.Shape())
		}
		if !Contiguous(e) {
			return fmt.Sprintf("argument for %q is not a contiguous block", param.name)
		}
	}
	return ""
}

func (b *Builder) bindResult(callee string, result *Operand, hasReturn bool, want ScalarType) {
	if result == nil {
		return
	}
	switch {
	case !hasReturn:
		b.fail(&ArityError{Callee: callee, Arg: 0, Message: "callee has no return value"})
	case !result.shape.IsScalar() || result.typ != want:
		b.fail(&ArityError{Callee: callee, Arg: 0, Message: fmt.Sprintf("result %q must be a %s scalar", result.name, want)})
	case result.class.readOnly():
		b.fail(&MutationError{Operand: result.name, Class: result.class})
	}
}

// Invoke returns result = ext(args...) for an external symbol. The
// argument list is checked against the declared signature.
func (b *Builder) Invoke(result *Operand, ext *Extern, args ...Arg) *ExternCall {
	c := &ExternCall{Extern: ext, Args: args, Result: result}
	if ext == nil {
		b.fail(&ConfigurationError{Component: "call", Message: "nil extern"})
		return c
	}
	if len(args) != len(ext.Params) {
		b.fail(&ArityError{Callee: ext.Name, Want: len(ext.Params), Got: len(args), Arg: -1})
		return c
	}
	for i, p := range ext.Params {
		if msg := b.bindExtern(p, args[i]); msg != "" {
			b.fail(&ArityError{Callee: ext.Name, Want: len(ext.Params), Got: len(args), Arg: i, Message: msg})
			return c
		}
		if !p.Kind.Writable() {
			continue
		}
		x, _ := args[i].(Expr)
		if root, ok := Root(x); ok && root.class.readOnly() {
			b.fail(&MutationError{Operand: root.name, Class: root.class, Via: ext.Name})
			return c
		}
	}
	b.bindResult(ext.Name, result, ext.Returns != Void, ext.Returns)
	return c
}

func (b *Builder) bindExtern(p ExternParam, a Arg) string {
	switch p.Kind {
	case KindIntValue:
		switch a.(type) {
		case IntLit, Offset:
			return ""
		}
		return fmt.Sprintf("%q needs an integer value, got %T", p.Name, a)
	case KindUintValue:
		if v, ok := a.(IntLit); ok && v >= 0 {
			return ""
		}
		return fmt.Sprintf("%q needs a non-negative integer literal, got %v", p.Name, a)
	case KindRealPtr, KindRealConstPtr, KindIntPtr:
		e, ok := a.(Expr)
		if !ok || !b.usable(e) {
			return fmt.Sprintf("%q needs an addressable expression, got %T", p.Name, a)
		}
		root, ok := Root(e)
		if !ok || !Contiguous(e) {
			return fmt.Sprintf("%q needs a contiguous block", p.Name)
		}
		want := Real
		if p.Kind == KindIntPtr {
			want = Int
		}
		if root.typ != want {
			return fmt.Sprintf("%q needs %s storage, %q is %s", p.Name, want, root.name, root.typ)
		}
		return ""
	}
	return fmt.Sprintf("%q has unknown kind", p.Name)
}

// Comment returns a raw comment line. A closing comment marker inside
// text is broken up.
func (b *Builder) Comment(text string) *Raw {
	text = strings.ReplaceAll(strings.TrimSpace(text), "*/", "* /")
	return &Raw{Text: "/* " + text + " */"}
}

// Raw returns verbatim target text.
func (b *Builder) Raw(text string) *Raw {
	return &Raw{Text: text}
}
