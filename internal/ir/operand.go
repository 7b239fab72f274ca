package ir

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Shape is the rows x cols extent of an operand or expression.
// Scalars are 1x1.
type Shape struct {
	Rows int
	Cols int
}

func (s Shape) String() string {
	return fmt.Sprintf("(%dx%d)", s.Rows, s.Cols)
}

// Len returns the number of elements.
func (s Shape) Len() int { return s.Rows * s.Cols }

// IsScalar reports whether s is 1x1.
func (s Shape) IsScalar() bool { return s.Rows == 1 && s.Cols == 1 }

// StorageClass is the lifetime/visibility category of an operand.
// It is fixed when the operand is declared.
type StorageClass int

const (
	// StorageInterface operands cross the program boundary and are
	// supplied by the caller each cycle. Never assigned by generated code.
	StorageInterface StorageClass = iota + 1
	// StorageWorkspace operands persist across preparation/feedback calls.
	StorageWorkspace
	// StorageLocal operands live for one function body.
	StorageLocal
	// StorageConstant operands are baked into the source.
	StorageConstant
)

func (c StorageClass) String() string {
	switch c {
	case StorageInterface:
		return "interface-input"
	case StorageWorkspace:
		return "workspace"
	case StorageLocal:
		return "local"
	case StorageConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// readOnly reports whether generated code may never write the class.
func (c StorageClass) readOnly() bool {
	return c == StorageInterface || c == StorageConstant
}

// ScalarType is the element type of an operand or extern result.
type ScalarType int

const (
	Void ScalarType = iota
	Real
	Int
)

func (t ScalarType) String() string {
	switch t {
	case Real:
		return "real"
	case Int:
		return "int"
	default:
		return "void"
	}
}

// Content is the given/computed status of an expression, as a closed
// variant: Constant carries the folded payload, Computed carries nothing.
type Content interface {
	content() // Sealed
}

// Constant is the content of an expression whose value is fixed at
// generation time.
type Constant struct {
	M *mat.Dense
}

func (Constant) content() {}

// Computed is the content of an expression produced by runtime statements.
type Computed struct{}

func (Computed) content() {}

// Given returns the folded payload of e when e is given.
func Given(e Expr) (*mat.Dense, bool) {
	if e == nil {
		return nil, false
	}
	if c, ok := e.Content().(Constant); ok && c.M != nil {
		return c.M, true
	}
	return nil, false
}

// IsZero reports whether e is given and every element is zero.
func IsZero(e Expr) bool {
	m, ok := Given(e)
	if !ok {
		return false
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// Operand is a named symbolic matrix. Operands are created by
// Builder.Declare or by Function.Param/Local and never change class.
type Operand struct {
	name  string
	shape Shape
	class StorageClass
	typ   ScalarType
	value *mat.Dense // non-nil iff given
	doc   string
	scope *scope
}

func (*Operand) exprNode()  {}
func (*Operand) argNode()   {}
func (*Operand) paramNode() {}

// Name returns the operand name.
func (o *Operand) Name() string { return o.name }

// Shape returns the declared shape.
func (o *Operand) Shape() Shape { return o.shape }

// Class returns the storage class.
func (o *Operand) Class() StorageClass { return o.class }

// Type returns the element type.
func (o *Operand) Type() ScalarType { return o.typ }

// Given reports whether the operand carries a generation-time payload.
func (o *Operand) Given() bool { return o.value != nil }

// Content implements Expr.
func (o *Operand) Content() Content {
	if o.value != nil {
		return Constant{M: o.value}
	}
	return Computed{}
}

// Doc returns the documentation string.
func (o *Operand) Doc() string { return o.doc }

// SetDoc attaches documentation emitted next to the declaration.
func (o *Operand) SetDoc(doc string) *Operand {
	o.doc = doc
	return o
}

// Scope returns the name of the declaring scope ("program" or a function name).
func (o *Operand) Scope() string {
	if o.scope == nil {
		return ""
	}
	return o.scope.name
}

func (o *Operand) String() string {
	return fmt.Sprintf("%s%s", o.name, o.shape)
}

// Rows returns n rows starting at start.
func (o *Operand) Rows(start Offset, n int) Expr {
	return o.builder().Slice(o, start, At(0), n, o.shape.Cols)
}

// Cols returns n columns starting at start.
func (o *Operand) Cols(start Offset, n int) Expr {
	return o.builder().Slice(o, At(0), start, o.shape.Rows, n)
}

// Row returns row k as a 1 x cols expression.
func (o *Operand) Row(k Offset) Expr {
	return o.Rows(k, 1)
}

// Block returns the rows x cols sub-block anchored at (r, c).
func (o *Operand) Block(r, c Offset, rows, cols int) Expr {
	return o.builder().Slice(o, r, c, rows, cols)
}

// T returns the transpose.
func (o *Operand) T() Expr {
	return o.builder().T(o)
}

// ColVector flattens the operand row-major into a column vector.
func (o *Operand) ColVector() Expr {
	return o.builder().Reshape(o, o.shape.Len(), 1)
}

// RowVector flattens the operand row-major into a row vector.
func (o *Operand) RowVector() Expr {
	return o.builder().Reshape(o, 1, o.shape.Len())
}

func (o *Operand) builder() *Builder {
	if o.scope == nil || o.scope.builder == nil {
		// Not set up. Slicing helpers on a zero Operand still need a
		// builder to record the failure in; an orphan one is discarded.
		b := NewBuilder()
		b.fail(&ConfigurationError{Component: "operand", Message: fmt.Sprintf("operand %q used before it was declared", o.name)})
		return b
	}
	return o.scope.builder
}

// Index is an integer symbol bound by a for-loop or by a function
// parameter. It only appears inside offsets.
type Index struct {
	name    string
	lo, hi  int
	bounded bool
}

func (*Index) paramNode() {}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// Bounds returns the iteration range [lo, hi) when the index is bound by a loop.
func (ix *Index) Bounds() (lo, hi int, ok bool) { return ix.lo, ix.hi, ix.bounded }

// Times returns the offset scale*ix.
func (ix *Index) Times(scale int) Offset { return Offset{Index: ix, Scale: scale} }

// Offset returns the offset 1*ix.
func (ix *Index) Offset() Offset { return ix.Times(1) }

// Offset is an affine row or column position: Scale*Index + Const.
// A nil Index makes it a plain constant.
type Offset struct {
	Index *Index
	Scale int
	Const int
}

func (Offset) argNode() {}

// At returns the constant offset c.
func At(c int) Offset { return Offset{Const: c} }

// Plus shifts the offset by c.
func (o Offset) Plus(c int) Offset {
	o.Const += c
	return o
}

// Mul scales the whole offset by k.
func (o Offset) Mul(k int) Offset {
	o.Scale *= k
	o.Const *= k
	return o
}

// IsConst reports whether the offset does not depend on an index.
func (o Offset) IsConst() bool { return o.Index == nil || o.Scale == 0 }

// Add sums two offsets. It fails when they depend on different indices.
func (o Offset) Add(p Offset) (Offset, bool) {
	switch {
	case p.IsConst():
		return o.Plus(p.Const), true
	case o.IsConst():
		return p.Plus(o.Const), true
	case o.Index != p.Index:
		return Offset{}, false
	}
	return Offset{Index: o.Index, Scale: o.Scale + p.Scale, Const: o.Const + p.Const}, true
}

// Bind substitutes a concrete value for the offset's index when env holds one.
func (o Offset) Bind(env map[*Index]int) Offset {
	if o.IsConst() {
		return At(o.Const)
	}
	if v, ok := env[o.Index]; ok {
		return At(o.Scale*v + o.Const)
	}
	return o
}

// Range returns the smallest and largest values the offset takes.
// bounded is false when the index range is unknown.
func (o Offset) Range() (lo, hi int, bounded bool) {
	if o.IsConst() {
		return o.Const, o.Const, true
	}
	ilo, ihi, ok := o.Index.Bounds()
	if !ok {
		return o.Const, 0, false
	}
	if ihi <= ilo {
		// Degenerate loop: the offset is never evaluated.
		return o.Const, o.Const, true
	}
	return o.Scale*ilo + o.Const, o.Scale*(ihi-1) + o.Const, true
}

func (o Offset) String() string {
	if o.IsConst() {
		return fmt.Sprintf("%d", o.Const)
	}
	var sb strings.Builder
	sb.WriteString(o.Index.name)
	if o.Scale != 1 {
		fmt.Fprintf(&sb, " * %d", o.Scale)
	}
	if o.Const > 0 {
		fmt.Fprintf(&sb, " + %d", o.Const)
	} else if o.Const < 0 {
		fmt.Fprintf(&sb, " - %d", -o.Const)
	}
	return sb.String()
}

// IntLit is an integer literal argument, e.g. a dimension passed to an
// external solver.
type IntLit int

func (IntLit) argNode() {}

// Arg is anything that binds a call parameter: an Expr, an Offset or an IntLit.
type Arg interface {
	argNode() // Sealed
}

// Param is a function parameter: an *Operand or an *Index.
type Param interface {
	paramNode() // Sealed
}
