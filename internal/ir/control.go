package ir

import "gonum.org/v1/gonum/mat"

// Block is an ordered sequence of nodes. Insertion order is emission order.
type Block struct {
	nodes []Node
}

// Append adds nodes at the end of the block. Nil nodes are skipped.
func (b *Block) Append(nodes ...Node) {
	for _, n := range nodes {
		if n != nil {
			b.nodes = append(b.nodes, n)
		}
	}
}

// Nodes returns the ordered children.
func (b *Block) Nodes() []Node {
	out := make([]Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Len returns the number of direct children.
func (b *Block) Len() int { return len(b.nodes) }

// ForLoop iterates Index over [Lo, Hi). Lo == Hi is legal and emits no
// iterations. Parallel marks the iterations as independent so the target
// runtime may distribute them; Private lists the function locals each
// iteration needs its own copy of.
type ForLoop struct {
	Index    *Index
	Lo, Hi   int
	Body     Block
	Parallel bool
	Private  []*Operand
}

func (*ForLoop) node() {}

// Add appends nodes to the loop body.
func (l *ForLoop) Add(nodes ...Node) *ForLoop {
	l.Body.Append(nodes...)
	return l
}

// Trips returns the iteration count.
func (l *ForLoop) Trips() int { return l.Hi - l.Lo }

// Function is a reusable unit with positional parameters, optional
// locals, at most one return operand and a body.
type Function struct {
	name    string
	doc     string
	params  []Param
	locals  []*Operand
	ret     *Operand
	body    Block
	scope   *scope
	builder *Builder
}

// Name returns the function name without target prefix.
func (f *Function) Name() string { return f.name }

// Doc returns the documentation string.
func (f *Function) Doc() string { return f.doc }

// Params returns the positional parameters.
func (f *Function) Params() []Param {
	out := make([]Param, len(f.params))
	copy(out, f.params)
	return out
}

// Locals returns local scratch and constant operands in declaration order.
func (f *Function) Locals() []*Operand {
	out := make([]*Operand, len(f.locals))
	copy(out, f.locals)
	return out
}

// Return returns the return operand, or nil.
func (f *Function) Return() *Operand { return f.ret }

// Body returns the function body.
func (f *Function) Body() *Block { return &f.body }

// Add appends nodes to the body.
func (f *Function) Add(nodes ...Node) *Function {
	f.body.Append(nodes...)
	return f
}

// Param declares the next positional real-valued parameter.
func (f *Function) Param(name string, rows, cols int) *Operand {
	op := f.builder.declareIn(f.scope, name, rows, cols, StorageLocal, Real, nil)
	f.params = append(f.params, op)
	return op
}

// IndexParam declares the next positional integer index parameter.
func (f *Function) IndexParam(name string) *Index {
	ix := &Index{name: name}
	if f.scope.claim(name, f.builder) {
		f.params = append(f.params, ix)
	}
	return ix
}

// Declare adds a local operand. Only local scratch and constant classes
// are allowed inside a function.
func (f *Function) Declare(name string, rows, cols int, class StorageClass, given *mat.Dense) *Operand {
	if class != StorageLocal && class != StorageConstant {
		f.builder.fail(&ConfigurationError{
			Component: f.name,
			Message:   "function scope only holds local or constant operands, got " + class.String(),
		})
	}
	op := f.builder.declareIn(f.scope, name, rows, cols, class, Real, given)
	f.locals = append(f.locals, op)
	return op
}

// Local declares a real local scratch operand.
func (f *Function) Local(name string, rows, cols int) *Operand {
	return f.Declare(name, rows, cols, StorageLocal, nil)
}

// LocalInt declares an integer local scalar, e.g. a status code.
func (f *Function) LocalInt(name string) *Operand {
	op := f.builder.declareIn(f.scope, name, 1, 1, StorageLocal, Int, nil)
	f.locals = append(f.locals, op)
	return op
}

// Returns makes op the function's single return operand. op must be a
// local scalar of f.
func (f *Function) Returns(op *Operand) *Function {
	switch {
	case f.ret != nil:
		f.builder.fail(&ConfigurationError{Component: f.name, Message: "function already has a return operand"})
	case op == nil || !f.hasLocal(op) || op.class != StorageLocal:
		f.builder.fail(&ConfigurationError{Component: f.name, Message: "return operand must be a local of the function"})
	case !op.shape.IsScalar():
		f.builder.fail(&ShapeError{Op: "return " + f.name, Left: Shape{Rows: 1, Cols: 1}, Right: op.shape})
	default:
		f.ret = op
	}
	return f
}

func (f *Function) hasLocal(op *Operand) bool {
	for _, l := range f.locals {
		if l == op {
			return true
		}
	}
	return false
}
