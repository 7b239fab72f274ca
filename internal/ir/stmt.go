package ir

// Node is an element of a Block: a statement or a nested control node.
//
// This is a sealed interface. Node types:
//   - *Assign, *Call, *ExternCall, *Raw: statements
//   - *ForLoop: control
type Node interface {
	node() // Sealed
}

// Stmt is a Node that performs work on its own.
type Stmt interface {
	Node
	stmtNode() // Sealed
}

// AssignOp is the assignment flavour.
type AssignOp int

const (
	OpSet AssignOp = iota + 1
	OpAddTo
	OpSubFrom
)

func (op AssignOp) String() string {
	switch op {
	case OpAddTo:
		return "+="
	case OpSubFrom:
		return "-="
	default:
		return "="
	}
}

// Assign is LHS op RHS over equal shapes. LHS is addressable and never
// interface-input or constant storage.
type Assign struct {
	Op  AssignOp
	LHS Expr
	RHS Expr
}

func (*Assign) node()     {}
func (*Assign) stmtNode() {}

// Call invokes a generated function. Result, when set, receives the
// callee's return operand.
type Call struct {
	Func   *Function
	Args   []Arg
	Result *Operand
}

func (*Call) node()     {}
func (*Call) stmtNode() {}

// ExternCall invokes a symbol implemented outside the generated program
// (integrator, measurement function, QP solver) through its declared signature.
type ExternCall struct {
	Extern *Extern
	Args   []Arg
	Result *Operand
}

func (*ExternCall) node()     {}
func (*ExternCall) stmtNode() {}

// Raw is verbatim target-language text, e.g. a comment.
type Raw struct {
	Text string
}

func (*Raw) node()     {}
func (*Raw) stmtNode() {}

// ExternKind is the C-level kind of an extern parameter.
type ExternKind int

const (
	// KindIntValue binds an IntLit or an Offset.
	KindIntValue ExternKind = iota + 1
	// KindUintValue binds a non-negative IntLit, e.g. a dimension.
	KindUintValue
	// KindRealPtr binds a contiguous real expression by address.
	KindRealPtr
	// KindIntPtr binds a contiguous int operand by address.
	KindIntPtr
	// KindRealConstPtr binds a contiguous real expression by address for
	// reading only. Interface-input and constant storage may be passed.
	KindRealConstPtr
)

// Writable reports whether the external symbol may write through a
// parameter of kind k.
func (k ExternKind) Writable() bool {
	return k == KindRealPtr || k == KindIntPtr
}

// ExternParam is one positional parameter of an extern signature.
type ExternParam struct {
	Name string
	Kind ExternKind
}

// Extern is the fixed signature of an external symbol. The emitter
// forward-declares every registered extern before the first definition.
type Extern struct {
	Name    string
	Params  []ExternParam
	Returns ScalarType
	Doc     string
}
