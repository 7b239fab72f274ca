package ir

import "fmt"

// Program is the validated output of one generation run, ready for an
// emitter. It is read-only.
type Program struct {
	Globals   []*Operand
	Externs   []*Extern
	Functions []*Function // definitions, registration order
	Exported  []*Function // prototypes, export order
	Assets    []Asset
}

// Class returns the program-scope operands of one storage class, in
// declaration order.
func (p *Program) Class(c StorageClass) []*Operand {
	var out []*Operand
	for _, op := range p.Globals {
		if op.class == c {
			out = append(out, op)
		}
	}
	return out
}

// Function looks up a defined function by name.
func (p *Program) Function(name string) (*Function, bool) {
	for _, f := range p.Functions {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// Program validates the accumulated units and returns the program.
// It returns the first construction error when one was recorded.
func (b *Builder) Program() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	defined := make(map[*Function]bool, len(b.defined))
	for _, f := range b.defined {
		if defined[f] {
			return nil, &NameConflictError{Name: f.name, Scope: "definitions"}
		}
		defined[f] = true
	}
	for _, f := range b.exported {
		if !defined[f] {
			return nil, &ConfigurationError{Component: f.name, Message: "exported function is never defined"}
		}
	}
	for _, f := range b.defined {
		if err := b.check(f, defined); err != nil {
			return nil, err
		}
	}
	w := writes{}
	for _, f := range b.defined {
		if err := checkWrites(f, w); err != nil {
			return nil, err
		}
	}
	return &Program{
		Globals:   append([]*Operand(nil), b.globals...),
		Externs:   append([]*Extern(nil), b.externs...),
		Functions: append([]*Function(nil), b.defined...),
		Exported:  append([]*Function(nil), b.exported...),
		Assets:    append([]Asset(nil), b.assets...),
	}, nil
}

// check walks one function body and verifies that every index is bound
// by an enclosing loop or an index parameter and every operand is
// visible from the function.
func (b *Builder) check(f *Function, defined map[*Function]bool) error {
	bound := map[*Index]bool{}
	for _, p := range f.params {
		if ix, ok := p.(*Index); ok {
			bound[ix] = true
		}
	}
	visible := func(op *Operand) error {
		if op == nil || op.scope == f.scope || op.scope == b.global {
			return nil
		}
		return &ConfigurationError{Component: f.name, Message: fmt.Sprintf("operand %q is not visible here (declared in %s)", op.name, op.Scope())}
	}
	offset := func(o Offset) error {
		if o.IsConst() || bound[o.Index] {
			return nil
		}
		return &ConfigurationError{Component: f.name, Message: fmt.Sprintf("index %q used outside its loop", o.Index.name)}
	}
	arg := func(a Arg) error {
		switch x := a.(type) {
		case Offset:
			return offset(x)
		case Expr:
			for _, ix := range Indices(x) {
				if err := offset(ix.Offset()); err != nil {
					return err
				}
			}
			for _, op := range Operands(x) {
				if err := visible(op); err != nil {
					return err
				}
			}
		}
		return nil
	}
	active := map[string]bool{}

	var block func(nodes []Node) error
	block = func(nodes []Node) error {
		for _, n := range nodes {
			switch x := n.(type) {
			case *Assign:
				if err := arg(x.LHS); err != nil {
					return err
				}
				if err := arg(x.RHS); err != nil {
					return err
				}
			case *Call:
				if !defined[x.Func] {
					return &ConfigurationError{Component: f.name, Message: fmt.Sprintf("call to %q which is never defined", x.Func.name)}
				}
				for _, a := range x.Args {
					if err := arg(a); err != nil {
						return err
					}
				}
				if err := visible(x.Result); err != nil {
					return err
				}
			case *ExternCall:
				for _, a := range x.Args {
					if err := arg(a); err != nil {
						return err
					}
				}
				if err := visible(x.Result); err != nil {
					return err
				}
			case *ForLoop:
				name := x.Index.name
				if active[name] {
					return &NameConflictError{Name: name, Scope: f.name}
				}
				if f.scope.names[name] || b.global.names[name] {
					return &NameConflictError{Name: name, Scope: f.name}
				}
				for _, op := range x.Private {
					if !f.hasLocal(op) {
						return &ConfigurationError{Component: f.name, Message: fmt.Sprintf("private operand %q is not a local of the function", op.Name())}
					}
				}
				active[name] = true
				bound[x.Index] = true
				if err := block(x.Body.nodes); err != nil {
					return err
				}
				delete(bound, x.Index)
				delete(active, name)
			}
		}
		return nil
	}
	return block(f.body.nodes)
}

// WrittenParams reports, per positional parameter of f, whether f writes
// through it: by assignment, by binding it to a written parameter of a
// callee or by passing it to a writable extern pointer.
func WrittenParams(f *Function) []bool {
	return writes{}.params(f)
}

// writes memoizes WrittenParams per function.
type writes map[*Function][]bool

func (w writes) params(f *Function) []bool {
	if out, ok := w[f]; ok {
		return out
	}
	out := make([]bool, len(f.params))
	// Provisional entry for recursive calls.
	w[f] = out

	written := map[*Operand]bool{}
	mark := func(a Arg) {
		if x, ok := a.(Expr); ok {
			if root, ok := Root(x); ok {
				written[root] = true
			}
		}
	}
	Walk(&f.body, func(n Node, _ int) bool {
		switch s := n.(type) {
		case *Assign:
			mark(s.LHS)
		case *Call:
			callee := w.params(s.Func)
			for i, a := range s.Args {
				if i < len(callee) && callee[i] {
					mark(a)
				}
			}
		case *ExternCall:
			for i, a := range s.Args {
				if i < len(s.Extern.Params) && s.Extern.Params[i].Kind.Writable() {
					mark(a)
				}
			}
		}
		return true
	})
	for i, p := range f.params {
		if op, ok := p.(*Operand); ok {
			out[i] = written[op]
		}
	}
	return out
}

// checkWrites rejects calls in f that bind interface-input or constant
// storage to a parameter the callee writes through.
func checkWrites(f *Function, w writes) error {
	var err error
	Walk(&f.body, func(n Node, _ int) bool {
		if err != nil {
			return false
		}
		c, ok := n.(*Call)
		if !ok {
			return true
		}
		callee := w.params(c.Func)
		for i, a := range c.Args {
			if i >= len(callee) || !callee[i] {
				continue
			}
			x, ok := a.(Expr)
			if !ok {
				continue
			}
			if root, ok := Root(x); ok && root.class.readOnly() {
				err = &MutationError{Operand: root.name, Class: root.class, Via: c.Func.name}
				return false
			}
		}
		return true
	})
	return err
}

// Walk visits every node of blk depth-first in emission order. depth is
// the loop nesting level. Returning false skips a loop's body.
func Walk(blk *Block, fn func(n Node, depth int) bool) {
	var walk func(nodes []Node, depth int)
	walk = func(nodes []Node, depth int) {
		for _, n := range nodes {
			descend := fn(n, depth)
			if l, ok := n.(*ForLoop); ok && descend {
				walk(l.Body.nodes, depth+1)
			}
		}
	}
	walk(blk.nodes, 0)
}

// LoopIndices returns the distinct index names of the loops in f that
// run at least once, in first use order. Loops nested in a zero-trip
// loop never run either.
func LoopIndices(f *Function) []string {
	var out []string
	seen := map[string]bool{}
	Walk(&f.body, func(n Node, _ int) bool {
		l, ok := n.(*ForLoop)
		if !ok {
			return true
		}
		if l.Trips() <= 0 {
			return false
		}
		if !seen[l.Index.name] {
			seen[l.Index.name] = true
			out = append(out, l.Index.name)
		}
		return true
	})
	return out
}
