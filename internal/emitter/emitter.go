package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rtigen/internal/ir"
)

const banner = "/* This file was generated by rtigen. Do not edit. */"

// Output is the emitted program.
type Output struct {
	HeaderName string // <prefix>_solver.h
	SourceName string // <prefix>_solver.c
	Header     []byte
	Source     []byte
}

// EmitError reports a program the emitter cannot render.
type EmitError struct {
	Function string
	Message  string
}

func (e *EmitError) Error() string {
	if e.Function == "" {
		return "emit: " + e.Message
	}
	return fmt.Sprintf("emit %s: %s", e.Function, e.Message)
}

type emitter struct {
	p    *ir.Program
	opts Options

	varsType, varsName string
	workType, workName string

	params   map[*ir.Operand]bool
	exported map[*ir.Function]bool
	readOnly map[*ir.Function][]bool
	used     map[*ir.Operand]bool // constants referenced by name

	fn  string // function being emitted, for errors
	err error
}

// Emit renders p. It fails when the program is nil, the prefix is empty
// or an expression cannot be addressed.
func Emit(p *ir.Program, opts ...Option) (*Output, error) {
	if p == nil {
		return nil, &EmitError{Message: "nil program"}
	}
	o := Options{Prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Prefix == "" {
		return nil, &EmitError{Message: "empty symbol prefix"}
	}

	e := &emitter{
		p:        p,
		opts:     o,
		varsType: o.Prefix + "Variables",
		varsName: o.Prefix + "Vars",
		workType: o.Prefix + "Workspace",
		workName: o.Prefix + "Work",
		params:   make(map[*ir.Operand]bool),
		exported: make(map[*ir.Function]bool),
		readOnly: make(map[*ir.Function][]bool),
		used:     make(map[*ir.Operand]bool),
	}
	for _, f := range p.Functions {
		for _, prm := range f.Params() {
			if op, ok := prm.(*ir.Operand); ok {
				e.params[op] = true
			}
		}
	}
	for _, f := range p.Exported {
		e.exported[f] = true
	}

	out := &Output{
		HeaderName: o.Prefix + "_solver.h",
		SourceName: o.Prefix + "_solver.c",
	}
	out.Header = e.header()
	out.Source = e.source(out.HeaderName)
	if e.err != nil {
		return nil, e.err
	}
	return out, nil
}

func (e *emitter) fail(msg string, args ...any) {
	if e.err == nil {
		e.err = &EmitError{Function: e.fn, Message: fmt.Sprintf(msg, args...)}
	}
}

// writer accumulates indented lines.
type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) line(s string) {
	if s != "" {
		w.sb.WriteString(strings.Repeat("\t", w.depth))
		w.sb.WriteString(s)
	}
	w.sb.WriteByte('\n')
}

func (w *writer) doc(s string) {
	if s == "" {
		return
	}
	w.line("/** " + comment(s) + " */")
}

// comment normalizes doc text for a C block comment.
func comment(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "*/", "* /")
}

func (e *emitter) header() []byte {
	guard := strings.ToUpper(e.opts.Prefix) + "_SOLVER_H"
	vars := e.p.Class(ir.StorageInterface)
	work := e.p.Class(ir.StorageWorkspace)

	w := &writer{}
	w.line(banner)
	w.line("")
	w.line("#ifndef " + guard)
	w.line("#define " + guard)
	w.line("")
	w.line("typedef double real_t;")
	structDecl(w, "Interface inputs.", e.varsType, vars)
	structDecl(w, "Persistent workspace.", e.workType, work)
	if len(vars) > 0 || len(work) > 0 {
		w.line("")
		if len(vars) > 0 {
			w.line("extern " + e.varsType + " " + e.varsName + ";")
		}
		if len(work) > 0 {
			w.line("extern " + e.workType + " " + e.workName + ";")
		}
	}
	for _, f := range e.p.Exported {
		w.line("")
		w.doc(f.Doc())
		w.line(e.signature(f) + ";")
	}
	w.line("")
	w.line("#endif /* " + guard + " */")
	return []byte(w.sb.String())
}

func structDecl(w *writer, doc, name string, ops []*ir.Operand) {
	if len(ops) == 0 {
		return
	}
	w.line("")
	w.doc(doc)
	w.line("typedef struct " + name + "_")
	w.line("{")
	w.depth++
	for _, op := range ops {
		w.doc(op.Doc())
		w.line(fmt.Sprintf("%s %s[%d];", scalarType(op.Type()), op.Name(), op.Shape().Len()))
	}
	w.depth--
	w.line("} " + name + ";")
}

// source renders the definitions. Functions are rendered first so that
// only the constants they reference get declared.
func (e *emitter) source(headerName string) []byte {
	vars := e.p.Class(ir.StorageInterface)
	work := e.p.Class(ir.StorageWorkspace)

	defs := &writer{}
	for _, f := range e.p.Functions {
		defs.line("")
		e.function(defs, f)
	}
	var consts []*ir.Operand
	for _, op := range e.p.Class(ir.StorageConstant) {
		if e.used[op] {
			consts = append(consts, op)
		}
	}

	w := &writer{}
	w.line(banner)
	w.line("")
	w.line(`#include "` + headerName + `"`)
	if len(vars) > 0 || len(work) > 0 {
		w.line("")
		if len(vars) > 0 {
			w.line(e.varsType + " " + e.varsName + ";")
		}
		if len(work) > 0 {
			w.line(e.workType + " " + e.workName + ";")
		}
	}
	if len(e.p.Externs) > 0 {
		w.line("")
		for _, ext := range e.p.Externs {
			w.doc(ext.Doc)
			w.line(externSignature(ext) + ";")
		}
	}
	if len(consts) > 0 {
		w.line("")
		for _, op := range consts {
			w.line(constDecl(op))
		}
	}
	w.sb.WriteString(defs.sb.String())
	return []byte(w.sb.String())
}

func scalarType(t ir.ScalarType) string {
	switch t {
	case ir.Int:
		return "int"
	case ir.Real:
		return "real_t"
	default:
		return "void"
	}
}

func externSignature(ext *ir.Extern) string {
	params := make([]string, len(ext.Params))
	for i, p := range ext.Params {
		var t string
		switch p.Kind {
		case ir.KindIntValue:
			t = "int "
		case ir.KindUintValue:
			t = "unsigned "
		case ir.KindRealPtr:
			t = "real_t* "
		case ir.KindRealConstPtr:
			t = "const real_t* "
		case ir.KindIntPtr:
			t = "int* "
		}
		params[i] = t + p.Name
	}
	return scalarType(ext.Returns) + " " + ext.Name + paramList(params)
}

func paramList(params []string) string {
	if len(params) == 0 {
		return "( void )"
	}
	return "( " + strings.Join(params, ", ") + " )"
}

func constDecl(op *ir.Operand) string {
	m, _ := ir.Given(op)
	r, c := m.Dims()
	vals := make([]string, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			vals = append(vals, formatReal(m.At(i, j)))
		}
	}
	return fmt.Sprintf("static const real_t %s[%d] = { %s };", op.Name(), r*c, strings.Join(vals, ", "))
}

// formatReal renders a literal with full double precision. Negative
// values are parenthesized so they compose with binary operators.
func formatReal(v float64) string {
	if v == 0 {
		v = 0 // -0
	}
	s := strconv.FormatFloat(v, 'e', 16, 64)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}

// symbol returns the C name of a generated function.
func (e *emitter) symbol(f *ir.Function) string {
	return e.opts.Prefix + "_" + f.Name()
}

func (e *emitter) signature(f *ir.Function) string {
	ro := e.paramsReadOnly(f)
	params := f.Params()
	decls := make([]string, len(params))
	for i, p := range params {
		switch x := p.(type) {
		case *ir.Index:
			decls[i] = "int " + x.Name()
		case *ir.Operand:
			if ro[i] {
				decls[i] = "const real_t* " + x.Name()
			} else {
				decls[i] = "real_t* " + x.Name()
			}
		}
	}
	ret := "void"
	if r := f.Return(); r != nil {
		ret = scalarType(r.Type())
	}
	return ret + " " + e.symbol(f) + paramList(decls)
}

// paramsReadOnly reports, per positional parameter, whether f never
// writes through it.
func (e *emitter) paramsReadOnly(f *ir.Function) []bool {
	if ro, ok := e.readOnly[f]; ok {
		return ro
	}
	written := ir.WrittenParams(f)
	ro := make([]bool, len(written))
	for i, p := range f.Params() {
		if _, ok := p.(*ir.Operand); ok {
			ro[i] = !written[i]
		}
	}
	e.readOnly[f] = ro
	return ro
}

func (e *emitter) function(w *writer, f *ir.Function) {
	e.fn = f.Name()
	defer func() { e.fn = "" }()

	w.doc(f.Doc())
	sig := e.signature(f)
	if !e.exported[f] {
		sig = "static " + sig
	}
	w.line(sig)
	w.line("{")
	w.depth++

	body := &writer{depth: w.depth}
	e.block(body, f.Body().Nodes(), map[*ir.Index]int{})
	if r := f.Return(); r != nil {
		body.line("return " + r.Name() + ";")
	}

	declared := 0
	if !e.opts.Unroll {
		for _, name := range ir.LoopIndices(f) {
			w.line("int " + name + ";")
			declared++
		}
	}
	for _, op := range f.Locals() {
		switch {
		case op.Class() == ir.StorageConstant:
			if !e.used[op] {
				continue
			}
			w.line(constDecl(op))
		case op.Shape().IsScalar():
			w.line(scalarType(op.Type()) + " " + op.Name() + ";")
		default:
			w.line(fmt.Sprintf("%s %s[%d];", scalarType(op.Type()), op.Name(), op.Shape().Len()))
		}
		declared++
	}
	if declared > 0 && f.Body().Len() > 0 {
		w.line("")
	}
	w.sb.WriteString(body.sb.String())
	w.depth--
	w.line("}")
}
