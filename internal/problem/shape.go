package problem

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/rtigen/internal/ir"
)

// Unbounded is the magnitude used for omitted bounds.
const Unbounded = 1e12

// Block is one weighting or Jacobian block. Given is nil when the block
// is supplied at runtime.
type Block struct {
	Given *mat.Dense
}

// IsGiven reports whether the block is fixed at generation time.
func (b Block) IsGiven() bool { return b.Given != nil }

// IsZero reports whether the block is given and all zero.
func (b Block) IsZero() bool {
	if b.Given == nil {
		return false
	}
	r, c := b.Given.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if b.Given.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// Bounds holds one lower and upper vector per stage.
type Bounds struct {
	Lower [][]float64
	Upper [][]float64
}

// Shape is the compiled, immutable input of one generation run.
type Shape struct {
	Name string

	N   int // horizon
	NX  int
	NU  int
	NY  int
	NYN int
	NOD int

	Weight  Block // NY x NY
	WeightN Block // NYN x NYN
	Jx      Block // NY x NX
	Ju      Block // NY x NU
	JxN     Block // NYN x NX
	Cross   Block // NX x NU, zero when omitted

	LevenbergMarquardt float64
	VariableWeighting  bool

	StateBounds   Bounds // stages 0..N
	ControlBounds Bounds // stages 0..N-1

	descriptor *Descriptor
}

// Compile validates d and builds its Shape.
func Compile(d *Descriptor) (*Shape, error) {
	if errs := Validate(d); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	s := &Shape{
		Name:               d.Name,
		N:                  d.Horizon,
		NX:                 d.NX,
		NU:                 d.NU,
		NY:                 d.NY,
		NYN:                d.NYN,
		NOD:                d.NOD,
		Weight:             block(d.Weight),
		WeightN:            block(d.WeightN),
		Jx:                 block(d.Jx),
		Ju:                 block(d.Ju),
		JxN:                block(d.JxN),
		LevenbergMarquardt: d.LevenbergMarquardt,
		VariableWeighting:  d.VariableWeighting,
		StateBounds:        bounds(d.Bounds.State, d.NX, d.Horizon+1),
		ControlBounds:      bounds(d.Bounds.Control, d.NU, d.Horizon),
		descriptor:         d,
	}
	if s.Name == "" {
		s.Name = "rti"
	}
	if d.Cross == nil {
		s.Cross = Block{Given: mat.NewDense(d.NX, d.NU, nil)}
	} else {
		s.Cross = block(d.Cross)
	}
	return s, nil
}

func block(m *Matrix) Block {
	if m == nil || m.Variable {
		return Block{}
	}
	r, c, _ := m.Dims()
	data := make([]float64, 0, r*c)
	for _, row := range m.Rows {
		data = append(data, row...)
	}
	return Block{Given: mat.NewDense(r, c, data)}
}

func bounds(box *BoxSpec, width, stages int) Bounds {
	fill := func(src []float64, v float64) []float64 {
		out := make([]float64, width)
		if src != nil {
			copy(out, src)
			return out
		}
		for i := range out {
			out[i] = v
		}
		return out
	}
	b := Bounds{Lower: make([][]float64, stages), Upper: make([][]float64, stages)}
	for k := 0; k < stages; k++ {
		var lo, hi []float64
		switch {
		case box == nil:
		case len(box.Stages) > 0:
			lo, hi = box.Stages[k].Lower, box.Stages[k].Upper
		default:
			lo, hi = box.Lower, box.Upper
		}
		b.Lower[k] = fill(lo, -Unbounded)
		b.Upper[k] = fill(hi, Unbounded)
	}
	return b
}

// Hash returns the content hash of the compiled problem. Two descriptors
// that compile to the same Shape hash equally.
func (s *Shape) Hash() (string, error) {
	return ir.DescriptorHash(s.canonical())
}

func (s *Shape) canonical() map[string]any {
	blk := func(b Block) any {
		if !b.IsGiven() {
			return Variable
		}
		r, c := b.Given.Dims()
		rows := make([]any, r)
		for i := 0; i < r; i++ {
			row := make([]any, c)
			for j := 0; j < c; j++ {
				row[j] = b.Given.At(i, j)
			}
			rows[i] = row
		}
		return rows
	}
	bnd := func(b Bounds) any {
		stages := make([]any, len(b.Lower))
		for k := range b.Lower {
			stages[k] = map[string]any{"lower": b.Lower[k], "upper": b.Upper[k]}
		}
		return stages
	}
	return map[string]any{
		"name":                s.Name,
		"horizon":             s.N,
		"nx":                  s.NX,
		"nu":                  s.NU,
		"ny":                  s.NY,
		"nyn":                 s.NYN,
		"nod":                 s.NOD,
		"weight":              blk(s.Weight),
		"weight_n":            blk(s.WeightN),
		"jx":                  blk(s.Jx),
		"ju":                  blk(s.Ju),
		"jx_n":                blk(s.JxN),
		"cross":               blk(s.Cross),
		"levenberg_marquardt": s.LevenbergMarquardt,
		"variable_weighting":  s.VariableWeighting,
		"state_bounds":        bnd(s.StateBounds),
		"control_bounds":      bnd(s.ControlBounds),
	}
}

// Descriptor returns the descriptor the shape was compiled from.
func (s *Shape) Descriptor() *Descriptor { return s.descriptor }
