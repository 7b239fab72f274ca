package problem

import (
	"fmt"
	"math"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrDimension       = "E101" // horizon and dimensions must be positive
	ErrNegativeNOD     = "E102" // auxiliary-data dimension must be >= 0
	ErrMissingBlock    = "E103" // weighting or Jacobian block is required
	ErrBlockShape      = "E104" // block literal has the wrong shape or ragged rows
	ErrBoundLength     = "E105" // bound vector or stage count mismatch
	ErrBoundOrder      = "E106" // lower bound exceeds upper bound
	ErrNegativeLM      = "E107" // Levenberg-Marquardt scalar must be >= 0
	ErrNonFinite       = "E108" // NaN or Inf in a literal
	ErrVariableWeights = "E109" // per-stage weighting needs a runtime weight
)

// ValidationError is one descriptor problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Compile when Validate reports anything.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(errs), strings.Join(msgs, "; "))
}

// Validate checks a descriptor and returns every problem found.
func Validate(d *Descriptor) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	dims := []struct {
		field string
		v     int
	}{
		{"horizon", d.Horizon}, {"nx", d.NX}, {"nu", d.NU}, {"ny", d.NY}, {"nyn", d.NYN},
	}
	dimsOK := true
	for _, dim := range dims {
		if dim.v <= 0 {
			add(dim.field, ErrDimension, "must be positive, got %d", dim.v)
			dimsOK = false
		}
	}
	if d.NOD < 0 {
		add("nod", ErrNegativeNOD, "must be >= 0, got %d", d.NOD)
	}
	if d.LevenbergMarquardt < 0 || math.IsNaN(d.LevenbergMarquardt) || math.IsInf(d.LevenbergMarquardt, 0) {
		add("levenberg_marquardt", ErrNegativeLM, "must be a finite value >= 0, got %v", d.LevenbergMarquardt)
	}

	blocks := []struct {
		field      string
		m          *Matrix
		rows, cols int
		optional   bool
	}{
		{"weight", d.Weight, d.NY, d.NY, false},
		{"weight_n", d.WeightN, d.NYN, d.NYN, false},
		{"jx", d.Jx, d.NY, d.NX, false},
		{"ju", d.Ju, d.NY, d.NU, false},
		{"jx_n", d.JxN, d.NYN, d.NX, false},
		{"cross", d.Cross, d.NX, d.NU, true},
	}
	for _, blk := range blocks {
		switch {
		case blk.m == nil:
			if !blk.optional {
				add(blk.field, ErrMissingBlock, "required (a list of rows or %q)", Variable)
			}
		case blk.m.Variable:
		default:
			r, c, ok := blk.m.Dims()
			if !ok {
				add(blk.field, ErrBlockShape, "rows must be non-empty and of equal length")
				continue
			}
			if dimsOK && (r != blk.rows || c != blk.cols) {
				add(blk.field, ErrBlockShape, "want %dx%d, got %dx%d", blk.rows, blk.cols, r, c)
			}
			if !finiteRows(blk.m.Rows) {
				add(blk.field, ErrNonFinite, "contains NaN or Inf")
			}
		}
	}
	if d.VariableWeighting && d.Weight != nil && !d.Weight.Variable {
		add("weight", ErrVariableWeights, "variable_weighting requires weight: %s", Variable)
	}

	if dimsOK {
		errs = append(errs, validateBox("bounds.state", d.Bounds.State, d.NX, d.Horizon+1)...)
		errs = append(errs, validateBox("bounds.control", d.Bounds.Control, d.NU, d.Horizon)...)
	}
	return errs
}

func validateBox(field string, box *BoxSpec, width, stages int) []ValidationError {
	if box == nil {
		return nil
	}
	var errs []ValidationError
	add := func(f, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: f, Code: code, Message: fmt.Sprintf(format, args...)})
	}
	pair := func(f string, lower, upper []float64) {
		if lower != nil && len(lower) != width {
			add(f+".lower", ErrBoundLength, "want %d entries, got %d", width, len(lower))
			return
		}
		if upper != nil && len(upper) != width {
			add(f+".upper", ErrBoundLength, "want %d entries, got %d", width, len(upper))
			return
		}
		if !finiteRows([][]float64{lower, upper}) {
			add(f, ErrNonFinite, "contains NaN or Inf")
			return
		}
		for i := 0; lower != nil && upper != nil && i < width; i++ {
			if lower[i] > upper[i] {
				add(fmt.Sprintf("%s[%d]", f, i), ErrBoundOrder, "lower %v exceeds upper %v", lower[i], upper[i])
			}
		}
	}
	if len(box.Stages) > 0 {
		if len(box.Stages) != stages {
			add(field+".stages", ErrBoundLength, "want %d stages, got %d", stages, len(box.Stages))
			return errs
		}
		for k, s := range box.Stages {
			pair(fmt.Sprintf("%s.stages[%d]", field, k), s.Lower, s.Upper)
		}
		return errs
	}
	pair(field, box.Lower, box.Upper)
	return errs
}

func finiteRows(rows [][]float64) bool {
	for _, r := range rows {
		for _, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
