package problem

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Variable is the descriptor keyword for a block supplied at runtime.
const Variable = "variable"

// Descriptor is the decoded, unvalidated problem description.
// Field names are shared by the CUE and YAML encodings.
type Descriptor struct {
	Name               string  `json:"name,omitempty" yaml:"name,omitempty"`
	Horizon            int     `json:"horizon" yaml:"horizon"`
	NX                 int     `json:"nx" yaml:"nx"`
	NU                 int     `json:"nu" yaml:"nu"`
	NY                 int     `json:"ny" yaml:"ny"`
	NYN                int     `json:"nyn" yaml:"nyn"`
	NOD                int     `json:"nod,omitempty" yaml:"nod,omitempty"`
	LevenbergMarquardt float64 `json:"levenberg_marquardt,omitempty" yaml:"levenberg_marquardt,omitempty"`
	VariableWeighting  bool    `json:"variable_weighting,omitempty" yaml:"variable_weighting,omitempty"`

	Weight  *Matrix `json:"weight,omitempty" yaml:"weight,omitempty"`
	WeightN *Matrix `json:"weight_n,omitempty" yaml:"weight_n,omitempty"`
	Jx      *Matrix `json:"jx,omitempty" yaml:"jx,omitempty"`
	Ju      *Matrix `json:"ju,omitempty" yaml:"ju,omitempty"`
	JxN     *Matrix `json:"jx_n,omitempty" yaml:"jx_n,omitempty"`
	Cross   *Matrix `json:"cross,omitempty" yaml:"cross,omitempty"`

	Bounds BoundsSpec `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

// BoundsSpec holds the optional state and control box bounds.
type BoundsSpec struct {
	State   *BoxSpec `json:"state,omitempty" yaml:"state,omitempty"`
	Control *BoxSpec `json:"control,omitempty" yaml:"control,omitempty"`
}

// BoxSpec is a box bound applied to every stage, or per stage through
// Stages. Stages takes precedence when both are present.
type BoxSpec struct {
	Lower  []float64  `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper  []float64  `json:"upper,omitempty" yaml:"upper,omitempty"`
	Stages []StageBox `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// StageBox is the box bound of one stage.
type StageBox struct {
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

// Matrix is a descriptor block: either row-major literal rows or the
// keyword "variable".
type Matrix struct {
	Variable bool
	Rows     [][]float64
}

// Dims returns the literal dimensions. Ragged rows report ok=false.
func (m *Matrix) Dims() (rows, cols int, ok bool) {
	if m == nil || m.Variable || len(m.Rows) == 0 {
		return 0, 0, false
	}
	cols = len(m.Rows[0])
	for _, r := range m.Rows {
		if len(r) != cols {
			return len(m.Rows), cols, false
		}
	}
	return len(m.Rows), cols, cols > 0
}

// UnmarshalYAML accepts a sequence of sequences or the keyword.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s != Variable {
			return fmt.Errorf("line %d: matrix must be a list of rows or %q, got %q", node.Line, Variable, s)
		}
		*m = Matrix{Variable: true}
		return nil
	}
	var rows [][]float64
	if err := node.Decode(&rows); err != nil {
		return err
	}
	*m = Matrix{Rows: rows}
	return nil
}

// MarshalYAML writes the same two forms back.
func (m Matrix) MarshalYAML() (any, error) {
	if m.Variable {
		return Variable, nil
	}
	return m.Rows, nil
}

// UnmarshalJSON accepts an array of arrays or the keyword. CUE values are
// decoded through their JSON form.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != Variable {
			return fmt.Errorf("matrix must be a list of rows or %q, got %q", Variable, s)
		}
		*m = Matrix{Variable: true}
		return nil
	}
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	*m = Matrix{Rows: rows}
	return nil
}

// MarshalJSON writes the same two forms back.
func (m Matrix) MarshalJSON() ([]byte, error) {
	if m.Variable {
		return json.Marshal(Variable)
	}
	return json.Marshal(m.Rows)
}
