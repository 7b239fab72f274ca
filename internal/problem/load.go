package problem

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// LoadError reports a descriptor that could not be read or decoded.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	loc := e.Path
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		if e.Path != "" && e.Pos.Filename() != e.Path {
			// Position inside the embedded schema.
			loc = e.Path + ": " + loc
		}
	}
	if loc == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// LoadFile reads a descriptor, choosing the decoder by extension:
// .cue for CUE, .yaml or .yml for YAML.
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("reading descriptor: %v", err)}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(data, path)
	case ".yaml", ".yml":
		d, err := LoadYAML(data)
		if err != nil {
			return nil, &LoadError{Path: path, Message: err.Error()}
		}
		return d, nil
	default:
		return nil, &LoadError{Path: path, Message: "unsupported descriptor extension (want .cue, .yaml or .yml)"}
	}
}

// LoadYAML decodes a YAML descriptor. Unknown fields are rejected.
func LoadYAML(data []byte) (*Descriptor, error) {
	var d Descriptor
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if d.Name == "" {
		d.Name = "rti"
	}
	return &d, nil
}

// LoadCUE compiles a CUE descriptor, unifies its "problem" value with the
// embedded #Problem schema and decodes the result.
func LoadCUE(data []byte, filename string) (*Descriptor, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}
	problemVal := v.LookupPath(cue.ParsePath("problem"))
	if !problemVal.Exists() {
		return nil, &LoadError{Path: filename, Message: `missing top-level field "problem"`}
	}

	unified := schema.LookupPath(cue.ParsePath("#Problem")).Unify(problemVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(filename, err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(filename, err)
	}
	var d Descriptor
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, &LoadError{Path: filename, Message: fmt.Sprintf("decoding problem: %v", err)}
	}
	return &d, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(path string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Path: path, Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Path: path, Message: first.Error()}
}
