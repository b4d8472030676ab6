package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads, decodes and validates the scenario at path. Validation
// problems are returned as a *DiagnosticError.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes data in the format implied by path and validates it. An
// unnamed scenario is named after the file.
func Parse(data []byte, path string) (*Scenario, error) {
	sc, err := Decode(data, DetectFormat(path))
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = nameFromPath(path)
	}
	if diags := Validate(sc); HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return sc, nil
}

// Decode decodes data without validating it. Unknown fields are rejected.
func Decode(data []byte, format Format) (*Scenario, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		data = converted
	}
	sc := NewScenario()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return sc, nil
}

// ReadFile decodes the scenario at path and returns it with every
// diagnostic, warnings included. The error is only set when the file cannot
// be read or decoded.
func ReadFile(path string) (*Scenario, []Diagnostic, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	sc, err := Decode(jsonData, FormatJSON)
	if err != nil {
		return nil, nil, err
	}
	if sc.Name == "" {
		sc.Name = nameFromPath(path)
	}
	return sc, Validate(sc), nil
}

func nameFromPath(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
