package loader

import "fmt"

// Diagnostic is one problem found while validating a scenario.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "SC-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic codes
const (
	CodeMissingTarget     = "SC-001"
	CodeAmbiguousTarget   = "SC-002"
	CodeIncompleteTarget  = "SC-003"
	CodeInvalidParameters = "SC-010"
	CodeInvalidXGait      = "SC-011"
	CodeInvalidRegion     = "SC-020"
	CodeDuplicateRegionID = "SC-021"
	CodeNoTerrain         = "SC-022"
	CodeStartOffTerrain   = "SC-023"
	CodeInvalidTimeout    = "SC-030"
	CodeInvalidHorizon    = "SC-031"
	CodeHorizonNoTarget   = "SC-032"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := Errors(e.Diagnostics)
	switch len(errs) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	default:
		return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
	}
}

func errorAt(code, path, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Path: path}
}

func warningAt(code, path, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Path: path}
}
