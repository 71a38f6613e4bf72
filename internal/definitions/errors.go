package definitions

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error code constants, unified across the definition tooling.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Definition validation errors
	ErrCodeNoStreams    = "E101" // activity type declares no streams
	ErrCodeInvalidRole  = "E102" // role is not actor/object/target
	ErrCodeInvalidRef   = "E103" // malformed association reference
	ErrCodeInvalidPivot = "E104" // malformed groupBy pivot
)

// CompileError reports one malformed definition, with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadError is a directory- or file-level loading failure, or a compile
// failure converted for uniform reporting.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// mapFieldToErrorCode buckets a compile error field into an error code.
func mapFieldToErrorCode(field string) string {
	switch {
	case field == "streams":
		return ErrCodeNoStreams
	case strings.HasSuffix(field, ".role"):
		return ErrCodeInvalidRole
	case strings.Contains(field, ".router"):
		return ErrCodeInvalidRef
	case strings.HasPrefix(field, "groupBy"):
		return ErrCodeInvalidPivot
	default:
		return ErrCodeGeneric
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
