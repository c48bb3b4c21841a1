// Package errs defines the tool-error taxonomy shared by handlers, the
// registry, and the scheduler.
package errs

import "fmt"

// Kind classifies a tool error for dispatch purposes: RespondToModel
// kinds become a tool-result with is_error=true and the turn
// continues; Fatal kinds abort the turn.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Permission Kind = "permission"
	Transient  Kind = "transient"
	Timeout    Kind = "timeout"
	Cancelled  Kind = "cancelled"
	Sandbox    Kind = "sandbox"
	System     Kind = "system"
	Protocol   Kind = "protocol"
)

// Fatal reports whether errors of this kind abort the turn rather than
// being returned to the model.
func (k Kind) Fatal() bool {
	switch k {
	case Sandbox, System, Protocol:
		return true
	default:
		return false
	}
}

// ToolError is a typed error a handler raises; the registry inspects
// Kind to decide RespondToModel vs Fatal handling.
type ToolError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// New builds a ToolError of the given kind.
func New(kind Kind, message string) *ToolError {
	return &ToolError{Kind: kind, Message: message}
}

// Wrap builds a ToolError of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *ToolError {
	return &ToolError{Kind: kind, Message: message, Cause: cause}
}

// Validationf builds a Validation ToolError with a formatted message.
func Validationf(format string, args ...any) *ToolError {
	return New(Validation, fmt.Sprintf(format, args...))
}

// As extracts a *ToolError from err, returning ok=false for plain errors.
func As(err error) (*ToolError, bool) {
	te, ok := err.(*ToolError)
	if ok {
		return te, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}
