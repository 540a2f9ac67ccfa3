package ocpp

import "fmt"

// Standard OCPP-J error codes carried in CALLERROR frames.
const (
	ErrCodeFormationViolation          = "FormationViolation"
	ErrCodeProtocolError               = "ProtocolError"
	ErrCodeNotSupported                = "NotSupported"
	ErrCodeNotImplemented              = "NotImplemented"
	ErrCodeTypeConstraintViolation     = "TypeConstraintViolation"
	ErrCodePropertyConstraintViolation = "PropertyConstraintViolation"
	ErrCodeSecurityError               = "SecurityError"
	ErrCodeInternalError               = "InternalError"
)

// CallError is a protocol-level failure that maps onto a CALLERROR envelope.
type CallError struct {
	Code        string
	Description string
	Details     map[string]interface{}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewCallError builds a CallError with empty details.
func NewCallError(code, description string) *CallError {
	return &CallError{Code: code, Description: description, Details: map[string]interface{}{}}
}

// NewCallErrorf builds a CallError with a formatted description.
func NewCallErrorf(code, format string, args ...interface{}) *CallError {
	return NewCallError(code, fmt.Sprintf(format, args...))
}
