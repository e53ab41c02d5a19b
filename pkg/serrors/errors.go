package serrors

import "fmt"

// Error is a coded error. Code is stable and machine-readable, Message is for
// humans, Hint is optional remediation advice.
type Error struct {
	Code    string
	Message string
	Hint    string
}

func NewError(code, message, hint string) *Error {
	return &Error{Code: code, Message: message, Hint: hint}
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
}

// WithCause attaches an underlying error while keeping the code.
func (e *Error) WithCause(cause error) error {
	return &causedError{err: e, cause: cause}
}

type causedError struct {
	err   *Error
	cause error
}

func (c *causedError) Error() string {
	return fmt.Sprintf("%s: %v", c.err.Error(), c.cause)
}

func (c *causedError) Unwrap() []error { return []error{c.err, c.cause} }
