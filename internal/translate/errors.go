package translate

import "fmt"

// InputError is a client-side request defect. It is returned
// synchronously, never dispatched upstream, and never touches a
// credential's health.
type InputError struct {
	Code    string
	Message string
}

func (e *InputError) Error() string { return e.Message }

func inputErrorf(code, format string, args ...interface{}) *InputError {
	return &InputError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrEmptyMessages = &InputError{Code: "empty_messages", Message: "messages must contain at least one entry"}
)
