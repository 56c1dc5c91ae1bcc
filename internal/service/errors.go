package service

import "fmt"

// ValidationError marks a malformed or inconsistent confirmation payload.
// Handlers map it to 400; nothing is written before it is raised.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
