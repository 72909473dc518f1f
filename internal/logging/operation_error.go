package logging

import "fmt"

// OperationError records which operation failed, for which request, and how
// many attempts were made before giving up.
type OperationError struct {
	Operation string
	RequestID string
	Attempts  int
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	msg := e.Operation
	if e.RequestID != "" {
		msg += " [request " + e.RequestID + "]"
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err from a single attempt; a nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	return NewRetriedOperationError(operation, requestID, 1, err)
}

// NewRetriedOperationError wraps the last err of a retry loop.
func NewRetriedOperationError(operation, requestID string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Attempts: attempts, Err: err}
}
