package mindb

import "fmt"

// ErrorKind classifies an EngineError per the error taxonomy the command
// layer uses to decide how to report a failure to the caller.
type ErrorKind string

const (
	KindFileSystem          ErrorKind = "FileSystem"
	KindDataFormat          ErrorKind = "DataFormat"
	KindTable               ErrorKind = "Table"
	KindTupleFile           ErrorKind = "TupleFile"
	KindInvalidFilePointer  ErrorKind = "InvalidFilePointer"
	KindTypeCast            ErrorKind = "TypeCast"
	KindDivideByZero        ErrorKind = "DivideByZero"
	KindExpression          ErrorKind = "Expression"
	KindInvalidSQL          ErrorKind = "InvalidSQL"
	KindConstraintViolation ErrorKind = "ConstraintViolation"
	KindExecution           ErrorKind = "Execution"
)

// EngineError wraps a lower-level error with the kind tag spec.md §7
// requires so the command layer can classify failures without string
// matching the message.
type EngineError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewError constructs an EngineError of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError constructs an EngineError of the given kind wrapping err.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AsExecutionError wraps an error that is not already an *EngineError as
// a command-boundary Execution error, the policy spec.md §7 describes for
// translating lower-level failures for the shell (an external
// collaborator here, but the wrapping happens on this side of the
// boundary). An *EngineError is returned unchanged and keeps its kind.
func AsExecutionError(err error) error {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EngineError); ok {
		return ee
	}
	return WrapError(KindExecution, err, "command failed")
}
