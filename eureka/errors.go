package eureka

import "fmt"

// Error is the catch-all failure kind: anything that doesn't fit one of the
// more specific kinds below.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds a catch-all Error from a format string.
func NewError(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// ParamError reports an invalid argument or configuration value.
type ParamError struct {
	Message string
}

func (e *ParamError) Error() string { return "param error: " + e.Message }

// NewParamError builds a ParamError from a format string.
func NewParamError(format string, args ...interface{}) *ParamError {
	return &ParamError{Message: fmt.Sprintf(format, args...)}
}

// NetError reports a transport-layer failure: dial/read/write error, or a
// cancelled in-flight request.
type NetError struct {
	Message string
}

func (e *NetError) Error() string { return "net error: " + e.Message }

// NewNetError builds a NetError from a format string.
func NewNetError(format string, args ...interface{}) *NetError {
	return &NetError{Message: fmt.Sprintf(format, args...)}
}

// FormatError reports a JSON body that didn't parse into the expected shape.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string { return "format error: " + e.Message }

// NewFormatError builds a FormatError from a format string.
func NewFormatError(format string, args ...interface{}) *FormatError {
	return &FormatError{Message: fmt.Sprintf(format, args...)}
}

// OperationAborted reports a request that was cancelled by a Stop().
type OperationAborted struct{}

func (OperationAborted) Error() string { return "operation aborted" }

// BadStatus reports a non-2xx HTTP response that the retry policy decided
// was definitive (4xx) or that a handle's RequestRespData rejected.
type BadStatus struct {
	Code    int
	Message string
}

func (e *BadStatus) Error() string { return fmt.Sprintf("%s(%d)", e.Message, e.Code) }

// NewBadStatus builds a BadStatus for the given HTTP status code.
func NewBadStatus(code int, message string) *BadStatus {
	return &BadStatus{Code: code, Message: message}
}

// NotFoundError is the fixed-shape 404 variant of BadStatus.
type NotFoundError struct {
	*BadStatus
}

// NewNotFoundError builds the 404 variant of BadStatus.
func NewNotFoundError() *NotFoundError {
	return &NotFoundError{BadStatus: &BadStatus{Code: 404, Message: "Not Found"}}
}

// Unwrap lets errors.As(err, &badStatus) match a NotFoundError too.
func (e *NotFoundError) Unwrap() error { return e.BadStatus }

// classifyStatus turns a non-2xx HTTP status into the error kind a caller
// should see: a NotFoundError for 404, a BadStatus otherwise.
func classifyStatus(code int, message string) error {
	if code == 404 {
		return NewNotFoundError()
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", code)
	}
	return NewBadStatus(code, message)
}
