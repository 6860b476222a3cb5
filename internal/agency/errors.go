package agency

import "fmt"

const (
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return 400
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	default:
		return 500
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}

func NewInvalidInputError(message string) error {
	return newError(CodeInvalidInput, message)
}

func NewValidationJSONError(err error) error {
	return newError(CodeInvalidInput, "invalid json: "+err.Error())
}

func NewInternalError(message string) error {
	return newError(CodeInternal, message)
}
