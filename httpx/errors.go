package httpx

import (
	"fmt"
	"net/http"

	"github.com/fieldscope/vistoria/log"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeForbiddenNoScope Code = "FORBIDDEN_NO_SCOPE"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInternal         Code = "INTERNAL"
)

// Error is the API-visible error shape. Validation errors identify the
// offending question so the client can guide correction.
type Error struct {
	Code          Code   `json:"code"`
	Message       string `json:"message"`
	QuestionID    string `json:"perguntaId,omitempty"`
	QuestionTitle string `json:"pergunta,omitempty"`
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Unauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func ForbiddenNoScope(msg string) *Error {
	return &Error{Code: CodeForbiddenNoScope, Message: msg}
}

func Validation(msg string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(msg, args...)}
}

func ValidationQuestion(id, title, msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, QuestionID: id, QuestionTitle: title}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func Internal(cause error, msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

func (e *Error) Status() int {
	switch e.Code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden, CodeForbiddenNoScope:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RenderError maps any error onto the API error shape. Internal causes are
// logged server-side and only exposed in the body under debug mode.
func RenderError(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	apiErr := &Error{}
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err, "unexpected error")
	}

	if apiErr.Code == CodeInternal {
		log.Errorf("internal: %v", apiErr)
		if !debug {
			apiErr = &Error{Code: CodeInternal, Message: "internal server error"}
		} else {
			apiErr = &Error{Code: CodeInternal, Message: apiErr.Error()}
		}
	} else {
		log.Debugf("request failed: %v", apiErr)
	}

	render.Status(r, apiErr.Status())
	render.JSON(w, r, apiErr)
}
