package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"
)

const (
	// ErrInternalServerError means that an internal server error has occurred.
	ErrInternalServerError = "internal_server_error"
	// ErrBadParameter means that a path parameter is malformed.
	ErrBadParameter = "bad_parameter"
	// ErrNotFound means that no route matched.
	ErrNotFound = "not_found"
)

// APIError is the error body returned to API consumers.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	// Inner is never shown to API consumers.
	Inner error `json:"-"`
}

func NewAPIError(code, message string, inner error) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Inner:   inner,
	}
}

func NewBadParameterError(message string, inner error) *APIError {
	if apiErr := ToAPIError(inner); apiErr != nil {
		return apiErr
	}
	return NewAPIError(ErrBadParameter, message, inner)
}

func (e APIError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	return e.Inner
}

// ToAPIError returns the *APIError in err's chain, or nil.
func ToAPIError(err error) *APIError {
	var e *APIError
	if errors.As(err, &e) {
		return e
	}
	return nil
}

var codeToStatus = map[string]int{
	ErrBadParameter:        http.StatusBadRequest,
	ErrNotFound:            http.StatusNotFound,
	ErrInternalServerError: http.StatusInternalServerError,
}

// ErrResponse is the JSON envelope of every error.
type ErrResponse struct {
	Error *APIError `json:"error,omitempty"`
}

// errorHandler renders handler errors as ErrResponse.
type errorHandler struct {
	logger log.Logger
}

func (h errorHandler) handle(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	apiErr := ToAPIError(err)
	var he *echo.HTTPError
	switch {
	case apiErr != nil:
		status = codeToStatus[apiErr.Code]
		if status == 0 {
			status = http.StatusInternalServerError
		}
	case errors.As(err, &he):
		status = he.Code
		code := ErrInternalServerError
		switch he.Code {
		case http.StatusNotFound:
			code = ErrNotFound
		case http.StatusBadRequest:
			code = ErrBadParameter
		}
		msg, _ := he.Message.(string)
		apiErr = NewAPIError(code, msg, err)
	default:
		status = http.StatusInternalServerError
		apiErr = NewAPIError(ErrInternalServerError, "an internal server error has occurred", err)
	}

	if status >= http.StatusInternalServerError {
		level.Error(h.logger).Log("msg", "HTTP request error", "err", err)
	} else {
		level.Debug(h.logger).Log("msg", "HTTP request error", "err", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, ErrResponse{Error: apiErr})
}
