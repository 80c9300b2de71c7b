package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrUnreadableFile    = errors.New("unreadable file")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrStrategyTimeout   = errors.New("strategy timed out")
	ErrCancelled         = errors.New("research cancelled")
	ErrReportNotFound    = errors.New("report not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// InvalidConfig builds a 400-class error wrapping ErrInvalidConfig.
func InvalidConfig(format string, args ...any) *AppError {
	return Newf(ErrInvalidConfig, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStrategyTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
