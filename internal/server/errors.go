package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/daily-brief/internal/pipeline"
	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/trace"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrForbidden indicates an authenticated caller asked for another user's data.
type ErrForbidden struct {
	UserID string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("not allowed to access user %s", e.UserID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		forbidden  *ErrForbidden
		storage    *preferences.StorageError
	)
	switch {
	case errors.As(err, &validation),
		errors.Is(err, pipeline.ErrEmptyTopic),
		errors.Is(err, preferences.ErrEmptyUserID):
		return http.StatusBadRequest
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.Is(err, trace.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &storage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
