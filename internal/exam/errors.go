package exam

import (
	"context"
	"errors"
	"net/http"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	httperrors "github.com/gokatarajesh/exam-engine/pkg/http/errors"
)

// errorCode maps engine and manager errors onto the public error codes and
// the HTTP status used for them.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAlreadyStarted):
		return http.StatusConflict, httperrors.ErrCodeAlreadyStarted
	case errors.Is(err, ErrNotStarted):
		return http.StatusConflict, httperrors.ErrCodeNotStarted
	case errors.Is(err, ErrCompleted):
		return http.StatusConflict, httperrors.ErrCodeExamCompleted
	case errors.Is(err, ErrStaleIntent):
		return http.StatusConflict, httperrors.ErrCodeStaleIntent
	case errors.Is(err, ErrOutOfBounds):
		return http.StatusUnprocessableEntity, httperrors.ErrCodeOutOfBounds
	case errors.Is(err, ErrClosed):
		return http.StatusGone, httperrors.ErrCodeSessionClosed
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, httperrors.ErrCodeSessionNotFound
	case errors.Is(err, ErrLockHeld):
		return http.StatusConflict, httperrors.ErrCodeSessionActive
	case errors.Is(err, ErrMissingCandidate):
		return http.StatusBadRequest, httperrors.ErrCodeMissingCandidate
	case errors.Is(err, catalog.ErrUnknownProfile):
		return http.StatusBadRequest, httperrors.ErrCodeUnknownProfile
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, httperrors.ErrCodeTimeout
	default:
		return http.StatusInternalServerError, httperrors.ErrCodeInternalError
	}
}
