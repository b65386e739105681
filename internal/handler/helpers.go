package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flock-messaging/internal/services"
	"flock-messaging/internal/transport/httpdto"
	flock_errors "flock-messaging/pkg/errors"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// respondError maps a service error onto the response envelope using the
// sentinel error to status translation. The request id set by the
// middleware is echoed so the failure can be matched to a log line.
func respondError(c *gin.Context, err error) {
	body := httpdto.NewErrorResponse(err.Error(), errorCode(err)).
		WithRequestID(c.Writer.Header().Get("X-Request-Id"))
	c.JSON(services.HTTPStatus(err), body)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, flock_errors.ErrEmptyMessage):
		return "EMPTY_MESSAGE"
	case errors.Is(err, flock_errors.ErrUnsupportedType):
		return "UNSUPPORTED_TYPE"
	case errors.Is(err, flock_errors.ErrTooLarge):
		return "TOO_LARGE"
	case errors.Is(err, flock_errors.ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, flock_errors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, flock_errors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, flock_errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, flock_errors.ErrAlreadyExists), errors.Is(err, flock_errors.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, flock_errors.ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "REQUEST_FAILED"
	}
}
