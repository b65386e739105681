package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	flock_errors "flock-messaging/pkg/errors"
)

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, flock_errors.ErrInvalidInput),
		errors.Is(err, flock_errors.ErrEmptyMessage),
		errors.Is(err, flock_errors.ErrUnsupportedType),
		errors.Is(err, flock_errors.ErrTooLarge):
		return 400
	case errors.Is(err, flock_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, flock_errors.ErrForbidden):
		return 403
	case errors.Is(err, flock_errors.ErrNotFound):
		return 404
	case errors.Is(err, flock_errors.ErrAlreadyExists), errors.Is(err, flock_errors.ErrConflict):
		return 409
	case errors.Is(err, flock_errors.ErrRateLimited):
		return 429
	case errors.Is(err, flock_errors.ErrServiceUnavailable):
		return 503
	default:
		return 500
	}
}
