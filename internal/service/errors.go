package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/repository"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/middleware/requestid"
)

// persistenceFailure logs the storage error with full detail and returns a
// generic error that carries none of it.
func persistenceFailure(ctx context.Context, logger *zap.Logger, operation string, err error, fields ...zap.Field) error {
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.Error(err),
	)
	logger.Error("persistence failure", fields...)
	return appErrors.Clone(appErrors.ErrPersistence, "")
}

// passThrough returns typed domain errors unchanged and reports whether it did.
func passThrough(err error) (*appErrors.Error, bool) {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
