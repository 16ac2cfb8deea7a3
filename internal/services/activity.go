package services

import (
	"context"

	"github.com/rs/zerolog"
)

// ActivityLogger is the optional audit sink. Record must never fail the
// calling mutation.
type ActivityLogger interface {
	Record(ctx context.Context, userID int64, action string, fields map[string]interface{})
}

// NoopActivityLogger is the disabled variant.
type NoopActivityLogger struct{}

func (NoopActivityLogger) Record(ctx context.Context, userID int64, action string, fields map[string]interface{}) {
}

type logActivityLogger struct {
	log zerolog.Logger
}

func NewActivityLogger(log zerolog.Logger) *logActivityLogger {
	return &logActivityLogger{log: log.With().Str("component", "activity").Logger()}
}

func (al *logActivityLogger) Record(ctx context.Context, userID int64, action string, fields map[string]interface{}) {
	al.log.Info().Int64("user_id", userID).Str("action", action).Fields(fields).Msg("activity")
}
