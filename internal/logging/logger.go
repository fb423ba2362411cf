// Package logging is the structured, context-aware logger every SafePass
// component takes as a dependency. SlogLogger backs it with log/slog; MaskEmail
// keeps addresses out of log lines.
package logging

import "context"

// Logger takes a message plus alternating key/value args:
//
//	log.Info(ctx, "identity registered", "identity_id", id, "email", MaskEmail(email))
//
// The ctx is handed to the handler so request-scoped attributes can be added.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With binds args to every record of the returned logger.
	With(args ...any) Logger
}

var _ Logger = (*SlogLogger)(nil)
