// Package logger provides a thin factory around log/slog plus attribute
// constructors shared across the toolkit.
//
// New builds a *slog.Logger from functional options (format, level, output,
// static attributes). Attribute helpers in attr.go keep key naming consistent
// and make sure sensitive values (phone numbers, fingerprints) never reach
// logs in full.
//
//	log := logger.New(
//	    logger.WithService("guestkit"),
//	    logger.WithFormat(logger.FormatText),
//	    logger.WithLevel(slog.LevelDebug),
//	)
//	log.Info("session created", logger.SessionID(id), logger.Fingerprint(hash))
package logger
