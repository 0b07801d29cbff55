// Package logger provides slog attribute helpers with consistent keys for
// delivery-pipeline logging.
//
// All helpers return slog.Attr values with well-known keys so log output
// stays uniform across components. Helpers taking values that can be
// absent (nil errors, empty names) return an empty Attr, which slog
// silently drops:
//
//	log.Info("send failed",
//	    logger.Channel(name),
//	    logger.Error(err), // safe even when err is nil
//	)
package logger
