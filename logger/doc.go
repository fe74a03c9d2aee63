// Package logger is nitai's structured logging on zerolog.
//
// Each package logs through a named logger, so one resource can be
// followed from the request that opened it to the path that released it:
//
//	log := logger.Get("response")
//	log.Debug("resource released", logger.Fields(
//	    logger.FieldResourceID, id,
//	    logger.FieldReleaseVia, "finalizer",
//	))
//
// Output defaults to JSON on stderr at warn level. NITAI_LOG_LEVEL,
// NITAI_LOG_FORMAT and NITAI_LOG_OUTPUT change that, as does Init.
package logger
