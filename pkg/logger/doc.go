// Package logger provides the structured logging interface used across tumblrsync.
//
// It wraps zerolog behind a small Logger interface so that library packages
// can accept a logger, tests can pass NewNopLogger or NewTestLogger, and the
// CLI can decide where output goes.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("Blog backed up", map[string]interface{}{
//	    "blog":   "staff",
//	    "stored": 42,
//	})
//
// Console output is colourised and written to stderr. When LoggingConfig.File
// is set, JSON lines are appended to that file too.
package logger
