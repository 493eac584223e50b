// Package logging builds the zap loggers used across gitmem.
//
// Loggers write to stderr so command output on stdout stays clean. Field
// values under sensitive keys are replaced before encoding, and an optional
// second core forwards entries to the global OpenTelemetry log provider.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer logging.Sync(logger)
//
// Components accept a *zap.Logger and fall back to zap.NewNop when given nil.
package logging
