// Package logging provides structured logging for apihub.
//
// This package wraps Go's log/slog to produce JSON-formatted logs with
// persistent context attributes. The coordination hub logs only at DEBUG;
// the CLI layers log circuit transitions, rejections, and server lifecycle
// at INFO and above.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context attributes (api, component, arbitrary key-value pairs)
//   - Size-based log rotation with optional gzip compression
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/apihub/apihub.log", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	hubLog := logger.WithComponent("hub").WithAPI("github")
//	hubLog.Warn("circuit opened", "failures", 5)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"circuit opened","component":"hub","api":"github","failures":5}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(path, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Rotated files are named apihub.log.1, apihub.log.2, and so on, where .1 is
// the most recent backup. With compression they become apihub.log.1.gz.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] over a
// bytes.Buffer to assert on entries.
//
// # Configuration
//
//	logging:
//	  level: info
//	  file: ""          # empty writes to stderr
//	  max_size_mb: 10
//	  max_backups: 3
//	  compress: false
package logging
