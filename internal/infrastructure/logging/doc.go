// Package logging provides structured logging for the emulator.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every worker, listener and
// connection.
//
// # Features
//
//   - JSON or text output
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional dated log file (emulator_YYYY-MM-DD.log)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    dir: "./logs"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("listening", "device", "microscope", "port", 5000)
package logging
