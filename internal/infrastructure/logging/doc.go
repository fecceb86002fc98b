// Package logging provides structured logging for Gray Logic Motion.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the coordination layer.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("machine").Info("operating mode changed", "mode", "master")
//
// Every coordination package declares its own small Logger interface;
// *Logger satisfies all of them.
package logging
