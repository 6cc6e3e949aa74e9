// Package logging provides structured logging for the mapper.
//
// This package wraps Go's standard log/slog package so every component logs
// the same way.
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
//	logger.Info("mapping complete", "matched", 12)
//	logger.Error("inventory unavailable", "error", err)
//
// Never log the Home Assistant token, the JWT secret or broker passwords.
package logging
