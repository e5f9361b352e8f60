// Package logging builds the structured loggers used across wshub.
//
// It wraps log/slog so every component logs with the same level and format
// settings:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("websocket listener started", "addr", ":5000")
//
// Components accept a *slog.Logger through an option or setter and fall
// back to Nop() when none is given. Component returns a child logger tagged
// with the component name so registry, transport and admin lines can be told
// apart in aggregated output.
package logging
