// Package logger provides structured logging for the crawler and the tile
// builder.
//
// It wraps zerolog with a small interface so components can take a Logger
// and tests can swap in a TestLogger:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info", File: "crawl.log"})
//
//	log := logger.GetLogger().WithField("component", "crawler")
//	log.InfoWithFields("Checkpoint saved", map[string]interface{}{
//	    "resolved": 1200,
//	    "errors":   14,
//	})
//
// Console output uses short coloured level tags. When a file is configured
// every record is written to both.
package logger
