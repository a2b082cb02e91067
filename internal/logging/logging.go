package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tutorlink/backend/internal/config"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure time format
	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Configure output based on format and environment
	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	// Set global logger
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "tutorlink").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Calculate latency
		latency := time.Since(start)

		// Get request ID
		requestID := c.GetString("request_id")

		// Build log event
		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		// Log request details
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogSessionEvent logs a browser session lifecycle event
func LogSessionEvent(sessionID, userID, status, operation string) {
	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Str("status", status).
		Str("operation", operation).
		Msg("Session event")
}

// LogExtraction logs a completed or failed content extraction
func LogExtraction(sessionID, courseURL string, sections, textLen int, latency time.Duration, err error) {
	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.
		Str("session_id", sessionID).
		Str("course_url", courseURL).
		Int("sections", sections).
		Int("text_len", textLen).
		Dur("latency", latency).
		Msg("Content extraction")
}

// LogReclaim logs an orphan reclamation run
func LogReclaim(dryRun bool, registryOrphans, diskOrphans, failures int, reclaimedBytes int64) {
	log.Info().
		Bool("dry_run", dryRun).
		Int("registry_orphans", registryOrphans).
		Int("disk_orphans", diskOrphans).
		Int("failures", failures).
		Int64("reclaimed_bytes", reclaimedBytes).
		Msg("Orphan reclamation")
}

// LogUpload logs a file upload event
func LogUpload(fileID, userID, category string, size int64, status string) {
	log.Info().
		Str("file_id", fileID).
		Str("user_id", userID).
		Str("category", category).
		Int64("size", size).
		Str("status", status).
		Msg("File upload")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog removes sensitive data from strings for logging
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
