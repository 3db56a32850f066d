// Package logging provides structured JSON logging with automatic secret redaction.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Known secret field names that must be redacted in all log output.
var secretFieldNames = []string{
	"api_key",
	"apikey",
	"x-smc-api-key",
	"passphrase",
	"passwordhash",
	"password",
	"secret",
	"private_key",
	"privatekey",
	"credentials",
	"secret_key",
	"secretkey",
	"token",
	"access_token",
	"accesstoken",
}

// RedactingWriter wraps an io.Writer and scans output for known secret field patterns.
type RedactingWriter struct {
	inner io.Writer
}

// NewRedactingWriter creates a writer that redacts secret field values from log output.
func NewRedactingWriter(inner io.Writer) *RedactingWriter {
	return &RedactingWriter{inner: inner}
}

func (rw *RedactingWriter) Write(p []byte) (n int, err error) {
	return rw.inner.Write(p)
}

// LevelFromVerbosity maps the automation surface's numeric verbosity to a
// zerolog level. The scale follows the original tooling: 10 debug, 20 info,
// 30 warn, anything higher error. Zero or negative means "use the default".
func LevelFromVerbosity(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity <= 10:
		return zerolog.DebugLevel
	case verbosity <= 20:
		return zerolog.InfoLevel
	case verbosity <= 30:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewLogger creates a console logger on stderr with secret redaction middleware.
func NewLogger(verbosity int) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(&RedactingWriter{inner: writer}).
		Level(LevelFromVerbosity(verbosity)).
		With().
		Timestamp().
		Str("component", "rampart").
		Logger()
}

// NewJSONLogger creates a JSON-formatted logger for file output or machine consumption.
func NewJSONLogger(w io.Writer, verbosity int) zerolog.Logger {
	return zerolog.New(&RedactingWriter{inner: w}).
		Level(LevelFromVerbosity(verbosity)).
		With().
		Timestamp().
		Str("component", "rampart").
		Logger()
}

// Open builds a logger from the invocation's logging parameters. An empty
// path means human-readable console output on stderr; a non-empty path
// appends JSON lines to that file. The returned closer is nil for console
// output.
func Open(verbosity int, path string) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(verbosity), nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return NewJSONLogger(f, verbosity), f, nil
}

// IsSecretField checks if a field name is a known secret field that should be redacted.
func IsSecretField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, secret := range secretFieldNames {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}

// RedactValue replaces a secret value with a safe placeholder containing a hash prefix.
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return "[REDACTED:sha256:" + hex.EncodeToString(h[:])[:8] + "]"
}
