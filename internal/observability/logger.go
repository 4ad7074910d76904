// Package observability carries the ambient logging, metrics, health
// and tracing surface: every layer of the endpoint, multiplexer, and
// session handlers logs and counts through this package rather than
// through ad-hoc fmt.Printf or log.Printf calls.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging, narrowed per call site
// via With* methods so a session handler's logger already carries its
// session_id and kind without repeating them at every call.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a structured logger tagging every line with the
// service name, version and host.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", hostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession adds session_id context to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithKind adds the session kind.
func (l *Logger) WithKind(kind string) *Logger {
	return &Logger{logger: l.logger.With().Str("kind", kind).Logger()}
}

// WithPeer adds peer node_id context to the logger.
func (l *Logger) WithPeer(nodeID string) *Logger {
	return &Logger{logger: l.logger.With().Str("peer_id", nodeID).Logger()}
}

// WithFile adds file context to the logger.
func (l *Logger) WithFile(path string, size int64) *Logger {
	return &Logger{logger: l.logger.With().Str("file_path", path).Int64("file_size", size).Logger()}
}

func (l *Logger) Debug(msg string)            { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)             { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)             { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs err at fatal level and exits the process with status 1,
// for unrecoverable startup failures in cmd/kerr.
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// ConnectionEstablished logs a confirmed inbound or outbound connection.
func (l *Logger) ConnectionEstablished(remoteAddr, peerNodeID string) {
	l.logger.Info().
		Str("remote_addr", remoteAddr).
		Str("peer_id", peerNodeID).
		Msg("quic connection established")
}

// ConnectionFailed logs a dial or accept failure.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().Str("remote_addr", remoteAddr).Err(err).Msg("quic connection failed")
}

// SessionStarted logs a session handler taking ownership of a stream.
func (l *Logger) SessionStarted(sessionID, kind string) {
	l.logger.Info().Str("session_id", sessionID).Str("kind", kind).Msg("session started")
}

// SessionEnded logs a session handler returning, successfully or not.
func (l *Logger) SessionEnded(sessionID, kind string, err error) {
	ev := l.logger.Info()
	if err != nil {
		ev = l.logger.Warn().Err(err)
	}
	ev.Str("session_id", sessionID).Str("kind", kind).Msg("session ended")
}

// TransferProgress logs file-transfer progress at debug level; the CLI
// progress bar is driven by the callback hook, not by log lines.
func (l *Logger) TransferProgress(sessionID string, transferred, total int64, elapsed time.Duration) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Int64("bytes_transferred", transferred).
		Int64("bytes_total", total).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("transfer progress")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
