package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger

	// output lets Initialize redirect component loggers created at package init time
	output = &switchWriter{w: newConsoleWriter(os.Stdout)}
)

func init() {
	Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
}

type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}
}

// Initialize sets the global level and output format ("console" or "json").
func Initialize(logLevel string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "json" {
		output.set(os.Stdout)
	} else {
		output.set(newConsoleWriter(os.Stdout))
	}

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Replace standard log with zerolog
	log.Logger = Logger
}

// SetOutput redirects every logger, including component loggers, to w.
func SetOutput(w io.Writer) {
	output.set(w)
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// AttachFile copies every log line to the file at path in JSON form, alongside the
// configured output.
func AttachFile(path string) error {
	fw, err := FileWriter(path)
	if err != nil {
		return err
	}
	output.mu.Lock()
	defer output.mu.Unlock()
	output.w = zerolog.MultiLevelWriter(output.w, fw)
	return nil
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return file, nil
}
