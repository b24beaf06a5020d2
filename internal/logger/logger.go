package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// log stays silent until one of the Init functions runs, so packages can log
// from tests without any setup.
var log = zerolog.Nop()
var logFile *os.File

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("[%s]", i)
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	return output
}

func setDefaultLevel() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if _, exists := os.LookupEnv("DEBUG"); exists {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func Init() {
	log = zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger()
	setDefaultLevel()
}

// InitFileOnly initializes the logger to write only to a file (for TUI mode)
func InitFileOnly(logDir string) (string, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("collector-sync_%s.log", timestamp))

	var err error
	logFile, err = os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	// JSON lines are easier to grep than console output
	log = zerolog.New(logFile).With().Timestamp().Logger()
	setDefaultLevel()

	Info("Logger initialized in file-only mode: %s", logPath)
	return logPath, nil
}

// Close closes the log file if it's open
func Close() {
	if logFile != nil {
		logFile.Close()
	}
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	log = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// SetLevel overrides the global level; unknown names leave it untouched.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	log.Debug().Msgf(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	log.Info().Msgf(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	log.Warn().Msgf(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	log.Error().Msgf(msg, args...)
}

// TaskError reports a failed submission with the task id as a structured field.
func TaskError(taskID string, err error) {
	log.Error().Str("task", taskID).Err(err).Msg("task error")
}

// Fatal logs a fatal message and exits the program
func Fatal(msg string, args ...interface{}) {
	log.Fatal().Msgf(msg, args...)
}
