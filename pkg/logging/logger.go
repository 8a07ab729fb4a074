package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging surface every visreg component depends on.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// FileLogger writes timestamped entries for one component to the run's log file
// under ~/.visreg/logs/. Every level is written; filtering is the console
// logger's job.
type FileLogger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

// RunID returns the identifier shared by every log file and report of this process.
func RunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".visreg", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewFileLogger creates a logger for a component writing to
// ~/.visreg/logs/<run-id>-visreg.log.
//
// If the log file cannot be opened it returns a logger writing to stderr
// together with the error, so callers can warn and carry on.
func NewFileLogger(component string) (*FileLogger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := RunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-visreg.log", id))

	// Append mode: components of the same run share the file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &FileLogger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string, err error) *FileLogger {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	logger.Printf("WARNING: Failed to initialize file logging: %v", err)

	return &FileLogger{
		runID:     RunID(),
		component: component,
		logger:    logger,
	}
}

func (l *FileLogger) write(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message
func (l *FileLogger) Debugf(format string, v ...interface{}) { l.write("DEBUG", format, v...) }

// Infof logs an info-level message
func (l *FileLogger) Infof(format string, v ...interface{}) { l.write("INFO", format, v...) }

// Warnf logs a warning-level message
func (l *FileLogger) Warnf(format string, v ...interface{}) { l.write("WARN", format, v...) }

// Errorf logs an error-level message
func (l *FileLogger) Errorf(format string, v ...interface{}) { l.write("ERROR", format, v...) }

// LogPath returns the path to the log file, empty in fallback mode.
func (l *FileLogger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *FileLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

type tee []Logger

// Tee returns a Logger that forwards every entry to each of loggers.
func Tee(loggers ...Logger) Logger {
	return tee(loggers)
}

func (t tee) Debugf(format string, v ...interface{}) {
	for _, l := range t {
		l.Debugf(format, v...)
	}
}

func (t tee) Infof(format string, v ...interface{}) {
	for _, l := range t {
		l.Infof(format, v...)
	}
}

func (t tee) Warnf(format string, v ...interface{}) {
	for _, l := range t {
		l.Warnf(format, v...)
	}
}

func (t tee) Errorf(format string, v ...interface{}) {
	for _, l := range t {
		l.Errorf(format, v...)
	}
}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}

// Discard drops everything. Useful in tests and as a nil-logger default.
var Discard Logger = discard{}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}
