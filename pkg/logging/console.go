package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level represents the console logging verbosity level
type Level int

const (
	// LevelQuiet shows only errors, warnings and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows per-capability and per-page progress (default)
	LevelNormal
	// LevelVerbose adds stabilization and checkpoint detail
	LevelVerbose
	// LevelDebug shows every internal step
	LevelDebug
)

// ParseLevel converts a verbosity name to a Level. Unknown names map to LevelNormal.
func ParseLevel(level string) Level {
	switch level {
	case "quiet":
		return LevelQuiet
	case "normal":
		return LevelNormal
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// Console is a leveled, colored logger for CI output. It is safe for
// concurrent use: capabilities and pages log from their own goroutines.
type Console struct {
	level  Level
	mu     sync.Mutex
	writer io.Writer
	color  bool
}

const (
	colorReset     = "\033[0m"
	colorCyan      = "\033[36m"
	colorSalmon    = "\033[38;5;217m"
	colorYellow    = "\033[33m"
	colorGray      = "\033[90m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
	colorBoldWhite = "\033[1;37m"
)

// NewConsole creates a console logger writing to w (os.Stdout when nil).
func NewConsole(level Level, w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{level: level, writer: w, color: w == os.Stdout || w == os.Stderr}
}

func (c *Console) printf(min Level, color, prefix, format string, args ...interface{}) {
	if c.level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		fmt.Fprintf(c.writer, "%s%s%s%s\n", color, prefix, msg, colorReset)
		return
	}
	fmt.Fprintf(c.writer, "%s%s\n", prefix, msg)
}

// Header prints a prominent header message
func (c *Console) Header(message string) {
	if c.level < LevelNormal {
		return
	}
	bar := strings.Repeat("=", 70)
	c.printf(LevelNormal, colorBoldWhite, "", "\n%s\n  %s\n%s", bar, message, bar)
}

// Section prints a section divider
func (c *Console) Section(title string) {
	c.printf(LevelNormal, colorCyan, "▶ ", "%s", title)
}

// Successf prints a success message with checkmark
func (c *Console) Successf(format string, args ...interface{}) {
	c.printf(LevelNormal, colorBoldGreen, "✓ ", format, args...)
}

// Infof prints an informational message
func (c *Console) Infof(format string, args ...interface{}) {
	c.printf(LevelNormal, colorSalmon, "", format, args...)
}

// Warnf prints a warning message
func (c *Console) Warnf(format string, args ...interface{}) {
	c.printf(LevelQuiet, colorYellow, "⚠ Warning: ", format, args...)
}

// Errorf prints an error message
func (c *Console) Errorf(format string, args ...interface{}) {
	c.printf(LevelQuiet, colorBoldRed, "✗ Error: ", format, args...)
}

// Verbosef prints detailed information (only in verbose mode)
func (c *Console) Verbosef(format string, args ...interface{}) {
	c.printf(LevelVerbose, colorGray, "→ ", format, args...)
}

// Debugf prints debug information (only in debug mode)
func (c *Console) Debugf(format string, args ...interface{}) {
	c.printf(LevelDebug, colorGray, "[DEBUG] ", format, args...)
}

type prefixed struct {
	prefix string
	next   Logger
}

// WithPrefix returns a Logger that prepends "[prefix] " to every entry. The
// orchestrator uses the capability name as prefix so interleaved concurrent
// output stays attributable.
func WithPrefix(l Logger, prefix string) Logger {
	return &prefixed{prefix: "[" + prefix + "] ", next: OrDiscard(l)}
}

func (p *prefixed) Debugf(format string, v ...interface{}) { p.next.Debugf(p.prefix+format, v...) }
func (p *prefixed) Infof(format string, v ...interface{})  { p.next.Infof(p.prefix+format, v...) }
func (p *prefixed) Warnf(format string, v ...interface{})  { p.next.Warnf(p.prefix+format, v...) }
func (p *prefixed) Errorf(format string, v ...interface{}) { p.next.Errorf(p.prefix+format, v...) }
