// Package logging mirrors pipeline output to the console and to a log file
// under .ddk-release/logs so a failed run can be inspected after the fact.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogDirName is the directory created inside the project for run logs.
const LogDirName = ".ddk-release"

var (
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	plainStyle   = lipgloss.NewStyle()
)

// Logger writes timestamped lines to the log file and styled lines to the
// console writer.
type Logger struct {
	file    *os.File
	console io.Writer
	noColor bool
}

// Option customizes the logger.
type Option func(*Logger)

// WithConsole redirects console output (tests).
func WithConsole(w io.Writer) Option {
	return func(l *Logger) {
		if w != nil {
			l.console = w
		}
	}
}

// WithoutColor disables lipgloss styling on the console stream.
func WithoutColor() Option {
	return func(l *Logger) {
		l.noColor = true
	}
}

// New creates (or reuses) the log file for the given project directory.
func New(projectDir string, opts ...Option) (*Logger, error) {
	logDir := filepath.Join(projectDir, LogDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "release.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	logger := &Logger{file: f, console: os.Stderr}
	for _, opt := range opts {
		opt(logger)
	}
	return logger, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes an unstyled line to both sinks.
func (l *Logger) Printf(format string, args ...any) {
	l.emit(plainStyle, "", format, args...)
}

// Detailf writes a dimmed line, used for command echo and pass-through output.
func (l *Logger) Detailf(format string, args ...any) {
	l.emit(detailStyle, "", format, args...)
}

// Stagef announces a pipeline stage transition.
func (l *Logger) Stagef(format string, args ...any) {
	l.emit(stageStyle, "==> ", format, args...)
}

// Warnf records a non-fatal problem. The run continues.
func (l *Logger) Warnf(format string, args ...any) {
	l.emit(warnStyle, "warning: ", format, args...)
}

// Errorf records a fatal problem.
func (l *Logger) Errorf(format string, args ...any) {
	l.emit(errorStyle, "error: ", format, args...)
}

// Successf records run completion.
func (l *Logger) Successf(format string, args ...any) {
	l.emit(successStyle, "", format, args...)
}

// Checklist prints a titled list of manual remediation steps.
func (l *Logger) Checklist(title string, items []string) {
	l.Errorf("%s", title)
	for _, item := range items {
		l.emit(detailStyle, "  - ", "%s", item)
	}
}

func (l *Logger) emit(style lipgloss.Style, prefix, format string, args ...any) {
	if l == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	if l.file != nil {
		timestamp := time.Now().Format(time.RFC3339)
		fmt.Fprintf(l.file, "[%s] %s%s\n", timestamp, prefix, line)
	}
	if l.console != nil {
		rendered := prefix + line
		if !l.noColor {
			rendered = style.Render(prefix + line)
		}
		fmt.Fprintln(l.console, rendered)
	}
}
