package config

import (
	"log"
	"os"
	"path/filepath"
)

// Logger appends timestamped lines to ~/.local/share/chatd/chatd.log. A
// logger whose file could not be opened silently drops everything, so
// logging never takes the program down.
type Logger struct {
	file *os.File
	out  *log.Logger
}

// logFilePath returns the path to the chatd log file.
func logFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatd.log"), nil
}

// LogPath returns the log file path (for tools to read).
func LogPath() string {
	p, err := logFilePath()
	if err != nil {
		return ""
	}
	return p
}

// NewLogger opens the log file for appending.
func NewLogger() *Logger {
	p, err := logFilePath()
	if err != nil {
		return &Logger{}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return &Logger{}
	}
	return &Logger{
		file: f,
		out:  log.New(f, "", log.LstdFlags|log.LUTC),
	}
}

// Printf writes one timestamped log line.
func (l *Logger) Printf(format string, args ...any) {
	if l.out == nil {
		return
	}
	l.out.Printf(format, args...)
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}
