// Package logging provides a lock-protected, file-backed structured
// key-value logger: one process opens one timestamped log file, writes
// are serialized through a mutex, and a write failure falls back to
// stderr instead of panicking.
//
// The control core logs every state transition, guard commit/rollback,
// and scheduler step through this logger rather than the bare stdlib
// "log" package.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger is a thread-safe file logger.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// New opens (creating if necessary) a log file named
// "enosectl-<YYYY-MM-DD-HH-MM>.log" in dir. Pass "" for the current
// directory.
func New(dir string) (*Logger, error) {
	timestamp := time.Now().Format("2006-01-02-15-04")
	name := fmt.Sprintf("enosectl-%s.log", timestamp)
	if dir != "" {
		name = dir + string(os.PathSeparator) + name
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{file: f}
	l.write("INFO", "logger initialized", "file", name)
	return l, nil
}

// Info logs an informational line.
func (l *Logger) Info(msg string, keyvals ...any) { l.write("INFO", msg, keyvals...) }

// Warn logs a warning line.
func (l *Logger) Warn(msg string, keyvals ...any) { l.write("WARN", msg, keyvals...) }

// Error logs an error line.
func (l *Logger) Error(msg string, keyvals ...any) { l.write("ERROR", msg, keyvals...) }

// Debug logs a debug line.
func (l *Logger) Debug(msg string, keyvals ...any) { l.write("DEBUG", msg, keyvals...) }

func (l *Logger) write(level, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("2006-01-02 15:04:05"), level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	line += "\n"

	if _, err := l.file.WriteString(line); err != nil {
		fmt.Fprint(os.Stderr, line)
		fmt.Fprintf(os.Stderr, "[logger write failed: %v]\n", err)
		return
	}
	_ = l.file.Sync()
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Nop returns a Logger that discards everything, useful for tests.
func Nop() *Logger {
	return &Logger{}
}
