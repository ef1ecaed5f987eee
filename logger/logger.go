// Package logger provides leveled logging with key/value context pairs,
// console output, and size-rotated log files.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
)

var levelNames = map[Level]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
}

// Entry is a single log record.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]interface{}
}

// Logger writes leveled messages to the console and, when a directory is
// configured, to a rotating log file.
type Logger struct {
	mu            sync.Mutex
	level         Level
	logDir        string
	currentFile   *os.File
	currentPath   string
	maxFileSizeMB int
	maxFiles      int
	consoleOutput bool
}

// New creates a Logger. An empty logDir disables file output.
func New(level Level, logDir string) *Logger {
	return &Logger{
		level:         level,
		logDir:        logDir,
		maxFileSizeMB: 20,
		maxFiles:      5,
		consoleOutput: true,
	}
}

// SetConsoleOutput enables or disables console output.
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleOutput = enabled
}

// SetLevel changes the current log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Error logs an error level message.
func (l *Logger) Error(msg string, context ...interface{}) {
	l.log(ERROR, msg, context...)
}

// Warn logs a warning level message.
func (l *Logger) Warn(msg string, context ...interface{}) {
	l.log(WARN, msg, context...)
}

// Info logs an info level message.
func (l *Logger) Info(msg string, context ...interface{}) {
	l.log(INFO, msg, context...)
}

// Debug logs a debug level message.
func (l *Logger) Debug(msg string, context ...interface{}) {
	l.log(DEBUG, msg, context...)
}

func (l *Logger) log(level Level, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ctx := make(map[string]interface{})
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Context:   ctx,
	}

	line := formatEntry(entry)
	if l.consoleOutput {
		fmt.Println(line)
	}
	if l.logDir != "" {
		l.writeToFile(line)
	}
}

func formatEntry(entry Entry) string {
	line := fmt.Sprintf("%s [%s] %s",
		entry.Timestamp.Format("2006-01-02T15:04:05-07:00"),
		levelNames[entry.Level],
		entry.Message,
	)
	for k, v := range entry.Context {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return line
}

func (l *Logger) writeToFile(line string) {
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return
	}

	if l.currentFile == nil {
		path := filepath.Join(l.logDir, "updater.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		l.currentFile = f
		l.currentPath = path
	}

	l.currentFile.WriteString(line + "\n")

	if l.shouldRotate() {
		l.rotate()
	}
}

func (l *Logger) shouldRotate() bool {
	if l.currentFile == nil || l.maxFileSizeMB <= 0 {
		return false
	}
	stat, err := l.currentFile.Stat()
	if err != nil {
		return false
	}
	return stat.Size() >= int64(l.maxFileSizeMB)*1024*1024
}

func (l *Logger) rotate() {
	if l.currentFile != nil {
		l.currentFile.Close()
		l.currentFile = nil

		if l.currentPath != "" {
			stamp := time.Now().Format("20060102_150405")
			os.Rename(l.currentPath, filepath.Join(l.logDir, fmt.Sprintf("updater_%s.log", stamp)))
		}
	}
	l.cleanOldFiles()
}

func (l *Logger) cleanOldFiles() {
	if l.maxFiles <= 0 {
		return
	}
	files, err := filepath.Glob(filepath.Join(l.logDir, "updater_*.log"))
	if err != nil || len(files) <= l.maxFiles {
		return
	}
	// Glob results are sorted, and the timestamp suffix sorts oldest first.
	for _, file := range files[:len(files)-l.maxFiles] {
		os.Remove(file)
	}
}

// Close closes the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// LevelFromString converts a string to a Level, defaulting to INFO.
func LevelFromString(s string) Level {
	switch s {
	case "ERROR":
		return ERROR
	case "WARN":
		return WARN
	case "INFO":
		return INFO
	case "DEBUG":
		return DEBUG
	default:
		return INFO
	}
}
