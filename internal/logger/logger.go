// Package logger is the process-wide leveled logger. Messages go either to
// a plain writer (console or a log file) or to a commonlog backend.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

const colorReset = "\033[0m"

// Logger is the main logger instance.
type Logger struct {
	mu          sync.Mutex
	level       Level
	output      io.Writer
	colorEnable bool
	prefix      string

	file     *os.File
	filePath string

	// backend is set when messages are routed through commonlog
	backend commonlog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
	exit          = os.Exit
)

// Init initializes the default logger with the specified level.
func Init(levelStr string) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:       parseLevel(levelStr),
			output:      os.Stderr,
			colorEnable: true,
			prefix:      "",
		}
	})
}

func get() *Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

// SetLevel sets the logging level for the default logger.
func SetLevel(levelStr string) {
	if defaultLogger == nil {
		Init(levelStr)
		return
	}
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLevel(levelStr)
	if l.backend != nil {
		l.backend.SetMaxLevel(commonlogLevel(l.level))
	}
}

// SetOutput sets the output destination for the default logger.
func SetOutput(w io.Writer) {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetColorEnable enables or disables color output.
func SetColorEnable(enable bool) {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorEnable = enable
}

// InitWithFile initializes the default logger to write into a new file
// named after the current time inside dir. Colors are disabled.
func InitWithFile(levelStr, dir string) error {
	Init(levelStr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	name := time.Now().Format("2006-01-02_15-04-05_MST") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
	l.level = parseLevel(levelStr)
	l.file = f
	l.filePath = path
	l.output = f
	l.colorEnable = false
	return nil
}

// UseCommonlog routes all messages through the commonlog backend. An
// empty path logs to stderr.
func UseCommonlog(levelStr, path string) {
	Init(levelStr)
	var p *string
	if path != "" {
		p = &path
	}
	level := parseLevel(levelStr)
	commonlog.Configure(verbosity(level), p)
	backend := commonlog.GetLogger("probecov")
	backend.SetMaxLevel(commonlogLevel(level))

	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.backend = backend
	l.filePath = path
}

// GetLogFilePath returns the current log file, "" when logging to a stream.
func GetLogFilePath() string {
	l := get()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// Close closes the log file, if any, and falls back to stderr.
func Close() {
	if defaultLogger == nil {
		return
	}
	l := defaultLogger
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.closeFile()
		l.output = os.Stderr
	}
}

func (l *Logger) closeFile() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// parseLevel converts a string to a Level.
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// ValidLevel reports whether s names a level.
func ValidLevel(s string) bool {
	switch strings.ToUpper(s) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "FATAL":
		return true
	}
	return false
}

func commonlogLevel(level Level) commonlog.Level {
	switch level {
	case DEBUG:
		return commonlog.Debug
	case INFO:
		return commonlog.Info
	case WARN:
		return commonlog.Warning
	case ERROR:
		return commonlog.Error
	default:
		return commonlog.Critical
	}
}

// verbosity maps a level to commonlog's verbosity scale where 0 is notice.
func verbosity(level Level) int {
	switch level {
	case DEBUG:
		return 2
	case INFO:
		return 1
	case WARN:
		return -1
	case ERROR:
		return -2
	default:
		return -3
	}
}

// log writes a log message if the level is sufficient.
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)

	if l.backend != nil {
		switch level {
		case DEBUG:
			l.backend.Debug(message)
		case INFO:
			l.backend.Info(message)
		case WARN:
			l.backend.Warning(message)
		case ERROR:
			l.backend.Error(message)
		default:
			l.backend.Critical(message)
		}
	} else {
		levelName := levelNames[level]
		var output string
		if l.colorEnable {
			output = fmt.Sprintf("%s[%s]%s %s", levelColors[level], levelName, colorReset, message)
		} else {
			output = fmt.Sprintf("[%s] %s", levelName, message)
		}
		log.New(l.output, l.prefix, log.LstdFlags).Println(output)
	}

	// Exit on FATAL
	if level == FATAL {
		l.closeFile()
		exit(1)
	}
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	get().log(DEBUG, format, args...)
}

// Debugf is an alias for Debug.
func Debugf(format string, args ...interface{}) {
	Debug(format, args...)
}

// Info logs an info message.
func Info(format string, args ...interface{}) {
	get().log(INFO, format, args...)
}

// Infof is an alias for Info.
func Infof(format string, args ...interface{}) {
	Info(format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	get().log(WARN, format, args...)
}

// Warnf is an alias for Warn.
func Warnf(format string, args ...interface{}) {
	Warn(format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	get().log(ERROR, format, args...)
}

// Errorf is an alias for Error.
func Errorf(format string, args ...interface{}) {
	Error(format, args...)
}

// Fatal logs a fatal message and exits the program.
func Fatal(format string, args ...interface{}) {
	get().log(FATAL, format, args...)
}

// Fatalf is an alias for Fatal.
func Fatalf(format string, args ...interface{}) {
	Fatal(format, args...)
}
