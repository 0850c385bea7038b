package logger

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes key/value log lines and masks personal and secret values
// (emails, user ids, session tokens, return codes, bank references).
type Logger struct {
	mu     sync.RWMutex
	level  LogLevel
	logger *log.Logger
	isDev  bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New builds a standalone logger writing to w.
func New(w io.Writer, level LogLevel, isDev bool) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "", log.LstdFlags),
		isDev:  isDev,
	}
}

// Initialize sets up the default logger instance
func Initialize(level LogLevel, isDev bool) {
	once.Do(func() {
		defaultLogger = New(os.Stdout, level, isDev)
	})
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	if defaultLogger == nil {
		Initialize(INFO, false)
	}
	return defaultLogger
}

// SetLevel updates the log level of the default logger
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func redactEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "****"
	}

	local := parts[0]
	domain := parts[1]

	if len(local) <= 2 {
		return "****@" + domain
	}

	return local[0:1] + "****" + local[len(local)-1:] + "@" + domain
}

func hashUserID(userID interface{}) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%v", userID)))
	return fmt.Sprintf("user_%x", hash[:4])
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:4] + "****"
}

func redactValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	valueStr := fmt.Sprintf("%v", value)

	switch {
	case strings.Contains(keyLower, "password"):
		return "[REDACTED]"
	case strings.Contains(keyLower, "return_code"), strings.Contains(keyLower, "returncode"):
		return "******"
	case strings.Contains(keyLower, "bank"), strings.Contains(keyLower, "receipt"):
		if len(valueStr) <= 4 {
			return "****"
		}
		return "****" + valueStr[len(valueStr)-4:]
	case strings.Contains(keyLower, "email"), strings.Contains(valueStr, "@"):
		return redactEmail(valueStr)
	case strings.Contains(keyLower, "userid"), strings.Contains(keyLower, "user_id"):
		return hashUserID(value)
	case strings.Contains(keyLower, "session"), strings.Contains(keyLower, "token") && !strings.Contains(keyLower, "tokens"):
		return truncateID(valueStr)
	case strings.Contains(keyLower, "transaction_id"):
		return truncateID(valueStr)
	}

	return value
}

func (l *Logger) formatMessage(level LogLevel, msg string, keysAndValues ...interface{}) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("[%s] %s", level, msg))

	if len(keysAndValues) > 0 {
		builder.WriteString(" {")
		for i := 0; i < len(keysAndValues); i += 2 {
			if i > 0 {
				builder.WriteString(",")
			}

			key := fmt.Sprintf("%v", keysAndValues[i])
			var value interface{} = ""
			if i+1 < len(keysAndValues) {
				value = keysAndValues[i+1]
			}

			// raw values only in dev mode at DEBUG
			if !l.isDev || l.currentLevel() > DEBUG {
				value = redactValue(key, value)
			}

			builder.WriteString(fmt.Sprintf(" %s=%v", key, value))
		}
		builder.WriteString(" }")
	}

	return builder.String()
}

func (l *Logger) currentLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	if level < l.currentLevel() {
		return
	}
	l.logger.Println(l.formatMessage(level, msg, keysAndValues...))
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(DEBUG, msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(INFO, msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(WARN, msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(ERROR, msg, keysAndValues...)
}

// Package-level convenience functions

func Debug(msg string, keysAndValues ...interface{}) {
	GetLogger().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	GetLogger().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	GetLogger().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...interface{}) {
	GetLogger().Error(msg, keysAndValues...)
}

// ParseLevel converts a string to a LogLevel, defaulting to INFO
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}
