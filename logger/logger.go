// Package logger dispatches structured log calls to the configured backends.
// Until Init is called every call is a no-op, so library code can log freely.
package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var (
	mu        sync.RWMutex
	singleton *Logger
)

func instances() []LoggerInstance {
	mu.RLock()
	defer mu.RUnlock()
	if singleton == nil {
		return nil
	}
	return singleton.instances
}

// Init initializes the global logger with one or more logging backends.
// Calling it again replaces the previous backends.
func Init(backends ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &Logger{instances: backends}
}

// Reset removes every backend.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	singleton = nil
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Debug(message, keyvals...)
	}
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Info(message, keyvals...)
	}
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Warn(message, keyvals...)
	}
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Error(message, keyvals...)
	}
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Fatal(message, keyvals...)
	}
}
