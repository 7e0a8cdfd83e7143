package logger

// Backend is a destination for log records. The engine ships a console
// backend; additional backends can be fanned in via Init.
type Backend interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type dispatcher struct {
	backends []Backend
}

var global *dispatcher

// Init sets up the process-wide logger with one or more backends.
// Logging before Init is a no-op.
func Init(backends ...Backend) {
	global = &dispatcher{backends: backends}
}

// Debug writes a record at DEBUG level to all backends.
func Debug(message string, keyvals ...any) {
	if global == nil {
		return
	}
	for _, b := range global.backends {
		b.Debug(message, keyvals...)
	}
}

// Info writes a record at INFO level to all backends.
func Info(message string, keyvals ...any) {
	if global == nil {
		return
	}
	for _, b := range global.backends {
		b.Info(message, keyvals...)
	}
}

// Warn writes a record at WARN level to all backends.
func Warn(message string, keyvals ...any) {
	if global == nil {
		return
	}
	for _, b := range global.backends {
		b.Warn(message, keyvals...)
	}
}

// Error writes a record at ERROR level to all backends.
func Error(message string, keyvals ...any) {
	if global == nil {
		return
	}
	for _, b := range global.backends {
		b.Error(message, keyvals...)
	}
}

// Fatal writes a record at FATAL level and terminates the process.
func Fatal(message string, keyvals ...any) {
	if global == nil {
		return
	}
	for _, b := range global.backends {
		b.Fatal(message, keyvals...)
	}
}
