package logger

// Field is a single structured key/value attached to a log line
type Field struct {
	Key   string
	Value any
}

// Client is the logging surface used across the module
type Client interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Err is shorthand for an "err" field
func Err(err error) Field {
	return Field{Key: "err", Value: err}
}
