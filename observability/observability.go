package observability

import (
	"fmt"
	"log"
	"os"
)

// Logger is the structured logging facade used across the engine.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type int64Field struct {
	key string
	val int64
}

func (f int64Field) Key() string        { return f.key }
func (f int64Field) Value() interface{} { return f.val }

type float64Field struct {
	key string
	val float64
}

func (f float64Field) Key() string        { return f.key }
func (f float64Field) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Int64(key string, value int64) Field     { return int64Field{key, value} }
func Float64(key string, value float64) Field { return float64Field{key, value} }
func Error(key string, err error) Field       { return errorField{key, err} }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Level gates output of the standard logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// stdLogger writes key=value lines through the standard log package.
type stdLogger struct {
	level Level
	out   *log.Logger
	bound []Field
}

// NewStdLogger returns a Logger writing to stderr at the given level.
func NewStdLogger(level Level) Logger {
	return &stdLogger{level: level, out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *stdLogger) log(lvl Level, tag, msg string, fields []Field) {
	if lvl < l.level {
		return
	}
	line := tag + " " + msg
	for _, f := range l.bound {
		line += fmt.Sprintf(" %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		line += fmt.Sprintf(" %s=%v", f.Key(), f.Value())
	}
	l.out.Print(line)
}

func (l *stdLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, "[DEBUG]", msg, fields) }
func (l *stdLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, "[INFO]", msg, fields) }
func (l *stdLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, "[WARN]", msg, fields) }
func (l *stdLogger) Error(msg string, fields ...Field) { l.log(LevelError, "[ERROR]", msg, fields) }

func (l *stdLogger) With(fields ...Field) Logger {
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &stdLogger{level: l.level, out: l.out, bound: bound}
}
