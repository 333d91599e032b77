// Package logging defines the structured logging contract for the monitoring
// platform and its zap-backed implementation.  Components take a Logger via
// their constructors; go.uber.org/zap stays an implementation detail of this
// package.  cmd/terrasight, cmd/apiserver, and cmd/worker each build one root
// Logger from config.Log at startup and hand Named children down the wiring.
package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ─────────────────────────────────────────────────────────────────────────────
// Field
// ─────────────────────────────────────────────────────────────────────────────

// Field is one typed key-value pair on a log entry.  A concrete struct keeps
// call sites explicit and lets the zap adapter translate values without
// reflection for the common types.
type Field struct {
	Key   string
	Value interface{}
}

// String returns a string-valued Field.
func String(key, val string) Field { return Field{Key: key, Value: val} }

// Int returns an int-valued Field.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Int64 returns an int64-valued Field.
func Int64(key string, val int64) Field { return Field{Key: key, Value: val} }

// Float64 returns a float64-valued Field.
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }

// Bool returns a bool-valued Field.
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }

// Err records err under the canonical "error" key. A nil err logs as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any returns a Field holding an arbitrary value. Prefer the typed
// constructors; values with no typed mapping go through zap.Any.
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }

// Duration returns a time.Duration-valued Field.
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

// ─────────────────────────────────────────────────────────────────────────────
// Logger interface
// ─────────────────────────────────────────────────────────────────────────────

// Logger is the logging contract injected throughout the platform.  Tests
// substitute NewNopLogger or an observed core via NewLoggerFromCore.
type Logger interface {
	// Debug logs high-volume diagnostic detail, off in production by level.
	Debug(msg string, fields ...Field)

	// Info logs routine operational events: pass started, artifact persisted.
	Info(msg string, fields ...Field)

	// Warn logs recoverable degradation, e.g. a collaborator going dark or a
	// region skipped for missing imagery.
	Warn(msg string, fields ...Field)

	// Error logs failures scoped to one operation; the process carries on.
	Error(msg string, fields ...Field)

	// Fatal logs and exits the process. Startup wiring only.
	Fatal(msg string, fields ...Field)

	// With returns a child carrying the given fields on every entry.
	With(fields ...Field) Logger

	// Named returns a child with name appended dot-separated, so detection
	// logs arrive as "monitor.detection".
	Named(name string) Logger
}

// ─────────────────────────────────────────────────────────────────────────────
// LogConfig
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig is populated from the log section of the configuration file.
type LogConfig struct {
	// Level is the minimum emitted severity: "debug", "info", "warn",
	// "error". Empty or unrecognised values mean "info".
	Level string `yaml:"level" json:"level"`

	// Format is "json" for aggregation pipelines or "console" for humans.
	// Anything else means "json".
	Format string `yaml:"format" json:"format"`

	// OutputPaths lists sinks for log entries. "stdout" and "stderr" are
	// special; other entries are file paths. Nil means ["stdout"]. The CLI
	// overrides this to stderr so stdout stays parseable command output.
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`

	// ErrorOutputPaths lists sinks for zap's own internal errors.
	// Nil means ["stderr"].
	ErrorOutputPaths []string `yaml:"error_output_paths" json:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// zap adapter
// ─────────────────────────────────────────────────────────────────────────────

type zapLogger struct {
	z *zap.Logger
}

// toZapFields maps the Field slice onto zap fields, switching on the concrete
// value types the constructors above produce.
func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.z.Debug(msg, toZapFields(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.z.Info(msg, toZapFields(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.z.Warn(msg, toZapFields(fields)...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.z.Error(msg, toZapFields(fields)...)
}

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.z.Fatal(msg, toZapFields(fields)...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZapFields(fields)...)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

// parseLevel maps a configured level string to zap's. Unknown strings fall
// back to info rather than failing startup over a typo.
func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "warn", "WARN":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a zap-backed Logger from cfg, defaulting unset fields to
// info level, json encoding, stdout, and stderr for internal errors.  It
// returns an error only when zap cannot open an output path.
func NewLogger(cfg LogConfig) (Logger, error) {
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	var encCfg zapcore.EncoderConfig
	var encoding string
	switch cfg.Format {
	case "console":
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	default:
		encCfg = zap.NewProductionEncoderConfig()
		encoding = "json"
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}

	// Caller skip compensates for the adapter frame, so entries point at the
	// component call site.
	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: failed to build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// NewLoggerFromCore wraps an existing zapcore.Core. Tests pair this with
// zaptest/observer to assert on emitted entries.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return &zapLogger{z: zap.New(core, zap.AddCallerSkip(1))}
}

// ─────────────────────────────────────────────────────────────────────────────
// nop implementation
// ─────────────────────────────────────────────────────────────────────────────

type nopLogger struct{}

func (nopLogger) Debug(_ string, _ ...Field) {}
func (nopLogger) Info(_ string, _ ...Field)  {}
func (nopLogger) Warn(_ string, _ ...Field)  {}
func (nopLogger) Error(_ string, _ ...Field) {}
func (nopLogger) Fatal(_ string, _ ...Field) {}
func (n nopLogger) With(_ ...Field) Logger   { return n }
func (n nopLogger) Named(_ string) Logger    { return n }

// NewNopLogger returns a Logger that discards everything. Unit tests use it
// wherever log output would only be noise.
func NewNopLogger() Logger { return nopLogger{} }
