package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatPlain   = "plain"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Logger wraps a sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path" json:"output_path"`
	Format     string `mapstructure:"format" yaml:"format" json:"format"` // "plain", "console" or "json"
}

// New builds a logger from config. An unparsable level falls back to info.
func New(config *Config) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	output := config.OutputPath
	if output == "" {
		output = "stdout"
	}

	encoding, encoderConfig, err := encoderFor(config.Format)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.Config{
		Level:            level,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
	}

	logger, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{SugaredLogger: logger.Sugar()}, nil
}

// encoderFor maps a format name onto a zap encoding. The plain format prints
// the bare message so event lines reach stdout exactly as written.
func encoderFor(format string) (string, zapcore.EncoderConfig, error) {
	switch format {
	case "", FormatPlain:
		return "console", zapcore.EncoderConfig{
			MessageKey: "msg",
			LineEnding: zapcore.DefaultLineEnding,
		}, nil
	case FormatConsole, FormatJSON:
		return format, zapcore.EncoderConfig{
			MessageKey:    "msg",
			LevelKey:      "level",
			TimeKey:       "time",
			NameKey:       "logger",
			CallerKey:     "caller",
			FunctionKey:   zapcore.OmitKey,
			StacktraceKey: "stacktrace",
			LineEnding:    zapcore.DefaultLineEnding,
			EncodeLevel:   zapcore.LowercaseLevelEncoder,
			EncodeTime:    zapcore.ISO8601TimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		}, nil
	default:
		return "", zapcore.EncoderConfig{}, fmt.Errorf("unknown log format: %s", format)
	}
}

// NewDefault returns a plain info-level logger writing to stdout.
func NewDefault() *Logger {
	logger, err := New(&Config{Level: "info", OutputPath: "stdout", Format: FormatPlain})
	if err != nil {
		zapLogger, _ := zap.NewProduction()
		return &Logger{SugaredLogger: zapLogger.Sugar()}
	}
	return logger
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built on an observer core.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar()}
}

// With adds structured context to the logger
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered entries. Errors from syncing stdout are ignored.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}
