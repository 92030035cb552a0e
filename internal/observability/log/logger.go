package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

var (
	innerLogger          *Logger
	loggerInitializeOnce sync.Once
)

// Logger is the zap-backed Log implementation constructed by every binary
// in this tree (cmd/server, cmd/client) and threaded down into the
// replicator and its transport peers.
type Logger struct {
	zapLogger *zap.Logger
}

// New builds a Logger writing JSON to stderr at level, sampling repeated
// lines the way zap's production config does by default.
func New(level Level) *Logger {
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(toZapLevel(level)),
		Development:      false,
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}

	logger := &Logger{zapLogger: zapLogger}
	loggerInitializeOnce.Do(func() { innerLogger = logger })
	return logger
}

// Provide returns the first Logger built by New, for wire injectors that
// need a package-level singleton rather than a threaded-through instance.
func Provide() *Logger {
	return innerLogger
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zapLogger.Debug(msg, toZapFields(fields...)...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.zapLogger.Info(msg, toZapFields(fields...)...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.zapLogger.Warn(msg, toZapFields(fields...)...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zapLogger.Error(msg, toZapFields(fields...)...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.zapLogger.Fatal(msg, toZapFields(fields...)...) }

func (l *Logger) With(fields ...Field) Log {
	return &Logger{zapLogger: l.zapLogger.With(toZapFields(fields...)...)}
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelInfo:
		return zap.InfoLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	case LevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func toZapFields(fields ...Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case Uint32Type:
			zapFields[i] = zap.Uint32(f.Key, f.Value.(uint32))
		case StringType:
			zapFields[i] = zap.String(f.Key, f.Value.(string))
		case ErrorType:
			zapFields[i] = zap.NamedError(f.Key, f.Value.(error))
		default:
			zapFields[i] = zap.Any(f.Key, f.Value)
		}
	}
	return zapFields
}
