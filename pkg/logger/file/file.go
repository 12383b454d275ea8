package file

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements LoggerInstance by writing rotated JSON lines through zap.
type FileLogger struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel
}

// FileLoggerParams contains configuration for creating a FileLogger.
type FileLoggerParams struct {
	Path       string
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileLogger creates a logger that writes to a size-rotated file.
func NewFileLogger(params FileLoggerParams) *FileLogger {
	if params.MaxSizeMB <= 0 {
		params.MaxSizeMB = 10
	}
	if params.MaxBackups <= 0 {
		params.MaxBackups = 5
	}
	if params.MaxAgeDays <= 0 {
		params.MaxAgeDays = 30
	}

	rotator := &lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
		MaxAge:     params.MaxAgeDays,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if params.Debug {
		level.SetLevel(zap.DebugLevel)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		level,
	)

	return &FileLogger{
		logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar(),
		level:  level,
	}
}

// SetDebug switches between DEBUG and INFO level.
func (f *FileLogger) SetDebug(debug bool) {
	if debug {
		f.level.SetLevel(zap.DebugLevel)
		return
	}
	f.level.SetLevel(zap.InfoLevel)
}

// Sync flushes buffered entries.
func (f *FileLogger) Sync() error {
	return f.logger.Sync()
}

func (f *FileLogger) Log(message string, keyvals ...any) {
	f.logger.Infow(message, keyvals...)
}

func (f *FileLogger) Info(message string, keyvals ...any) {
	f.logger.Infow(message, keyvals...)
}

func (f *FileLogger) Warn(message string, keyvals ...any) {
	f.logger.Warnw(message, keyvals...)
}

func (f *FileLogger) Error(message string, keyvals ...any) {
	f.logger.Errorw(message, keyvals...)
}

func (f *FileLogger) Debug(message string, keyvals ...any) {
	f.logger.Debugw(message, keyvals...)
}

func (f *FileLogger) Fatal(message string, keyvals ...any) {
	f.logger.Fatalw(message, keyvals...)
}
