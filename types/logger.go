package types

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface every component receives.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	ErrorWithErrStack(msg string, err error, fields ...zap.Field)
	Log(lvl zapcore.Level, msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type LoggerManager interface {
	LifecycleManager
	Logger
}

type LoggerCreator func(config interface{}) (Logger, error)
