package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

// ZapLoggerConfig is decoded from the free-form logger.config block.
type ZapLoggerConfig struct {
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout stderr file"`
	File   string `yaml:"file" json:"file"`
}

func NewDefaultLogger(config *types.LoggerConfig) (types.Logger, error) {
	options := &ZapLoggerConfig{Format: "console", Output: "stderr"}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, options); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal logger config")
		}
	}

	sink, err := openSink(options)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(options.Format), sink, zap.NewAtomicLevelAt(parseLogLevel(config.Level)))
	l := NewZapWrapper(zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))))

	l.Debug("Logger initialized",
		zap.String("level", config.Level),
		zap.String("format", options.Format),
		zap.String("output", options.Output),
	)

	return l, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("%s:%d", caller.File, caller.Line))
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(options *ZapLoggerConfig) (zapcore.WriteSyncer, error) {
	switch options.Output {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "file":
		if options.File == "" {
			return nil, types.ErrLogFileIsEmpty
		}
		if dir := filepath.Dir(options.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, types.WrapError(err, "access denied to log directory")
			}
		}
		sink, _, err := zap.Open(options.File)
		if err != nil {
			return nil, types.WrapError(err, "failed to open log file")
		}
		return sink, nil
	default:
		return zapcore.Lock(os.Stderr), nil
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ZapWrapper adapts *zap.Logger to types.Logger.
type ZapWrapper struct {
	Logger *zap.Logger
}

func NewZapWrapper(logger *zap.Logger) *ZapWrapper {
	return &ZapWrapper{Logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func NewNop() *ZapWrapper {
	return &ZapWrapper{Logger: zap.NewNop()}
}

func (z *ZapWrapper) Sync() error {
	return z.Logger.Sync()
}

func (z *ZapWrapper) With(fields ...zap.Field) types.Logger {
	return &ZapWrapper{Logger: z.Logger.With(fields...)}
}

func (z *ZapWrapper) Error(msg string, fields ...zap.Field) { z.Logger.Error(msg, fields...) }
func (z *ZapWrapper) Warn(msg string, fields ...zap.Field)  { z.Logger.Warn(msg, fields...) }
func (z *ZapWrapper) Info(msg string, fields ...zap.Field)  { z.Logger.Info(msg, fields...) }
func (z *ZapWrapper) Debug(msg string, fields ...zap.Field) { z.Logger.Debug(msg, fields...) }

func (z *ZapWrapper) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	z.Logger.Log(lvl, msg, fields...)
}

// ErrorWithErrStack logs the root cause under "error" and, when the error
// carries a pkg/errors stack, the call frames under "stack".
func (z *ZapWrapper) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	if err == nil {
		z.Logger.Error(msg, fields...)
		return
	}

	extra := []zap.Field{zap.String("error", errors.Cause(err).Error())}
	if frames := stackFrames(err); len(frames) > 0 {
		extra = append(extra, zap.Strings("stack", frames))
	}

	z.Logger.Error(msg, append(extra, fields...)...)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackFrames returns the deepest recorded stack without runtime frames.
func stackFrames(err error) []string {
	var trace errors.StackTrace
	for e := err; e != nil; {
		if st, ok := e.(stackTracer); ok {
			trace = st.StackTrace()
		}
		cause, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = cause.Cause()
	}

	frames := make([]string, 0, len(trace))
	for _, f := range trace {
		line := fmt.Sprintf("%+s:%d", f, f)
		if strings.Contains(line, "runtime/") {
			continue
		}
		frames = append(frames, strings.ReplaceAll(line, "\n\t", " "))
	}
	return frames
}
