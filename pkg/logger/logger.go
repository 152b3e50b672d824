package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "polls"

// New builds a JSON production logger. Sampling is turned off: every vote
// is logged, even when many arrive for the same choice in the same second.
func New(logLevel string, opts ...zap.Option) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if logLevel != "" {
		parsed, err := zapcore.ParseLevel(logLevel)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = parsed
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Sampling = nil
	config.InitialFields = map[string]interface{}{"service": serviceName}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoder(func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	})

	return config.Build(opts...)
}
