package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON logger every binary uses. Fields follow the log
// contract: timestamp, level, service, message, hostname, plus per-entry
// correlation fields (action, ride_id) added at call sites.
func New(service string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	return log.With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	), nil
}
