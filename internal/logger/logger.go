// Package logger builds the process logger shared by the API and
// backfill binaries.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger for the given environment. Production emits JSON
// with RFC3339 timestamps and tags every entry with the service name so
// backfill run logs can be filtered downstream; anything else gets
// colored console output for local runs.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		config := zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		config.InitialFields = map[string]interface{}{
			"service": "attribution-engine",
		}
		return config.Build(zap.AddCaller())
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build(zap.AddCaller())
}
