package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const otelScope = "github.com/fyrsmithlabs/gitmem"

// newOTELCore forwards entries at or above level to provider.
func newOTELCore(provider log.LoggerProvider, level zapcore.Level) zapcore.Core {
	return &levelFilterCore{
		Core:     otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(provider)),
		minLevel: level,
		hasMin:   true,
	}
}
