// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger from a level name ("debug", "info", "warn",
// "error") and a format ("json" or "text"). Unknown levels default to
// info; unknown formats default to text (console encoding).
func New(level, format string) (*zap.Logger, error) {
	var zlvl zapcore.Level
	if err := zlvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		zlvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), zlvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// With decorates a logger with the (ticker, cik) pair most engine log
// lines are keyed by.
func With(l *zap.Logger, ticker, cik string) *zap.Logger {
	fields := make([]zap.Field, 0, 2)
	if ticker != "" {
		fields = append(fields, zap.String("ticker", ticker))
	}
	if cik != "" {
		fields = append(fields, zap.String("cik", cik))
	}
	return l.With(fields...)
}
