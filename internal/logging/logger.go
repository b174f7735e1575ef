package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the active log file inside the log directory.
const FileName = "tlsprober.log"

// NewLogger writes JSON lines to a rotating file in logDir. level is a zap
// level name ("debug", "info", ...); unknown values fall back to info.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, FileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, ParseLevel(level))
	return zap.New(core), nil
}

// NewConsole logs human-readable lines to stderr (CLI use).
func NewConsole(level string) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), ParseLevel(level))
	return zap.New(core)
}

func ParseLevel(s string) zapcore.Level {
	lvl := zapcore.InfoLevel
	if s == "" {
		return lvl
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// ProbeLogger forwards prober status lines to l as "tls_probe" events.
type ProbeLogger struct {
	L *zap.Logger
}

func (p ProbeLogger) Log(message string) {
	if p.L == nil {
		return
	}
	p.L.Info("tls_probe", zap.String("message", message))
}
