// Package logging builds the zap logger used by abxctl and adapts it to the
// key/value Logger contract of the service layer.
package logging

import (
	"fmt"
	"strings"

	"abxcore/internal/core"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the zap configuration.
type Options struct {
	Level       string
	Development bool
}

// New builds a production (JSON) or development (console) zap logger at the
// requested level.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ParseLevel maps a textual level to zap. The empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// Adapter exposes a zap logger through core.Logger.
type Adapter struct {
	s *zap.SugaredLogger
}

var _ core.Logger = Adapter{}

// NewAdapter wraps z; a nil logger discards everything.
func NewAdapter(z *zap.Logger) Adapter {
	if z == nil {
		z = zap.NewNop()
	}
	return Adapter{s: z.Sugar()}
}

func (a Adapter) Debug(msg string, kv ...any) { a.s.Debugw(msg, kv...) }
func (a Adapter) Info(msg string, kv ...any)  { a.s.Infow(msg, kv...) }
func (a Adapter) Warn(msg string, kv ...any)  { a.s.Warnw(msg, kv...) }
func (a Adapter) Error(msg string, kv ...any) { a.s.Errorw(msg, kv...) }

// Named returns an adapter whose entries carry a logger name.
func (a Adapter) Named(name string) Adapter { return Adapter{s: a.s.Named(name)} }

// Sync flushes buffered entries.
func (a Adapter) Sync() error { return a.s.Sync() }
