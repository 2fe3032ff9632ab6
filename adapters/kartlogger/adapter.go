// Package kartlogger bridges kart-io/logger engines (slog or zap) onto the
// glog contracts used throughout the monitor.
package kartlogger

import (
	"context"
	"strings"

	kartlog "github.com/kart-io/logger"
	kcore "github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger adapts a kart-io logger to glog.Logger and glog.LoggerProvider.
type Logger struct {
	base kcore.Logger
}

// New builds an engine from opt. A nil opt uses the library defaults.
func New(opt *option.LogOption) (*Logger, error) {
	if opt == nil {
		opt = option.DefaultLogOption()
	}
	base, err := kartlog.New(opt)
	if err != nil {
		return nil, err
	}
	return Wrap(base), nil
}

func Wrap(base kcore.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) Trace(msg string, args ...any) { l.base.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.base.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.base.Fatalw(msg, args...) }

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &Logger{base: l.base.WithCtx(ctx)}
}

// GetLogger returns a child logger tagged with the component name.
func (l *Logger) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return l
	}
	return &Logger{base: l.base.With("logger", name)}
}

func (l *Logger) Flush() error {
	return l.base.Flush()
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Logger)(nil)
)
