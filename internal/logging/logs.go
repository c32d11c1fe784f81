package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	current.Store(&l)
}

func install(cfg Config) {
	installTo(os.Stderr, cfg)
}

func installTo(out io.Writer, cfg Config) {
	var w io.Writer = out
	if !cfg.Bypass {
		w = zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	l := ctx.Logger()
	current.Store(&l)
	zerolog.SetGlobalLevel(cfg.Level)
}

// Logger returns the process logger for structured call sites.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLevel adjusts the minimum level at runtime.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

func Tracef(format string, args ...any) {
	current.Load().Trace().Msg(fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	current.Load().Debug().Msg(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	current.Load().Info().Msg(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	current.Load().Warn().Msg(fmt.Sprintf(format, args...))
}

func Errf(format string, args ...any) {
	current.Load().Error().Msg(fmt.Sprintf(format, args...))
}

// Logf writes regardless of level; used for test narration.
func Logf(format string, args ...any) {
	current.Load().Log().Msg(fmt.Sprintf(format, args...))
}
