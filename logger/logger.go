// Package logger is the process-wide structured logger. Call sites pass a
// message followed by alternating keys and values:
//
//	logger.Warn("Identifier flagged", "identifier", ip, "score", score)
package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

type Options struct {
	Level   string
	Pretty  bool
	Service string
	Output  io.Writer
}

// Init configures the global logger. It is called once at startup; until
// then zerolog's defaults apply.
func Init(opts Options) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level))); err == nil && opts.Level != "" {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stdout
	if opts.Output != nil {
		w = opts.Output
	}
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	zlog.Logger = ctx.Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

func Debug(msg string, kv ...any) {
	emit(zlog.Debug(), msg, kv)
}

func Info(msg string, kv ...any) {
	emit(zlog.Info(), msg, kv)
}

func Warn(msg string, kv ...any) {
	emit(zlog.Warn(), msg, kv)
}

func Error(msg string, kv ...any) {
	emit(zlog.Error(), msg, kv)
}

func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(MISSING)")
	}
	ev.Fields(kv).Msg(msg)
}
