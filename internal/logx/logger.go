package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Environment string
	Level       string
	Output      io.Writer
}

func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(opts.Environment, "production") {
		log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().Timestamp().Caller().Logger().Level(zerolog.DebugLevel)
	}

	if opts.Level != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			log.Logger = log.Logger.Level(lvl)
		}
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
