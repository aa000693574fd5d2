package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
	// Agent is stamped on every line when set.
	Agent string `split_words:"true"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init replaces the global zerolog logger.
func Init(opts ...Config) {
	log.Logger = New(os.Stdout, *safe(opts...))
}

// New builds a logger writing to w.
func New(w io.Writer, conf Config) zerolog.Logger {
	if conf.PrettyFormat {
		w = zerolog.ConsoleWriter{Out: w}
	}
	ctx := zerolog.New(w).With().Timestamp()
	if conf.Agent != "" {
		ctx = ctx.Str("agent", conf.Agent)
	}
	logger := ctx.Logger()

	if conf.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	return logger.With().Caller().Stack().Logger()
}
