// Package logging builds the zerolog loggers used across genomatrix.
//
//	GENOMATRIX_LOG_PRETTY=1  human-readable console output on stderr
//	GENOMATRIX_LOG_DEBUG=1   enable debug level
package logging

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	l := New()
	zerolog.DefaultContextLogger = &l
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		function := ""
		if fun := runtime.FuncForPC(pc); fun != nil {
			name := fun.Name()
			if slash := strings.LastIndex(name, "/"); slash > 0 {
				name = name[slash+1:]
			}
			function = " " + name + "()"
		}
		return file + ":" + strconv.Itoa(line) + function
	}
}

// New returns a JSON logger on stderr configured from the environment.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = logger.Hook(CallerHook{})

	if os.Getenv("GENOMATRIX_LOG_PRETTY") == "1" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if os.Getenv("GENOMATRIX_LOG_DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return logger
}

// Component returns New tagged with a component field.
func Component(name string) zerolog.Logger {
	return New().With().Str("component", name).Logger()
}

// CallerHook stamps every event with the calling site.
type CallerHook struct{}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Caller(3)
}

// EnvOrDefault returns the environment variable or fallback when it is unset.
func EnvOrDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

// EnvInt parses an integer environment variable, returning fallback when it is
// unset or malformed.
func EnvInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}
