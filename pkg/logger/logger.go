package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init configures the package logger. Production emits JSON, anything else a
// human readable console format.
func Init(environment string, debug bool) {
	var w io.Writer = os.Stdout
	if environment != "production" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	mu.Lock()
	log = zerolog.New(w).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	log = log.Output(w)
	mu.Unlock()
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func fields(e *zerolog.Event, keyValues []any) *zerolog.Event {
	for i := 0; i < len(keyValues); i += 2 {
		key := fmt.Sprint(keyValues[i])
		if i+1 >= len(keyValues) {
			e = e.Interface(key, nil)
			break
		}
		e = e.Interface(key, keyValues[i+1])
	}
	return e
}

func Debug(msg string, keyValues ...any) {
	fields(current().Debug(), keyValues).Msg(msg)
}

func Info(msg string, keyValues ...any) {
	fields(current().Info(), keyValues).Msg(msg)
}

func Infof(format string, args ...any) {
	current().Info().Msgf(format, args...)
}

func Warn(msg string, keyValues ...any) {
	fields(current().Warn(), keyValues).Msg(msg)
}

func Error(msg string, err error, keyValues ...any) {
	fields(current().Error().Err(err), keyValues).Msg(msg)
}

// Fatal logs and exits the process.
func Fatal(msg string, err error) {
	current().Fatal().Err(err).Msg(msg)
}
