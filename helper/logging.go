package helper

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/theritikchoure/logx"
)

// InitLogging points the global zerolog logger at LOG_FILE (JSON lines) or at a
// console writer on stderr. The returned closer releases the log file, if any.
func InitLogging(component string) (io.Closer, error) {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		parsed, err := zerolog.ParseLevel(v)
		if err != nil {
			return nopCloser{}, fmt.Errorf("%w: LOG_LEVEL=%q: %v", ErrValidation, v, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	var (
		out    io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		closer io.Closer = nopCloser{}
	)
	if path := os.Getenv("LOG_FILE"); path != "" {
		logfile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return closer, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = logfile, logfile
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return closer, nil
}

// Banner prints a highlighted line on stdout for start-up and registration events.
func Banner(format string, args ...interface{}) {
	logx.Logf(format, logx.FGBLUE, logx.BGWHITE, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
