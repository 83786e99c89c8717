package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It writes to stderr at info level until
// Init is called.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Options controls Init.
type Options struct {
	Debug  bool
	Format string // "console" or "json"
	Out    io.Writer
}

func Init(opts Options) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

func Info(msg string, args ...any) {
	withFields(Logger.Info(), args).Msg(msg)
}

func Error(msg string, args ...any) {
	withFields(Logger.Error(), args).Msg(msg)
}

func Debug(msg string, args ...any) {
	withFields(Logger.Debug(), args).Msg(msg)
}

func Warn(msg string, args ...any) {
	withFields(Logger.Warn(), args).Msg(msg)
}

// withFields attaches alternating key/value pairs. A trailing key without a
// value is logged under "!BADKEY".
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
