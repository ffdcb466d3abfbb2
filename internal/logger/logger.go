package logger

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"schoolchat/backend/internal/config"
)

// Fields carries structured context (chatId, userId, event...) for a log line.
type Fields map[string]interface{}

// Logger is the leveled logger used across the service.
// Expected args: error, Fields, or anything printable.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// New returns a rollbar-backed logger when a token is configured, the plain one otherwise.
func New(std *log.Logger, cfg *config.Config) Logger {
	if cfg.RollbarToken != "" {
		return NewRollbarLogger(std, cfg)
	}
	return NewStdLogger(std)
}

type StdLogger struct {
	std *log.Logger
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger) *StdLogger {
	return &StdLogger{std: std}
}

func (l *StdLogger) Debug(msg string, args ...interface{}) { l.print("DEBUG:", msg, args) }
func (l *StdLogger) Info(msg string, args ...interface{})  { l.print("INFO:", msg, args) }
func (l *StdLogger) Warn(msg string, args ...interface{})  { l.print("WARN:", msg, args) }
func (l *StdLogger) Error(msg string, args ...interface{}) { l.print("ERROR:", msg, args) }

func (l *StdLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s %s%s", level, msg, format(args))
}

// format renders args as ": err key=value ..." with fields in key order.
func format(args []interface{}) string {
	var b strings.Builder
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			fmt.Fprintf(&b, ": %v", v)
		case Fields:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, v[k])
			}
		default:
			fmt.Fprintf(&b, " %+v", v)
		}
	}
	return b.String()
}
