package logger

import (
	"log"

	"schoolchat/backend/internal/config"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

// RollbarLogger reports to Rollbar and mirrors every line to the std logger.
type RollbarLogger struct {
	std *StdLogger
}

var _ Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, cfg *config.Config) *RollbarLogger {
	rollbar.SetToken(cfg.RollbarToken)
	rollbar.SetEnvironment(cfg.Env)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: NewStdLogger(std)}
}

// prepare turns Fields into the plain map rollbar treats as extras.
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, msg)
	for _, arg := range args {
		if f, ok := arg.(Fields); ok {
			out = append(out, map[string]interface{}(f))
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.std.Debug(msg, args...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.std.Info(msg, args...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.std.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.std.Error(msg, args...)
}

// Flush blocks until queued items are sent.
func (l *RollbarLogger) Flush() {
	rollbar.Wait()
}
