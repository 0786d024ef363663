package gologger

import (
	"context"
	"sort"

	glog "github.com/goliatone/go-logger/glog"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// SQLLogger routes sqldb-logger statement logs into a glog logger.
type SQLLogger struct {
	logger glog.Logger
}

// NewSQLLogger resolves a logger the same way Resolve does and wraps it for
// sqlstore.OpenSQL.
func NewSQLLogger(name string, provider glog.LoggerProvider, logger glog.Logger) *SQLLogger {
	_, resolved := Resolve(name, provider, logger)
	return &SQLLogger{logger: resolved}
}

func (l *SQLLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	logger := l.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := flatten(data)
	switch level {
	case sqldblogger.LevelError:
		logger.Error(msg, args...)
	case sqldblogger.LevelInfo:
		logger.Info(msg, args...)
	case sqldblogger.LevelTrace:
		logger.Trace(msg, args...)
	default:
		logger.Debug(msg, args...)
	}
}

func flatten(data map[string]interface{}) []any {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, data[key])
	}
	return args
}

var _ sqldblogger.Logger = (*SQLLogger)(nil)
