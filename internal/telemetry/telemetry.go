// Package telemetry builds the go-kit loggers used by the commands.
package telemetry

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// NewLogger returns a logger writing format to w with ts and caller
// prefixes. Debug lines are dropped unless debug is set.
func NewLogger(w io.Writer, format string, debug bool) (log.Logger, error) {
	w = log.NewSyncWriter(w)

	var logger log.Logger
	switch format {
	case FormatLogfmt, "":
		logger = log.NewLogfmtLogger(w)
	case FormatJSON:
		logger = log.NewJSONLogger(w)
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatLogfmt, FormatJSON)
	}

	logger = log.WithPrefix(logger, "ts", log.DefaultTimestampUTC)
	logger = log.WithPrefix(logger, "caller", log.DefaultCaller)

	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return logger, nil
}

// ErrorFunc returns a callback logging every error it receives at debug
// level. It fits discovery.Config.ReportError.
func ErrorFunc(logger log.Logger, msg string) func(error) {
	return func(err error) {
		level.Debug(logger).Log("msg", msg, "err", err)
	}
}
