package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process-wide slog.Logger. LOG_FORMAT selects JSON or
// text output; every record carries the service attribute so the api and
// worker processes can be told apart in shared log streams.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "registria"))
}
