package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production always logs JSON;
// elsewhere LOG_FORMAT selects the handler. Every record carries the
// service name so aggregated streams stay attributable.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "veridian"))
}
