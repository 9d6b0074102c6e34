package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger. LOG_FORMAT=json selects the
// JSON handler used in deployments; anything else falls back to text for
// local runs.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
