package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

func New(cfg *config.Config) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, cfg))

	slog.SetDefault(logger)

	return logger
}

// NewHandler picks the output format for the environment
func NewHandler(w io.Writer, cfg *config.Config) slog.Handler {
	if cfg.IsProduction() {
		// JSON format
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	}

	// Human-readable format
	return tint.NewHandler(w, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Nop returns a logger that discards everything, for tests and tools
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
