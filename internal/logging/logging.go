package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"panofuse/internal/config"
)

// level is shared by every handler built here so --debug/--quiet can adjust
// verbosity after Setup.
var level = new(slog.LevelVar)

// New returns a slog.Logger with the provided level string (info, debug, warn, error).
// format may be "json" or "text".
func New(lvl string, format string) *slog.Logger {
	return slog.New(newHandler(os.Stdout, lvl, format))
}

// Setup configures global logging with optional rotated file output.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if cfg.Logging.FileOutput {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Logging.LogDir, "panofuse.log"),
			LocalTime:  true,
			Compress:   cfg.Logging.Compress,
			MaxSize:    cfg.Logging.MaxSize,
			MaxAge:     cfg.Logging.MaxAge,
			MaxBackups: cfg.Logging.MaxBackups,
		})
	}

	logger := slog.New(newHandler(io.MultiWriter(writers...), cfg.Logging.Level, cfg.Logging.Format))
	slog.SetDefault(logger)

	logger.Debug("panofuse logging initialized",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file_output", cfg.Logging.FileOutput,
		"log_dir", cfg.Logging.LogDir,
	)
	return logger, nil
}

// SetLevel changes verbosity for every logger created by this package.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

func newHandler(w io.Writer, lvl, format string) slog.Handler {
	level.Set(parseLevel(lvl))
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return &TraditionalHandler{logger: log.New(w, "", log.LstdFlags), level: level}
}

// TraditionalHandler implements slog.Handler with traditional log formatting:
// "[LEVEL] message [k=v ...]".
type TraditionalHandler struct {
	logger *log.Logger
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

func (h *TraditionalHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *TraditionalHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := r.Message
	attrs := make([]string, 0, len(h.attrs)+r.NumAttrs())

	for _, a := range h.attrs {
		attrs = append(attrs, h.format(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.format(a))
		return true
	})

	if len(attrs) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(attrs, " "))
	}

	h.logger.Printf("[%s] %s", strings.ToUpper(r.Level.String()), msg)
	return nil
}

func (h *TraditionalHandler) format(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value)
}

func (h *TraditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *TraditionalHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogRunStart logs the beginning of a stitching run.
func LogRunStart(logger *slog.Logger, runType, runID, inputPath, outputPath string, options map[string]any) {
	logger.Info("run started",
		"type", runType,
		"id", runID,
		"input", inputPath,
		"output", outputPath,
		"options", options,
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runType, runID string, duration time.Duration, resultInfo map[string]any) {
	logger.Info("run completed successfully",
		"type", runType,
		"id", runID,
		"duration_ms", duration.Milliseconds(),
		"duration_human", duration.String(),
		"result", resultInfo,
	)
}

// LogRunError logs run failures.
func LogRunError(logger *slog.Logger, runType, runID string, duration time.Duration, err error, context map[string]any) {
	logger.Error("run failed",
		"type", runType,
		"id", runID,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
		"context", context,
	)
}

// LogFrameSkipped records a frame that could not be fused.
func LogFrameSkipped(logger *slog.Logger, runID string, index int, reason error) {
	logger.Warn("frame skipped",
		"run_id", runID,
		"frame", index,
		"reason", reason,
	)
}

// LogBackendStatus logs backend detection, mirroring tool probing.
func LogBackendStatus(logger *slog.Logger, kind, name string, available bool) {
	if available {
		logger.Debug("backend detected", "kind", kind, "name", name)
	} else {
		logger.Debug("backend not available", "kind", kind, "name", name)
	}
}
