package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 在 slog.Handler 外包一层，提供动态级别和文件同步
type clogHandler struct {
	slog.Handler
	level *slog.LevelVar
	file  *os.File // 仅文件输出时非空
}

func newHandler(config *Config, o *options) (*clogHandler, error) {
	w, file, err := openOutput(config.Output, o)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	if l, err := ParseLevel(config.Level); err == nil {
		level.Set(l.slogLevel())
	}

	opts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       level,
		ReplaceAttr: replaceAttr(config.SourceRoot),
	}

	var base slog.Handler
	if strings.EqualFold(config.Format, "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return &clogHandler{Handler: base, level: level, file: file}, nil
}

func openOutput(output string, o *options) (io.Writer, *os.File, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "buffer":
		if o.buffer == nil {
			return nil, nil, fmt.Errorf("buffer output requires WithBuffer option")
		}
		return o.buffer, nil, nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f, nil
}

// replaceAttr 级别输出大写名称，时间使用 timeFormat，source 改写为 caller=file:line
func replaceAttr(sourceRoot string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(levelLabel(level))
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARN"
	case level <= slog.LevelError:
		return "ERROR"
	default:
		return "FATAL"
	}
}

func trimSourcePath(file, sourceRoot string) string {
	if sourceRoot != "" {
		if rel, err := filepath.Rel(sourceRoot, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if idx := strings.Index(file, "idemkit"); idx != -1 {
		return file[idx:]
	}
	return file
}

func (h *clogHandler) SetLevel(level Level) error {
	h.level.Set(level.slogLevel())
	return nil
}

func (h *clogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &clogHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level, file: h.file}
}

func (h *clogHandler) WithGroup(name string) slog.Handler {
	return &clogHandler{Handler: h.Handler.WithGroup(name), level: h.level, file: h.file}
}

// Flush 文件输出时调用 Sync，标准输出和缓冲区无需处理
func (h *clogHandler) Flush() {
	if h.file != nil {
		_ = h.file.Sync()
	}
}
