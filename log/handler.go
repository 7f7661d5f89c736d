// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
)

type discardHandler struct{}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }

func (h *discardHandler) Enabled(_ context.Context, _ slog.Level) bool { return false }

func (h *discardHandler) WithGroup(_ string) slog.Handler { return h }

func (h *discardHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

// TerminalHandler formats records for human consumption:
//
//	[LEVEL] [Jan 02 15:04:05] MESSAGE key=value key=value ...
//
// It is intended for interactive use; ship structured handlers to collectors.
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	lvl      slog.Level
	useColor bool
	attrs    []slog.Attr

	buf []byte
}

// NewTerminalHandler creates a terminal handler writing records at or above
// lvl to wr.
func NewTerminalHandler(wr io.Writer, lvl slog.Level, useColor bool) *TerminalHandler {
	return &TerminalHandler{
		wr:       wr,
		lvl:      lvl,
		useColor: useColor,
	}
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl
}

func (h *TerminalHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{
		wr:       h.wr,
		lvl:      h.lvl,
		useColor: h.useColor,
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorCyan   = 36
)

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := h.buf[:0]
	lvl, color := levelString(r.Level)
	if h.useColor {
		buf = append(buf, fmt.Sprintf("\x1b[%dm[%s]\x1b[0m", color, lvl)...)
	} else {
		buf = append(buf, '[')
		buf = append(buf, lvl...)
		buf = append(buf, ']')
	}
	buf = append(buf, ' ', '[')
	buf = r.Time.AppendFormat(buf, "Jan 02 15:04:05")
	buf = append(buf, ']', ' ')
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = appendAttr(buf, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		buf = appendAttr(buf, attr)
		return true
	})
	buf = append(buf, '\n')
	h.buf = buf

	_, err := h.wr.Write(buf)
	return err
}

func appendAttr(buf []byte, attr slog.Attr) []byte {
	buf = append(buf, ' ')
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	val := attr.Value.String()
	if needsQuoting(val) {
		return strconv.AppendQuote(buf, val)
	}
	return append(buf, val...)
}

func needsQuoting(s string) bool {
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

func levelString(lvl slog.Level) (string, int) {
	switch {
	case lvl >= slog.LevelError:
		return "EROR", colorRed
	case lvl >= slog.LevelWarn:
		return "WARN", colorYellow
	case lvl >= slog.LevelInfo:
		return "INFO", colorGreen
	default:
		return "DBUG", colorCyan
	}
}
