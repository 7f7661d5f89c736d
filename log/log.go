// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

var root atomic.Pointer[slog.Logger]

func init() {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	root.Store(slog.New(NewTerminalHandler(os.Stderr, slog.LevelInfo, useColor)))
}

// Root returns the process-wide root logger.
func Root() *slog.Logger {
	return root.Load()
}

// SetDefault replaces the root logger. Loggers already derived via WithContext
// keep the old handler.
func SetDefault(l *slog.Logger) {
	root.Store(l)
}

// WithContext derives a logger carrying the given key/value context.
// The conventional first pair is ("pkg", "<package name>").
func WithContext(keyValues ...any) *slog.Logger {
	return Root().With(keyValues...)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}
