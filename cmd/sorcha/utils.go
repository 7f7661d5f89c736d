// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sorchain/sorcha/comm"
	"github.com/sorchain/sorcha/log"
)

func initLogger(ctx *cli.Context) {
	var lvl slog.Level
	switch ctx.Uint64(verbosityFlag.Name) {
	case 0:
		lvl = slog.LevelError
	case 1, 2:
		lvl = slog.LevelWarn
	case 3:
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	log.SetDefault(slog.New(log.NewTerminalHandler(os.Stderr, lvl, useColor)))
}

// parseSeeds splits a comma separated list of peerID@host:port entries.
func parseSeeds(list string) ([]comm.Seed, error) {
	if list == "" {
		return nil, nil
	}
	var seeds []comm.Seed
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, addr, found := strings.Cut(entry, "@")
		if !found || id == "" || addr == "" {
			return nil, errors.Errorf("invalid seed %q, want peerID@host:port", entry)
		}
		seeds = append(seeds, comm.Seed{PeerID: id, Addr: addr})
	}
	return seeds, nil
}

// loadValidatorKey reads a hex encoded ed25519 private key from keyFile.
// An empty path means no key is configured.
func loadValidatorKey(keyFile string) ([]byte, error) {
	if keyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "read validator key")
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrap(err, "decode validator key")
	}
	return key, nil
}

// handleExitSignal returns a context cancelled on SIGINT or SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}
