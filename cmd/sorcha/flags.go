// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a yaml config file; unset fields fall back to defaults",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for register databases; empty runs fully in memory",
	}
	nodeIDFlag = cli.StringFlag{
		Name:  "node-id",
		Usage: "stable identity of this node; a random one is generated when empty",
	}
	p2pAddrFlag = cli.StringFlag{
		Name:  "p2p-addr",
		Value: ":8671",
		Usage: "peer to peer listening address",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8670",
		Usage: "API service listening address; empty disables the API",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	seedFlag = cli.StringFlag{
		Name:  "seed",
		Usage: "comma separated seed peers, each as peerID@host:port",
	}
	validatorKeyFlag = cli.StringFlag{
		Name:  "validator-key",
		Usage: "path to a hex encoded ed25519 private key used to approve dockets",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "expose prometheus metrics on the API address",
	}
	verbosityFlag = cli.Uint64Flag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-4: error, warn, warn, info, debug)",
	}
)
