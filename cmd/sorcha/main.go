// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/node"
	"github.com/sorchain/sorcha/sorcha"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Sorcha",
		Usage:     "Node of the Sorcha distributed ledger",
		Copyright: "2026 The Sorcha developers",
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			nodeIDFlag,
			p2pAddrFlag,
			apiAddrFlag,
			apiCorsFlag,
			seedFlag,
			validatorKeyFlag,
			enableMetricsFlag,
			verbosityFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	seeds, err := parseSeeds(ctx.String(seedFlag.Name))
	if err != nil {
		return err
	}

	validatorKey, err := loadValidatorKey(ctx.String(validatorKeyFlag.Name))
	if err != nil {
		return err
	}

	nodeID := ctx.String(nodeIDFlag.Name)
	if nodeID == "" {
		nodeID = uuid.NewString()
		logger.Info("no node id configured, generated one", "id", nodeID)
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	n, err := node.New(cfg, node.Options{
		NodeID:         nodeID,
		DataDir:        ctx.String(dataDirFlag.Name),
		P2PListenAddr:  ctx.String(p2pAddrFlag.Name),
		APIAddr:        ctx.String(apiAddrFlag.Name),
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
		Seeds:          seeds,
		ValidatorKey:   validatorKey,
	})
	if err != nil {
		return err
	}

	printStartupMessage(nodeID, ctx)

	return n.Run(handleExitSignal())
}

func loadConfig(ctx *cli.Context) (sorcha.Config, error) {
	if path := ctx.String(configFlag.Name); path != "" {
		return sorcha.LoadConfig(path)
	}
	return sorcha.DefaultConfig(), nil
}

func printStartupMessage(nodeID string, ctx *cli.Context) {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		dataDir = "Memory"
	}
	fmt.Printf(`Starting %v
    Version     %v
    Node ID     %v
    Data dir    %v
    API portal  %v
`,
		"Sorcha",
		fullVersion(),
		nodeID,
		dataDir,
		ctx.String(apiAddrFlag.Name))
}
