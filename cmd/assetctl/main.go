// Package main is assetctl, the command-line front end over the asset
// pipeline (spec §4.H's Manager facade plus the hot-reload and store
// subsystems): load/reload/watch/query one-shot commands, and a serve
// subcommand that runs the pipeline as a long-lived daemon with the
// Prometheus/healthz listener and file watcher attached.
//
// Grounded on the teacher's cmd/aisnodeprofile/main.go shape (os.Exit(run()),
// ldflags-injected version/build) and cmd/cli's command-surface idiom,
// rebuilt on github.com/urfave/cli (the teacher's own cmd/cli sub-module
// dependency) rather than stdlib flag, since assetctl needs subcommands.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/golang/glog"
)

// set by ldflags at build time.
var (
	version string
	build   string
)

func main() {
	os.Exit(run())
}

func run() int {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		glog.Errorf("assetctl: %v", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "assetctl"
	app.Usage = "inspect and drive an assetcore asset pipeline"
	app.Version = fmt.Sprintf("%s (build %s)", versionOrDev(), build)
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a JSON config file (cmn.Config shape)"},
		cli.StringFlag{Name: "root", Usage: "asset root path, overrides config/AssetRootPath"},
		cli.StringFlag{Name: "persistence", Usage: `store DSN, e.g. "memory://" or "postgres://..."`},
	}
	app.Commands = []cli.Command{
		loadCommand,
		reloadCommand,
		watchCommand,
		queryCommand,
		gcCommand,
		serveCommand,
	}
	return app
}

func versionOrDev() string {
	if version == "" {
		return "dev"
	}
	return version
}
