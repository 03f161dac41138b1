package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
)

var watchCommand = cli.Command{
	Name:      "watch",
	Usage:     "watch a directory and hot-reload assets on change until interrupted",
	ArgsUsage: "<dir>",
	Action: func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			return cli.NewExitError("watch: missing <dir>", 2)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		cfg.EnableHotReload = true
		ctx := context.Background()
		e, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.close(5 * time.Second)
		if e.hot == nil {
			return fmt.Errorf("watch: hot reload controller not constructed")
		}
		if err := e.hot.Watch(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		e.hot.Start()
		fmt.Printf("watching %s; Ctrl-C to stop\n", dir)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sig:
				stats := e.hot.Stats()
				fmt.Printf("stopping; reload events=%d ok=%d failed=%d\n",
					stats.ReloadEvents, stats.SuccessfulReloads, stats.FailedReloads)
				return nil
			case <-ticker.C:
				stats := e.hot.Stats()
				fmt.Printf("watched=%d events=%d ok=%d failed=%d ignored=%d\n",
					stats.FilesWatched, stats.ReloadEvents, stats.SuccessfulReloads,
					stats.FailedReloads, stats.IgnoredEvents)
			}
		}
	},
}
