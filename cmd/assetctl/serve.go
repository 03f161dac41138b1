package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/golang/glog"

	"github.com/forgekit/assetcore/manager"
)

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "run the asset pipeline as a long-lived daemon with metrics/healthz and hot reload attached",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "metrics-addr", Value: ":9180", Usage: "address for the /metrics and /healthz listener"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx := context.Background()
		e, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.close(10 * time.Second)

		if e.hot != nil {
			if err := e.hot.Watch(cfg.AssetRootPath); err != nil {
				return fmt.Errorf("serve: watch %s: %w", cfg.AssetRootPath, err)
			}
			e.hot.Start()
			glog.Infof("serve: hot reload watching %s", cfg.AssetRootPath)
		}

		metrics := e.mgr.EnableMetrics()
		healthy := func() bool { return true }
		srv, err := manager.ServeMetrics(c.String("metrics-addr"), metrics, healthy)
		if err != nil {
			return fmt.Errorf("serve: metrics listener: %w", err)
		}
		glog.Infof("serve: metrics listening on %s", c.String("metrics-addr"))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		glog.Infof("serve: shutting down")
		_ = srv.Shutdown()
		return nil
	},
}
