package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cache"
	"github.com/forgekit/assetcore/cmn"
	"github.com/forgekit/assetcore/hotreload"
	"github.com/forgekit/assetcore/loader"
	"github.com/forgekit/assetcore/manager"
	"github.com/forgekit/assetcore/process"
	"github.com/forgekit/assetcore/registry"
	"github.com/forgekit/assetcore/source"
	"github.com/forgekit/assetcore/store"
	"github.com/forgekit/assetcore/stream"
)

// env bundles one fully-wired instance of every subsystem spec §4 names,
// assembled the way manager.New's doc comment describes ("wires the
// components together; call Start before issuing loads"). Subcommands each
// build their own env from the global --config/--root/--persistence flags
// rather than sharing a singleton, since every invocation of the CLI is a
// fresh process.
type env struct {
	cfg      *cmn.Config
	reg      *registry.Registry
	src      *source.Dispatcher
	pipeline *process.Pipeline
	cache    *cache.TwoLevel
	ld       *loader.Dispatcher
	mgr      *manager.Manager
	stream   *stream.Controller
	hot      *hotreload.Controller
	store    store.Store
}

func loadConfig(c *cli.Context) (*cmn.Config, error) {
	cfg, err := cmn.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if root := c.GlobalString("root"); root != "" {
		cfg.AssetRootPath = root
	}
	if dsn := c.GlobalString("persistence"); dsn != "" {
		cfg.PersistenceDSN = dsn
	}
	return cfg, nil
}

// bootstrap wires registry, sources, processors, cache, loader, manager,
// and — when enabled in cfg — the streaming controller and hot-reload
// controller. The caller owns the returned env's lifetime and must call
// close() on shutdown.
func bootstrap(ctx context.Context, cfg *cmn.Config) (*env, error) {
	reg := registry.New()

	local := source.NewLocalFS(cfg.AssetRootPath)
	srcs := []source.Source{local}
	if cfg.EnableMemoryMapping {
		srcs = append(srcs, source.NewMMapFS(cfg.AssetRootPath))
	}
	src := source.NewDispatcher(srcs...)

	pipeline := process.NewPipeline()
	registerProcessors(pipeline)

	mem := cache.NewMemory(cfg.CacheSizeMB<<20, cfg.Cache.EvictionPolicy)
	diskDir := cfg.DiskCacheDir
	if diskDir == "" {
		diskDir = filepath.Join(os.TempDir(), "assetcore-disk-cache")
	}
	disk, err := cache.NewDisk(diskDir)
	if err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	twoLevel := cache.NewTwoLevel(mem, disk)

	ld := loader.New(reg, src, pipeline, twoLevel, loader.Config{
		Workers:  cfg.WorkerThreads,
		RetryCap: cfg.RetryCap,
	})

	mgr := manager.New(cfg, reg, ld, pipeline, twoLevel, src)
	mgr.Start()

	e := &env{cfg: cfg, reg: reg, src: src, pipeline: pipeline, cache: twoLevel, ld: ld, mgr: mgr}

	if cfg.EnableStreaming {
		table := stream.NewTable(nil, cfg.Stream.HysteresisFactor)
		budget := stream.NewBudgetManager(cfg.MaxMemoryMB<<20, 0, 0)
		e.stream = stream.New(reg, ld, table, budget, stream.Config{Workers: cfg.StreamingWorkers})
		e.stream.Start()
	}

	if cfg.EnableHotReload {
		watcher, err := hotreload.NewFsnotifyWatcher()
		if err != nil {
			return nil, fmt.Errorf("hot reload watcher: %w", err)
		}
		hotCfg := hotreload.Config{
			DebouncePeriod:      time.Duration(cfg.DebounceMS) * time.Millisecond,
			BatchPeriod:         time.Duration(cfg.BatchMS) * time.Millisecond,
			EnableParityBackup:  cfg.EnableParityBackup,
			BackupDir:           filepath.Join(cfg.DiskCacheDir, "hotreload-backups"),
		}
		e.hot = hotreload.New(reg, ld, watcher, hotCfg)
	}

	st, err := openStore(ctx, cfg.PersistenceDSN)
	if err != nil {
		return nil, err
	}
	e.store = st

	return e, nil
}

// openStore picks store.MemoryStore or store.SQLStore by DSN scheme, per
// SPEC_FULL.md §6's "memory://" vs "postgres://..." persistence_dsn.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	switch {
	case dsn == "" || strings.HasPrefix(dsn, "memory://"):
		return store.NewMemoryStore()
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return store.NewSQLStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unrecognized persistence DSN %q", dsn)
	}
}

// registerProcessors wires every structural processor in process/ to its
// AssetType; none get a host Decoder here, so each falls back to its
// pass-through structural-only behavior (spec §4.F's "no decoder installed
// ... pass bytes through unchanged").
func registerProcessors(p *process.Pipeline) {
	p.Register(asset.TypeTexture, process.NewTextureProcessor(nil))
	p.Register(asset.TypeMesh, process.NewMeshProcessor(nil))
	p.Register(asset.TypeAudio, process.NewAudioProcessor(nil))
	p.Register(asset.TypeShader, process.NewShaderProcessor(nil))
	p.Register(asset.TypeBinary, process.NewBinaryProcessor())
	p.Register(asset.TypeConfig, process.NewConfigProcessor())
}

func (e *env) close(grace time.Duration) {
	if e.hot != nil {
		_ = e.hot.Stop()
	}
	if e.stream != nil {
		_ = e.stream.Stop(grace)
	}
	_ = e.mgr.Stop(grace)
	if e.store != nil {
		_ = e.store.Close()
	}
}
