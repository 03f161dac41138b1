package cmn

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator is implemented by every config section that needs structural
// validation beyond what JSON decoding already guarantees. Mirrors the
// teacher's cmn.Validator / Config.Validate() aggregate-validation shape
// (cmn/config.go: BackendConf, CksumConf, LRUConf, ... each implement it,
// Config.Validate() runs them all).
type Validator interface {
	Validate() error
}

// Config is the root AssetManagerConfig (spec §4.H), expanded with the
// NEW fields SPEC_FULL.md §6 adds (source priority list, parity backup,
// persistence DSN).
type Config struct {
	MaxMemoryMB         int64  `json:"max_memory_mb"`
	WorkerThreads       int    `json:"worker_threads"`
	CacheSizeMB         int64  `json:"cache_size_mb"`
	EnableHotReload     bool   `json:"enable_hot_reload"`
	EnableCompression   bool   `json:"enable_compression"`
	EnableStreaming     bool   `json:"enable_streaming"`
	EnableMemoryMapping bool   `json:"enable_memory_mapping"`
	AssetRootPath       string `json:"asset_root_path"`
	DiskCacheDir        string `json:"disk_cache_dir"`
	StreamingWorkers    int    `json:"streaming_workers"`
	EnableParityBackup  bool   `json:"enable_parity_backup"`
	SourcePriority      []string `json:"source_priority"`
	PersistenceDSN      string   `json:"persistence_dsn"`
	DebounceMS          int64    `json:"debounce_ms"`
	BatchMS             int64    `json:"batch_ms"`
	RetryCap            int      `json:"retry_cap"`

	Cache  CacheConf  `json:"cache"`
	LRU    LRUConf    `json:"lru"`
	Stream StreamConf `json:"stream"`
}

type CacheConf struct {
	EvictionPolicy string `json:"eviction_policy"` // lru|lfu|fifo|random|largest
}

func (c *CacheConf) Validate() error {
	switch c.EvictionPolicy {
	case "", "lru", "lfu", "fifo", "random", "largest":
		return nil
	default:
		return fmt.Errorf("invalid cache.eviction_policy %q", c.EvictionPolicy)
	}
}

type LRUConf struct {
	MaxAge time.Duration `json:"max_age"`
}

func (c *LRUConf) Validate() error {
	if c.MaxAge < 0 {
		return fmt.Errorf("invalid lru.max_age %v", c.MaxAge)
	}
	return nil
}

type StreamConf struct {
	HysteresisFactor       float64 `json:"hysteresis_factor"`
	MaxPredictionsPerFrame int     `json:"max_predictions_per_frame"`
	ConfidenceThreshold    float64 `json:"confidence_threshold"`
	PredictionHorizonSec   float64 `json:"prediction_horizon_sec"`
}

func (c *StreamConf) Validate() error {
	if c.HysteresisFactor < 0 || c.HysteresisFactor >= 1 {
		return fmt.Errorf("invalid stream.hysteresis_factor %v", c.HysteresisFactor)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.WorkerThreads < 0 {
		return fmt.Errorf("invalid worker_threads %d", c.WorkerThreads)
	}
	if c.MaxMemoryMB < 0 || c.CacheSizeMB < 0 {
		return fmt.Errorf("invalid memory/cache budget")
	}
	for _, v := range []Validator{&c.Cache, &c.LRU, &c.Stream} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// interface guards, per teacher's own "NOTE: new validators must be run
// via Config.Validate()" convention.
var (
	_ Validator = (*CacheConf)(nil)
	_ Validator = (*LRUConf)(nil)
	_ Validator = (*StreamConf)(nil)
	_ Validator = (*Config)(nil)
)

// DefaultConfig returns the built-in defaults named throughout spec.md
// (hysteresis 0.1, debounce/batch 100ms, retry cap 3, worker pool sized to
// hardware concurrency).
func DefaultConfig() *Config {
	return &Config{
		MaxMemoryMB:         512,
		WorkerThreads:       0, // 0 => hw concurrency, resolved by loader.Dispatcher
		CacheSizeMB:         256,
		EnableHotReload:     true,
		EnableCompression:   true,
		EnableStreaming:     true,
		EnableMemoryMapping: false,
		AssetRootPath:       ".",
		DiskCacheDir:        "./.asset-cache",
		StreamingWorkers:    4,
		SourcePriority:      []string{"local"},
		PersistenceDSN:      "memory://",
		DebounceMS:          100,
		BatchMS:             100,
		RetryCap:            3,
		Cache:               CacheConf{EvictionPolicy: "lru"},
		Stream: StreamConf{
			HysteresisFactor:       0.1,
			MaxPredictionsPerFrame: 8,
			ConfidenceThreshold:    0.5,
			PredictionHorizonSec:   2.0,
		},
	}
}

// ApplyEnvOverrides applies the spec-§6 environment overrides: ASSET_ROOT,
// ASSET_CACHE_DIR, ASSET_MEM_BUDGET_MB, ASSET_WORKERS.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ASSET_ROOT"); v != "" {
		c.AssetRootPath = v
	}
	if v := os.Getenv("ASSET_CACHE_DIR"); v != "" {
		c.DiskCacheDir = v
	}
	if v := os.Getenv("ASSET_MEM_BUDGET_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMemoryMB = n
		}
	}
	if v := os.Getenv("ASSET_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerThreads = n
		}
	}
}

// LoadConfig reads a JSON-shaped config file (§6), applies env overrides,
// fills in defaults, and validates. Grounded on cmn/config.go's load path
// (decode via jsoniter, then Validate()).
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewError(ErrIO, "read config %s: %v", path, err)
		}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, NewError(ErrDecode, "parse config %s: %v", path, err)
		}
	}
	c.ApplyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

///////////////////////
// globalConfigOwner //
///////////////////////

// GCO (Global Config Owner) mirrors the teacher's cmn.GCO: a single atomic
// value holding the current *Config, with a mutex-serialized
// begin/commit/discard update cycle so concurrent updates can't interleave.
type globalConfigOwner struct {
	mtx sync.Mutex
	c   atomic.Value
}

var GCO = &globalConfigOwner{}

func (gco *globalConfigOwner) Get() *Config {
	v := gco.c.Load()
	if v == nil {
		return DefaultConfig()
	}
	return v.(*Config)
}

func (gco *globalConfigOwner) Put(config *Config) { gco.c.Store(config) }

// BeginUpdate must be followed by CommitUpdate or DiscardUpdate.
func (gco *globalConfigOwner) BeginUpdate() *Config {
	gco.mtx.Lock()
	clone := *gco.Get()
	return &clone
}

func (gco *globalConfigOwner) CommitUpdate(config *Config) {
	gco.c.Store(config)
	gco.mtx.Unlock()
}

func (gco *globalConfigOwner) DiscardUpdate() { gco.mtx.Unlock() }
