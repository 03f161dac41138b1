// Package process implements the type-keyed processor pipeline (spec §4.F):
// decode/transcode stages producing canonical in-memory asset data plus a
// derived-content cache key, with a SHA-256-keyed result cache so identical
// inputs under identical options never re-run the processor.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OptimizeFor is the processor's size/speed tradeoff knob.
type OptimizeFor int

const (
	OptimizeSize OptimizeFor = iota
	OptimizeSpeed
)

// TextureOptions/MeshOptions/AudioOptions are the type_specific option
// groups from spec §4.F.
type TextureOptions struct {
	Codec      string `json:"codec"`
	MaxRes     int    `json:"max_res"`
	GenNormals bool   `json:"gen_normals"`
}

type MeshOptions struct {
	Weld             bool    `json:"weld"`
	GenerateNormals  bool    `json:"generate_normals"`
	SmoothingAngle   float64 `json:"smoothing_angle"`
	TargetTriangles  int     `json:"target_triangles"`
}

type AudioOptions struct {
	SampleRate   int    `json:"sample_rate"`
	BitDepth     int    `json:"bit_depth"`
	ToMono       bool   `json:"to_mono"`
	CodecQuality int    `json:"codec_quality"`
}

// Options is ProcessingOptions from spec §4.F.
type Options struct {
	Quality         asset.Quality     `json:"quality"`
	Compress        bool              `json:"compress"`
	GenerateMipmaps bool              `json:"generate_mipmaps"`
	OptimizeFor     OptimizeFor       `json:"optimize_for"`
	Texture         *TextureOptions   `json:"texture,omitempty"`
	Mesh            *MeshOptions      `json:"mesh,omitempty"`
	Audio           *AudioOptions     `json:"audio,omitempty"`
	Custom          map[string]string `json:"custom,omitempty"`
}

// Result is ProcessingResult from spec §4.F.
type Result struct {
	Success        bool
	ErrorMessage   string
	OutputBytes    []byte
	OutputMetadata map[string]string
	ProcessingInfo map[string]string
	ProcessingTime time.Duration
	Decoded        interface{}
}

// Decoder is the host-supplied callback boundary for concrete file-format
// decoding (spec's non-goal list: "Concrete file-format decoders... appear
// only as a processor contract"). A processor calls it with the raw input
// bytes and its own options; nil means "no decoder installed," in which
// case the processor still runs its structural stages and passes bytes
// through unchanged.
type Decoder func(input []byte, opts Options) (decoded interface{}, outputBytes []byte, err error)

// Processor is keyed by AssetType (spec §4.F).
type Processor interface {
	SupportedExtensions() []string
	CanProcess(path string, meta asset.Metadata) bool
	Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error)
	EstimateTime(inputSize int64, opts Options) time.Duration
	EstimateOutputSize(inputSize int64, opts Options) int64
}

// Stats are the pipeline-wide counters from spec §4.F.
type Stats struct {
	TotalProcessed uint64
	Successes      uint64
	Failures       uint64
	BytesProcessed uint64
	TotalTimeMs    uint64
}

// Pipeline dispatches to a registered Processor by AssetType and maintains
// the result cache keyed by (path, sha256(input), options).
type Pipeline struct {
	mtx        sync.RWMutex
	processors map[asset.Type]Processor

	resultCache sync.Map // string(key) -> *Result

	stats Stats
}

func NewPipeline() *Pipeline {
	return &Pipeline{processors: make(map[asset.Type]Processor)}
}

func (p *Pipeline) Register(t asset.Type, proc Processor) {
	p.mtx.Lock()
	p.processors[t] = proc
	p.mtx.Unlock()
}

func (p *Pipeline) Unregister(t asset.Type) {
	p.mtx.Lock()
	delete(p.processors, t)
	p.mtx.Unlock()
}

func (p *Pipeline) processorFor(t asset.Type) (Processor, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	proc, ok := p.processors[t]
	return proc, ok
}

// ContentKey computes the result-cache key: sha256(path || input ||
// options-json), hex-encoded.
func ContentKey(path string, input []byte, opts Options) (string, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", cmn.NewError(cmn.ErrDecode, "process: marshal options: %v", err)
	}
	h := sha256.New()
	h.Write([]byte(path))
	h.Write(input)
	h.Write(optsJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Process runs meta's type's processor, short-circuiting on a result-cache
// hit. The pipeline never touches package cache's asset-bytes caches — this
// is a processing-output cache keyed on content, a distinct concern (spec
// §4.F).
func (p *Pipeline) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	key, err := ContentKey(meta.Path, input, opts)
	if err != nil {
		return nil, err
	}
	if cached, ok := p.resultCache.Load(key); ok {
		return cached.(*Result), nil
	}

	proc, ok := p.processorFor(meta.Type)
	if !ok {
		return nil, cmn.NewError(cmn.ErrDecode, "process: no processor registered for type %s", meta.Type)
	}

	start := time.Now()
	result, err := proc.Process(ctx, input, meta, opts)
	elapsed := time.Since(start)

	atomic.AddUint64(&p.stats.TotalProcessed, 1)
	atomic.AddUint64(&p.stats.BytesProcessed, uint64(len(input)))
	atomic.AddUint64(&p.stats.TotalTimeMs, uint64(elapsed.Milliseconds()))

	if err != nil || result == nil || !result.Success {
		atomic.AddUint64(&p.stats.Failures, 1)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	result.ProcessingTime = elapsed
	atomic.AddUint64(&p.stats.Successes, 1)
	p.resultCache.Store(key, result)
	return result, nil
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		TotalProcessed: atomic.LoadUint64(&p.stats.TotalProcessed),
		Successes:      atomic.LoadUint64(&p.stats.Successes),
		Failures:       atomic.LoadUint64(&p.stats.Failures),
		BytesProcessed: atomic.LoadUint64(&p.stats.BytesProcessed),
		TotalTimeMs:    atomic.LoadUint64(&p.stats.TotalTimeMs),
	}
}

// ClearResultCache drops every cached processing result, used when source
// version advances and cached outputs must be invalidated.
func (p *Pipeline) ClearResultCache() {
	p.resultCache.Range(func(k, _ interface{}) bool {
		p.resultCache.Delete(k)
		return true
	})
}
