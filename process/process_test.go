package process

import (
	"context"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
)

func TestConfigProcessorJSON(t *testing.T) {
	p := NewPipeline()
	p.Register(asset.TypeConfig, NewConfigProcessor())

	input := []byte(`{"width": 1920, "height": 1080}`)
	meta := asset.Metadata{Path: "settings.json", Type: asset.TypeConfig}
	res, err := p.Process(context.Background(), input, meta, Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %s", res.ErrorMessage)
	}
	decoded, ok := res.Decoded.(map[string]interface{})
	if !ok || decoded["width"].(float64) != 1920 {
		t.Fatalf("unexpected decoded value: %v", res.Decoded)
	}
}

func TestResultCacheShortCircuits(t *testing.T) {
	p := NewPipeline()
	counter := &countingProcessor{}
	p.Register(asset.TypeBinary, counter)

	input := []byte("same bytes")
	meta := asset.Metadata{Path: "a.bin", Type: asset.TypeBinary}
	for i := 0; i < 5; i++ {
		if _, err := p.Process(context.Background(), input, meta, Options{}); err != nil {
			t.Fatal(err)
		}
	}
	if counter.calls != 1 {
		t.Fatalf("processor invoked %d times, want 1 (result cache should short-circuit)", counter.calls)
	}
}

type countingProcessor struct{ calls int }

func (c *countingProcessor) SupportedExtensions() []string { return nil }
func (c *countingProcessor) CanProcess(string, asset.Metadata) bool { return true }
func (c *countingProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	c.calls++
	return &Result{Success: true, OutputBytes: input}, nil
}
func (c *countingProcessor) EstimateTime(int64, Options) time.Duration { return 0 }
func (c *countingProcessor) EstimateOutputSize(n int64, _ Options) int64 { return n }
