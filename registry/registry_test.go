package registry

import (
	"testing"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	id1 := r.Register("textures/a.png", asset.TypeTexture)
	id2 := r.Register("textures/a.png", asset.TypeTexture)
	if id1 != id2 {
		t.Fatalf("register not idempotent: %d != %d", id1, id2)
	}
}

func TestInstallAndRefCount(t *testing.T) {
	r := New()
	id := r.Register("textures/a.png", asset.TypeTexture)
	if err := r.Install(id, &asset.Asset{}); err != nil {
		t.Fatalf("install: %v", err)
	}
	h, ok := r.Get(id)
	if !ok {
		t.Fatal("get: not found after install")
	}
	if h.Asset().RefCount != 1 {
		t.Fatalf("ref_count = %d, want 1", h.Asset().RefCount)
	}
	h.Release()
	if h.Asset().RefCount != 0 {
		t.Fatalf("ref_count after release = %d, want 0", h.Asset().RefCount)
	}
	if n := r.Gc(); n != 1 {
		t.Fatalf("gc collected %d, want 1", n)
	}
	if _, ok := r.Get(id); ok {
		t.Fatal("asset still gettable after gc")
	}
}

func TestAddDependencyCycle(t *testing.T) {
	r := New()
	a := r.Register("material.mat", asset.TypeMaterial)
	b := r.Register("shader.glsl", asset.TypeShader)
	if err := r.AddDependency(a, b); err != nil {
		t.Fatalf("add_dependency a->b: %v", err)
	}
	if err := r.AddDependency(b, a); err == nil {
		t.Fatal("expected WouldCreateCycle, got nil")
	} else if !isTagged(err, cmn.ErrWouldCreateCycle) {
		t.Fatalf("expected WouldCreateCycle, got %v", err)
	}
}

func isTagged(err error, tag error) bool {
	te, ok := err.(*cmn.TaggedError)
	return ok && te.Tag == tag
}

type recordingObserver struct {
	transitions []string
}

func (o *recordingObserver) OnStateChange(id asset.ID, old, new asset.State) {
	o.transitions = append(o.transitions, old.String()+"->"+new.String())
}
func (o *recordingObserver) OnAssetReloaded(id asset.ID, path string) {}
func (o *recordingObserver) OnLoadCompleted(id asset.ID, err error)   {}

func TestObserverNotifiedOnInstall(t *testing.T) {
	r := New()
	obs := &recordingObserver{}
	r.RegisterObserver(obs)
	id := r.Register("x.png", asset.TypeTexture)
	if err := r.Install(id, &asset.Asset{}); err != nil {
		t.Fatal(err)
	}
	if len(obs.transitions) != 1 || obs.transitions[0] != "Unloaded->Loaded" {
		t.Fatalf("unexpected transitions: %v", obs.transitions)
	}
}

func TestTopologicalLoadOrder(t *testing.T) {
	r := New()
	tex := r.Register("t.png", asset.TypeTexture)
	shader := r.Register("s.glsl", asset.TypeShader)
	mat := r.Register("m.mat", asset.TypeMaterial)
	if err := r.AddDependency(mat, shader); err != nil {
		t.Fatal(err)
	}
	if err := r.AddDependency(mat, tex); err != nil {
		t.Fatal(err)
	}
	order := r.TopologicalLoadOrder([]asset.ID{tex, shader, mat})
	if order[len(order)-1] != mat {
		t.Fatalf("material must load last, got %v", order)
	}
}
