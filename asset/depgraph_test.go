package asset

import "testing"

func TestWouldCreateCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge(2, 1) // 2 depends on 1
	g.AddEdge(3, 2) // 3 depends on 2

	tests := []struct {
		a, b ID
		want bool
	}{
		{1, 3, true},  // 1->3 would cycle: 3 already (transitively) depends on... wait 3 depends on 2 depends on 1, so 1->3 means 1 depends on 3, and 3 depends on 1 transitively => cycle
		{4, 1, false}, // fresh edge, no cycle
		{1, 1, true},  // self edge always a cycle
	}
	for _, tc := range tests {
		if got := g.WouldCreateCycle(tc.a, tc.b); got != tc.want {
			t.Errorf("WouldCreateCycle(%d,%d) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := NewDependencyGraph()
	// material(3) depends on shader(2) and texture(1)
	g.AddEdge(3, 2)
	g.AddEdge(3, 1)

	order := g.TopologicalOrder([]ID{1, 2, 3})
	pos := make(map[ID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[1] > pos[3] || pos[2] > pos[3] {
		t.Fatalf("dependencies must precede dependent, got order %v", order)
	}
	// equal-rank ties (1 and 2 both have in-degree 0) break ascending by ID
	if pos[1] != 0 || pos[2] != 1 {
		t.Fatalf("expected ascending-id tie-break [1,2,...], got %v", order)
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge(3, 2)
	g.AddEdge(2, 1)

	deps := g.TransitiveDependents(1)
	want := map[ID]bool{2: true, 3: true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want %v", deps, want)
	}
	for _, id := range deps {
		if !want[id] {
			t.Errorf("unexpected dependent %d", id)
		}
	}
}

func TestFromPathDeterministic(t *testing.T) {
	a := FromPath("textures/brick.png")
	b := FromPath("textures/brick.png")
	if a != b {
		t.Fatalf("FromPath not deterministic: %d != %d", a, b)
	}
	if a == Invalid {
		t.Fatalf("FromPath produced Invalid id")
	}
}

func TestTypeFromExtension(t *testing.T) {
	tests := map[string]Type{
		"png":   TypeTexture,
		".PNG":  TypeTexture,
		"wav":   TypeAudio,
		"glsl":  TypeShader,
		"zorp":  TypeUnknown,
	}
	for ext, want := range tests {
		if got := TypeFromExtension(ext); got != want {
			t.Errorf("TypeFromExtension(%q) = %v, want %v", ext, got, want)
		}
	}
}
