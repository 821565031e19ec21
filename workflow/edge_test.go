package workflow

import (
	"reflect"
	"testing"
)

func TestEdgeDirect_Route(t *testing.T) {
	t.Run("unconditional edge always delivers", func(t *testing.T) {
		e := &Edge{kind: EdgeDirect, sources: []string{"a"}, targets: []string{"b"}}
		dm := e.route(Envelope{Payload: 42, SourceID: "a"}, nil)
		if dm == nil {
			t.Fatal("expected delivery")
		}
		if got := dm["b"]; len(got) != 1 || got[0] != 42 {
			t.Errorf("expected [42] for b, got %v", got)
		}
	})

	t.Run("predicate true delivers", func(t *testing.T) {
		e := &Edge{
			kind: EdgeDirect, sources: []string{"a"}, targets: []string{"b"},
			pred: func(p any) bool { return p.(int) > 10 },
		}
		if dm := e.route(Envelope{Payload: 15, SourceID: "a"}, nil); dm == nil {
			t.Error("predicate true should deliver")
		}
	})

	t.Run("predicate false drops", func(t *testing.T) {
		e := &Edge{
			kind: EdgeDirect, sources: []string{"a"}, targets: []string{"b"},
			pred: func(p any) bool { return p.(int) > 10 },
		}
		if dm := e.route(Envelope{Payload: 5, SourceID: "a"}, nil); dm != nil {
			t.Errorf("predicate false should drop, got %v", dm)
		}
	})

	t.Run("addressed envelope to other target drops", func(t *testing.T) {
		e := &Edge{kind: EdgeDirect, sources: []string{"a"}, targets: []string{"b"}}
		if dm := e.route(Envelope{Payload: 1, SourceID: "a", TargetID: "c"}, nil); dm != nil {
			t.Errorf("expected no delivery for mismatched target, got %v", dm)
		}
	})
}

func TestEdgeFanOut_Route(t *testing.T) {
	targets := []string{"w0", "w1", "w2"}

	t.Run("no assigner broadcasts", func(t *testing.T) {
		e := &Edge{kind: EdgeFanOut, sources: []string{"a"}, targets: targets}
		dm := e.route(Envelope{Payload: "job", SourceID: "a"}, nil)
		if len(dm) != 3 {
			t.Fatalf("expected delivery to all 3 targets, got %v", dm)
		}
		for _, tgt := range targets {
			if got := dm[tgt]; len(got) != 1 || got[0] != "job" {
				t.Errorf("target %s: expected [job], got %v", tgt, got)
			}
		}
	})

	t.Run("assigner selects subset", func(t *testing.T) {
		e := &Edge{
			kind: EdgeFanOut, sources: []string{"a"}, targets: targets,
			assign: func(p any, n int) []int { return []int{0, 2} },
		}
		dm := e.route(Envelope{Payload: "job", SourceID: "a"}, nil)
		if len(dm) != 2 {
			t.Fatalf("expected 2 targets, got %v", dm)
		}
		if _, ok := dm["w1"]; ok {
			t.Error("w1 should not be selected")
		}
	})

	t.Run("assigner returning nothing drops", func(t *testing.T) {
		e := &Edge{
			kind: EdgeFanOut, sources: []string{"a"}, targets: targets,
			assign: func(p any, n int) []int { return nil },
		}
		if dm := e.route(Envelope{Payload: "job", SourceID: "a"}, nil); dm != nil {
			t.Errorf("empty selection should drop, got %v", dm)
		}
	})

	t.Run("out of range indices ignored", func(t *testing.T) {
		e := &Edge{
			kind: EdgeFanOut, sources: []string{"a"}, targets: targets,
			assign: func(p any, n int) []int { return []int{-1, 1, 7} },
		}
		dm := e.route(Envelope{Payload: "job", SourceID: "a"}, nil)
		if len(dm) != 1 {
			t.Fatalf("only index 1 is valid, got %v", dm)
		}
		if _, ok := dm["w1"]; !ok {
			t.Error("expected delivery to w1")
		}
	})
}

func TestEdgeFanIn_Route(t *testing.T) {
	sources := []string{"a", "b"}

	t.Run("waits for all sources", func(t *testing.T) {
		e := &Edge{kind: EdgeFanIn, sources: sources, targets: []string{"join"}}
		fis := newFanInState()

		if dm := e.route(Envelope{Payload: 1, SourceID: "a"}, fis); dm != nil {
			t.Fatalf("incomplete barrier should buffer, got %v", dm)
		}
		dm := e.route(Envelope{Payload: 2, SourceID: "b"}, fis)
		if dm == nil {
			t.Fatal("complete barrier should flush")
		}
		got, ok := dm["join"][0].([]int)
		if !ok {
			t.Fatalf("uniform int payloads should coalesce to []int, got %T", dm["join"][0])
		}
		if !reflect.DeepEqual(got, []int{1, 2}) {
			t.Errorf("expected [1 2] in arrival order, got %v", got)
		}
	})

	t.Run("flush preserves global arrival order across sources", func(t *testing.T) {
		e := &Edge{kind: EdgeFanIn, sources: sources, targets: []string{"join"}}
		fis := newFanInState()

		// b arrives twice before a completes the barrier.
		e.route(Envelope{Payload: 10, SourceID: "b"}, fis)
		e.route(Envelope{Payload: 20, SourceID: "b"}, fis)
		dm := e.route(Envelope{Payload: 30, SourceID: "a"}, fis)
		if dm == nil {
			t.Fatal("expected flush")
		}
		got := dm["join"][0].([]int)
		if !reflect.DeepEqual(got, []int{10, 20, 30}) {
			t.Errorf("expected global arrival order [10 20 30], got %v", got)
		}
	})

	t.Run("barrier repeats after flush", func(t *testing.T) {
		e := &Edge{kind: EdgeFanIn, sources: sources, targets: []string{"join"}}
		fis := newFanInState()

		e.route(Envelope{Payload: 1, SourceID: "a"}, fis)
		if dm := e.route(Envelope{Payload: 2, SourceID: "b"}, fis); dm == nil {
			t.Fatal("first flush expected")
		}

		// Buffers cleared: a lone arrival must wait again.
		if dm := e.route(Envelope{Payload: 3, SourceID: "a"}, fis); dm != nil {
			t.Errorf("buffers should be empty after flush, got %v", dm)
		}
	})

	t.Run("heterogeneous payloads coalesce to any slice", func(t *testing.T) {
		e := &Edge{kind: EdgeFanIn, sources: sources, targets: []string{"join"}}
		fis := newFanInState()

		e.route(Envelope{Payload: 1, SourceID: "a"}, fis)
		dm := e.route(Envelope{Payload: "two", SourceID: "b"}, fis)
		if dm == nil {
			t.Fatal("expected flush")
		}
		got, ok := dm["join"][0].([]any)
		if !ok {
			t.Fatalf("mixed payload types should coalesce to []any, got %T", dm["join"][0])
		}
		if len(got) != 2 || got[0] != 1 || got[1] != "two" {
			t.Errorf("expected [1 two], got %v", got)
		}
	})

	t.Run("addressed envelope to other target is not buffered", func(t *testing.T) {
		e := &Edge{kind: EdgeFanIn, sources: sources, targets: []string{"join"}}
		fis := newFanInState()

		e.route(Envelope{Payload: 1, SourceID: "a", TargetID: "elsewhere"}, fis)
		if len(fis.buffers) != 0 {
			t.Error("filtered envelope should not be buffered")
		}
	})
}

func TestEdgeKind_String(t *testing.T) {
	cases := []struct {
		kind EdgeKind
		want string
	}{
		{EdgeDirect, "direct"},
		{EdgeFanOut, "fan_out"},
		{EdgeFanIn, "fan_in"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("EdgeKind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestEdgeID(t *testing.T) {
	id := edgeID(EdgeFanIn, []string{"a", "b"}, []string{"join"}, 3)
	if id != "fan_in:a+b=>join#3" {
		t.Errorf("unexpected edge ID %q", id)
	}
}
