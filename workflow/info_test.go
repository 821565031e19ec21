package workflow

import (
	"context"
	"testing"
)

// buildPipeline constructs a small three-node graph used by the fingerprint
// tests. Every call yields a structurally identical, freshly built graph.
func buildPipeline(t *testing.T) *Graph {
	t.Helper()

	ingest := NewExecutor("ingest").Kind("Ingest")
	OnMessage(ingest, func(ctx context.Context, n int, ec *ExecContext) error { return nil })
	Emits[string](ingest)
	ingestE, err := ingest.Build()
	if err != nil {
		t.Fatal(err)
	}

	format := NewExecutor("format").Kind("Format")
	OnMessage(format, func(ctx context.Context, s string, ec *ExecContext) error { return nil })
	Outputs[string](format)
	formatE, err := format.Build()
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder("ingest")
	b.AddExecutor(ingestE).
		AddExecutor(formatE).
		AddEdge("ingest", "format", nil).
		AddRequestPort(NewRequestPort[string, int]("oracle")).
		WithOutputFrom("format")
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestWorkflowInfo_IsMatch(t *testing.T) {
	t.Run("identical builds match", func(t *testing.T) {
		g1 := buildPipeline(t)
		g2 := buildPipeline(t)
		if !g1.Info().IsMatch(g2.Info()) {
			t.Error("structurally identical graphs should match")
		}
	})

	t.Run("match is symmetric", func(t *testing.T) {
		g1 := buildPipeline(t)
		g2 := buildPipeline(t)
		if g1.Info().IsMatch(g2.Info()) != g2.Info().IsMatch(g1.Info()) {
			t.Error("IsMatch should be symmetric")
		}
	})

	t.Run("different executor kind does not match", func(t *testing.T) {
		g1 := buildPipeline(t)
		other := g2WithKind(t, "Renamed")
		if g1.Info().IsMatch(other.Info()) {
			t.Error("differing executor kind should not match")
		}
	})

	t.Run("extra edge does not match", func(t *testing.T) {
		g1 := buildPipeline(t)

		ingest := NewExecutor("ingest").Kind("Ingest")
		OnMessage(ingest, func(ctx context.Context, n int, ec *ExecContext) error { return nil })
		Emits[string](ingest)
		ingestE, _ := ingest.Build()

		format := NewExecutor("format").Kind("Format")
		OnMessage(format, func(ctx context.Context, s string, ec *ExecContext) error { return nil })
		Outputs[string](format)
		formatE, _ := format.Build()

		b := NewBuilder("ingest")
		b.AddExecutor(ingestE).AddExecutor(formatE).
			AddEdge("ingest", "format", nil).
			AddEdge("ingest", "format", func(any) bool { return true }).
			AddRequestPort(NewRequestPort[string, int]("oracle")).
			WithOutputFrom("format")
		g2, err := b.Build()
		if err != nil {
			t.Fatal(err)
		}
		if g1.Info().IsMatch(g2.Info()) {
			t.Error("extra edge should break the match")
		}
	})

	t.Run("different port types do not match", func(t *testing.T) {
		g1 := buildPipeline(t)

		ingest := NewExecutor("ingest").Kind("Ingest")
		OnMessage(ingest, func(ctx context.Context, n int, ec *ExecContext) error { return nil })
		Emits[string](ingest)
		ingestE, _ := ingest.Build()

		format := NewExecutor("format").Kind("Format")
		OnMessage(format, func(ctx context.Context, s string, ec *ExecContext) error { return nil })
		Outputs[string](format)
		formatE, _ := format.Build()

		b := NewBuilder("ingest")
		b.AddExecutor(ingestE).AddExecutor(formatE).
			AddEdge("ingest", "format", nil).
			AddRequestPort(NewRequestPort[string, string]("oracle")).
			WithOutputFrom("format")
		g2, err := b.Build()
		if err != nil {
			t.Fatal(err)
		}
		if g1.Info().IsMatch(g2.Info()) {
			t.Error("differing port response type should break the match")
		}
	})
}

// g2WithKind rebuilds the pipeline with a different kind on the format node.
func g2WithKind(t *testing.T, kind string) *Graph {
	t.Helper()

	ingest := NewExecutor("ingest").Kind("Ingest")
	OnMessage(ingest, func(ctx context.Context, n int, ec *ExecContext) error { return nil })
	Emits[string](ingest)
	ingestE, _ := ingest.Build()

	format := NewExecutor("format").Kind(kind)
	OnMessage(format, func(ctx context.Context, s string, ec *ExecContext) error { return nil })
	Outputs[string](format)
	formatE, _ := format.Build()

	b := NewBuilder("ingest")
	b.AddExecutor(ingestE).AddExecutor(formatE).
		AddEdge("ingest", "format", nil).
		AddRequestPort(NewRequestPort[string, int]("oracle")).
		WithOutputFrom("format")
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}
