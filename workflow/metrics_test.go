package workflow

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second registration on the same registry should fail")
	}
}

func TestMetrics_NilReceiverHooks(t *testing.T) {
	// A run configured without metrics calls the hooks on a nil receiver.
	var m *Metrics
	m.dispatchStarted()
	m.dispatchFinished("x", 0, nil)
	m.superstepCompleted(0)
	m.checkpointCommitted(0)
	m.runYielded()
	m.runFinished(StatusCompleted)
}

func TestMetrics_RunInstrumentation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	g := buildDoubler(t)
	run, err := Start(context.Background(), g, 21, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	drain(t, run)
	if run.Status() != StatusCompleted {
		t.Fatalf("status = %v (err: %v)", run.Status(), run.Err())
	}

	if got := testutil.ToFloat64(m.supersteps); got != 2 {
		t.Errorf("supersteps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inflightDispatches); got != 0 {
		t.Errorf("inflight_dispatches should settle at 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 0 {
		t.Errorf("queue_depth should settle at 0, got %v", got)
	}
	// One dispatch per executor, both successful.
	if got := testutil.CollectAndCount(m.dispatchLatency); got != 2 {
		t.Errorf("dispatch_latency_ms series = %d, want 2", got)
	}
}

func TestMetrics_YieldCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	run, err := Start(context.Background(), buildAsker(t), "q", WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	var request *InfoRequest
	for ev := range run.Events() {
		if ev.Kind == EventRequestInfo {
			request = ev.Request
			if err := run.Respond(context.Background(), InfoResponse{RequestID: request.RequestID, Data: 1}); err != nil {
				t.Fatalf("Respond: %v", err)
			}
		}
	}

	if got := testutil.ToFloat64(m.yields); got != 1 {
		t.Errorf("yields_total = %v, want 1", got)
	}
}
