package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// EdgeKind identifies the routing strategy of an edge.
type EdgeKind int

const (
	// EdgeDirect routes a message from one source to one target, optionally
	// gated by a predicate over the payload.
	EdgeDirect EdgeKind = iota

	// EdgeFanOut routes a message from one source to an ordered set of
	// targets, optionally narrowed by an assigner function.
	EdgeFanOut

	// EdgeFanIn joins messages from an ordered set of sources into a single
	// target, releasing buffered payloads once every source has contributed.
	EdgeFanIn
)

// String returns the stable name of the edge kind, used in WorkflowInfo
// fingerprints and checkpoint documents.
func (k EdgeKind) String() string {
	switch k {
	case EdgeDirect:
		return "direct"
	case EdgeFanOut:
		return "fan_out"
	case EdgeFanIn:
		return "fan_in"
	default:
		return fmt.Sprintf("edge_kind(%d)", int(k))
	}
}

// Predicate evaluates a payload to decide whether a Direct edge delivers it.
//
// Predicates should be pure functions (deterministic, no side effects):
// routing runs inside the superstep commit barrier and its decisions are
// part of the checkpointed execution history.
type Predicate func(payload any) bool

// Assigner selects which of a FanOut edge's targets receive a payload.
// It is given the payload and the number of declared targets and returns the
// indices of the targets to deliver to. An empty result means no delivery.
// Out-of-range indices are ignored.
type Assigner func(payload any, targets int) []int

// Edge is a routing rule connecting source executors to target executors.
//
// Edges are immutable after graph build. Direct and FanOut edges are
// stateless between invocations; FanIn edges keep per-run buffer state in
// the run's edge-state arena (keyed by the edge ID), never on the Edge
// itself, so a single graph instance can serve many runs.
type Edge struct {
	id      string
	kind    EdgeKind
	sources []string
	targets []string
	pred    Predicate
	assign  Assigner
}

// ID returns the deterministic edge identifier. IDs encode the kind, the
// endpoints, and the declaration ordinal, so two graphs built by the same
// code produce identical IDs and checkpointed edge state maps cleanly onto
// a freshly built graph.
func (e *Edge) ID() string { return e.id }

// Kind returns the edge's routing strategy.
func (e *Edge) Kind() EdgeKind { return e.kind }

// Sources returns the declared source executor IDs.
func (e *Edge) Sources() []string { return append([]string(nil), e.sources...) }

// Targets returns the declared target executor IDs in order.
func (e *Edge) Targets() []string { return append([]string(nil), e.targets...) }

// Conditioned reports whether the edge carries a predicate or assigner.
// Recorded in WorkflowInfo so that adding or removing a condition breaks
// checkpoint compatibility.
func (e *Edge) Conditioned() bool { return e.pred != nil || e.assign != nil }

// hasSource reports whether id is one of the edge's declared sources.
func (e *Edge) hasSource(id string) bool {
	for _, s := range e.sources {
		if s == id {
			return true
		}
	}
	return false
}

// edgeID builds the deterministic identifier for an edge declared at the
// given ordinal position.
func edgeID(kind EdgeKind, sources, targets []string, ordinal int) string {
	return fmt.Sprintf("%s:%s=>%s#%d", kind, strings.Join(sources, "+"), strings.Join(targets, "+"), ordinal)
}

// route evaluates one envelope against this edge and returns the resulting
// delivery map, or nil when the edge's conditions are not met this round.
//
// FanIn edges additionally read and mutate their buffer state in fis; the
// caller owns fis exclusively (single-writer superstep barrier), so no
// locking happens here.
func (e *Edge) route(env Envelope, fis *fanInState) DeliveryMap {
	switch e.kind {
	case EdgeDirect:
		return e.routeDirect(env)
	case EdgeFanOut:
		return e.routeFanOut(env)
	case EdgeFanIn:
		return e.routeFanIn(env, fis)
	default:
		return nil
	}
}

func (e *Edge) routeDirect(env Envelope) DeliveryMap {
	target := e.targets[0]
	if env.TargetID != "" && env.TargetID != target {
		return nil
	}
	if e.pred != nil && !e.pred(env.Payload) {
		return nil
	}
	return DeliveryMap{target: {env.Payload}}
}

func (e *Edge) routeFanOut(env Envelope) DeliveryMap {
	selected := make(map[int]bool, len(e.targets))
	if e.assign != nil {
		for _, i := range e.assign(env.Payload, len(e.targets)) {
			if i >= 0 && i < len(e.targets) {
				selected[i] = true
			}
		}
	} else {
		for i := range e.targets {
			selected[i] = true
		}
	}

	out := make(DeliveryMap)
	for i, target := range e.targets {
		if !selected[i] {
			continue
		}
		if env.TargetID != "" && env.TargetID != target {
			continue
		}
		out[target] = append(out[target], env.Payload)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (e *Edge) routeFanIn(env Envelope, fis *fanInState) DeliveryMap {
	target := e.targets[0]
	if env.TargetID != "" && env.TargetID != target {
		// Mirrors Direct/FanOut target filtering: no buffering, no delivery.
		return nil
	}

	fis.append(env.SourceID, env.Payload)

	if !fis.complete(e.sources) {
		return nil
	}

	payloads := fis.flush()
	return DeliveryMap{target: {coalescePayloads(payloads)}}
}

// fanInState holds a FanIn edge's accumulated-but-unflushed buffers for one
// run. Each buffered payload is tagged with a monotonically increasing
// arrival sequence so a flush releases the union of everything buffered
// since the previous release in global arrival order, not grouped by source.
//
// The state is owned exclusively by the run loop: it is mutated only inside
// the superstep commit barrier and snapshotted/restored as part of the run's
// checkpoint, so restoring fresh and replaying in-process behave identically.
type fanInState struct {
	seq     int64
	buffers map[string][]arrival
}

type arrival struct {
	seq     int64
	payload any
}

func newFanInState() *fanInState {
	return &fanInState{buffers: make(map[string][]arrival)}
}

func (s *fanInState) append(sourceID string, payload any) {
	s.seq++
	s.buffers[sourceID] = append(s.buffers[sourceID], arrival{seq: s.seq, payload: payload})
}

// complete reports whether every declared source has a non-empty buffer.
func (s *fanInState) complete(sources []string) bool {
	for _, src := range sources {
		if len(s.buffers[src]) == 0 {
			return false
		}
	}
	return true
}

// flush returns all buffered payloads in global arrival order and clears
// every buffer atomically with the delivery decision.
func (s *fanInState) flush() []any {
	var all []arrival
	for _, items := range s.buffers {
		all = append(all, items...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	payloads := make([]any, len(all))
	for i, a := range all {
		payloads[i] = a.payload
	}
	s.buffers = make(map[string][]arrival)
	return payloads
}
