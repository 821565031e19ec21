package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/westey-m/flowgraph-go/workflow/store"
)

// runState is the checkpointable core of a run: everything needed to resume
// execution exactly at a superstep boundary on a freshly built graph.
type runState struct {
	step    int // index of the next superstep to execute
	states  map[string]*executorState
	queues  map[string][]Envelope // keyed by target executor ID
	edges   map[string]*fanInState
	pending *InfoRequest
}

func newRunState(g *Graph) *runState {
	rs := &runState{
		states: make(map[string]*executorState, len(g.executors)),
		queues: make(map[string][]Envelope),
		edges:  make(map[string]*fanInState),
	}
	for id := range g.executors {
		rs.states[id] = newExecutorState()
	}
	for _, e := range g.edges {
		if e.kind == EdgeFanIn {
			rs.edges[e.id] = newFanInState()
		}
	}
	return rs
}

// pendingCount returns the number of queued envelopes across all targets.
func (rs *runState) pendingCount() int {
	n := 0
	for _, q := range rs.queues {
		n += len(q)
	}
	return n
}

// capture cuts the run state into a self-describing snapshot. Called only at
// superstep boundaries, after state commits, so buffered writes never leak
// into a checkpoint.
func (rs *runState) capture(g *Graph, runID string, status RunStatus) (store.Snapshot, error) {
	info, err := json.Marshal(g.info)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode workflow info: %w", err)
	}

	snap := store.Snapshot{
		RunID:     runID,
		Step:      rs.step,
		Status:    status.String(),
		Info:      info,
		Executors: make(map[string]map[string]map[string]json.RawMessage, len(rs.states)),
		Timestamp: time.Now().UTC(),
	}

	for id, st := range rs.states {
		snap.Executors[id] = st.snapshot()
	}

	if len(rs.queues) > 0 {
		snap.Queues = make(map[string][]store.QueuedMessage, len(rs.queues))
		for target, envs := range rs.queues {
			for _, env := range envs {
				tp, err := g.registry.marshal(env.Payload)
				if err != nil {
					return store.Snapshot{}, fmt.Errorf("queue for %q: %w", target, err)
				}
				snap.Queues[target] = append(snap.Queues[target], store.QueuedMessage{
					SourceID: env.SourceID,
					TargetID: env.TargetID,
					Kind:     tp.Kind,
					Data:     tp.Data,
				})
			}
		}
	}

	if len(rs.edges) > 0 {
		snap.Edges = make(map[string]store.EdgeState, len(rs.edges))
		for edgeID, fis := range rs.edges {
			es := store.EdgeState{Seq: fis.seq, Buffers: make(map[string][]store.BufferedMessage)}
			for src, items := range fis.buffers {
				for _, a := range items {
					tp, err := g.registry.marshal(a.payload)
					if err != nil {
						return store.Snapshot{}, fmt.Errorf("edge %q buffer: %w", edgeID, err)
					}
					es.Buffers[src] = append(es.Buffers[src], store.BufferedMessage{
						Seq:  a.seq,
						Kind: tp.Kind,
						Data: tp.Data,
					})
				}
			}
			snap.Edges[edgeID] = es
		}
	}

	if rs.pending != nil {
		tp, err := g.registry.marshal(rs.pending.Data)
		if err != nil {
			return store.Snapshot{}, fmt.Errorf("pending request: %w", err)
		}
		snap.Request = &store.PendingRequest{
			RequestID: rs.pending.RequestID,
			PortID:    rs.pending.PortID,
			SourceID:  rs.pending.SourceID,
			Kind:      tp.Kind,
			Data:      tp.Data,
		}
	}

	return snap, nil
}

// restoreRunState rebuilds live run state from a snapshot, after verifying
// the snapshot's recorded WorkflowInfo structurally matches the target graph.
// The structural check is what makes checkpoints portable: resuming on a
// freshly constructed graph instance is "deserialize into a fresh arena",
// never object-graph rehydration.
func restoreRunState(g *Graph, snap store.Snapshot) (*runState, error) {
	var recorded WorkflowInfo
	if err := json.Unmarshal(snap.Info, &recorded); err != nil {
		return nil, &ConfigError{Message: "checkpoint carries malformed workflow info: " + err.Error()}
	}
	if !recorded.IsMatch(g.info) {
		return nil, ErrInfoMismatch
	}

	rs := newRunState(g)
	rs.step = snap.Step

	for id, scopes := range snap.Executors {
		st, ok := rs.states[id]
		if !ok {
			// Unreachable after IsMatch, kept as a hard failure rather than
			// silently dropping state.
			return nil, &ConfigError{Message: "checkpoint references unknown executor " + id}
		}
		st.restore(scopes)
	}

	for target, msgs := range snap.Queues {
		for _, qm := range msgs {
			payload, err := g.registry.unmarshal(typedPayload{Kind: qm.Kind, Data: qm.Data})
			if err != nil {
				return nil, fmt.Errorf("restore queue for %q: %w", target, err)
			}
			rs.queues[target] = append(rs.queues[target], Envelope{
				Payload:  payload,
				SourceID: qm.SourceID,
				TargetID: qm.TargetID,
			})
		}
	}

	for edgeID, es := range snap.Edges {
		fis, ok := rs.edges[edgeID]
		if !ok {
			return nil, &ConfigError{Message: "checkpoint references unknown edge " + edgeID}
		}
		fis.seq = es.Seq
		for src, items := range es.Buffers {
			for _, bm := range items {
				payload, err := g.registry.unmarshal(typedPayload{Kind: bm.Kind, Data: bm.Data})
				if err != nil {
					return nil, fmt.Errorf("restore edge %q buffer: %w", edgeID, err)
				}
				fis.buffers[src] = append(fis.buffers[src], arrival{seq: bm.Seq, payload: payload})
			}
			sort.Slice(fis.buffers[src], func(i, j int) bool {
				return fis.buffers[src][i].seq < fis.buffers[src][j].seq
			})
		}
	}

	if snap.Request != nil {
		payload, err := g.registry.unmarshal(typedPayload{Kind: snap.Request.Kind, Data: snap.Request.Data})
		if err != nil {
			return nil, fmt.Errorf("restore pending request: %w", err)
		}
		rs.pending = &InfoRequest{
			RequestID: snap.Request.RequestID,
			PortID:    snap.Request.PortID,
			SourceID:  snap.Request.SourceID,
			Data:      payload,
		}
	}

	return rs, nil
}
