package workflow

import (
	"encoding/json"
	"fmt"
)

// DefaultScope is the state scope used by the convenience helpers when no
// scope name is given.
const DefaultScope = "default"

// executorState holds one executor's named state scopes for one run.
//
// Values are kept as JSON documents so checkpoint snapshots stay
// self-describing and restore works on any process. Writes issued during a
// superstep are buffered as ordered ops and committed at the superstep
// barrier; the owning executor sees its own buffered writes immediately
// (read-your-own-writes), other executors only ever read committed state.
//
// The state is owned exclusively by its executor's dispatch goroutine during
// a round and by the run loop at the barrier, so no locking is needed.
type executorState struct {
	scopes  map[string]map[string]json.RawMessage
	pending []stateOp
}

type stateOpKind int

const (
	opSet stateOpKind = iota
	opClearScope
)

type stateOp struct {
	kind  stateOpKind
	scope string
	key   string
	value json.RawMessage
}

func newExecutorState() *executorState {
	return &executorState{scopes: make(map[string]map[string]json.RawMessage)}
}

// read returns the value for (key, scope), honoring buffered writes from the
// current superstep before falling back to committed state.
func (s *executorState) read(key, scope string) (json.RawMessage, bool) {
	// Latest buffered op wins.
	for i := len(s.pending) - 1; i >= 0; i-- {
		op := s.pending[i]
		if op.scope != scope {
			continue
		}
		switch op.kind {
		case opClearScope:
			return nil, false
		case opSet:
			if op.key == key {
				return op.value, true
			}
		}
	}

	kv, ok := s.scopes[scope]
	if !ok {
		return nil, false
	}
	v, ok := kv[key]
	return v, ok
}

// queueUpdate buffers a write. It becomes visible to other executors only at
// the next superstep boundary.
func (s *executorState) queueUpdate(key string, value json.RawMessage, scope string) {
	s.pending = append(s.pending, stateOp{kind: opSet, scope: scope, key: key, value: value})
}

// clearScope buffers removal of every key in the scope.
func (s *executorState) clearScope(scope string) {
	s.pending = append(s.pending, stateOp{kind: opClearScope, scope: scope})
}

// commit applies buffered ops in order and clears the buffer. Called by the
// run loop at the superstep barrier.
func (s *executorState) commit() {
	for _, op := range s.pending {
		switch op.kind {
		case opClearScope:
			delete(s.scopes, op.scope)
		case opSet:
			kv, ok := s.scopes[op.scope]
			if !ok {
				kv = make(map[string]json.RawMessage)
				s.scopes[op.scope] = kv
			}
			kv[op.key] = op.value
		}
	}
	s.pending = nil
}

// snapshot returns a deep copy of the committed scopes. Buffered ops are
// never checkpointed: checkpoints are cut at superstep boundaries, after
// commit has run.
func (s *executorState) snapshot() map[string]map[string]json.RawMessage {
	out := make(map[string]map[string]json.RawMessage, len(s.scopes))
	for scope, kv := range s.scopes {
		copied := make(map[string]json.RawMessage, len(kv))
		for k, v := range kv {
			copied[k] = append(json.RawMessage(nil), v...)
		}
		out[scope] = copied
	}
	return out
}

// restore replaces committed scopes with the given snapshot.
func (s *executorState) restore(scopes map[string]map[string]json.RawMessage) {
	s.scopes = make(map[string]map[string]json.RawMessage, len(scopes))
	s.pending = nil
	for scope, kv := range scopes {
		copied := make(map[string]json.RawMessage, len(kv))
		for k, v := range kv {
			copied[k] = append(json.RawMessage(nil), v...)
		}
		s.scopes[scope] = copied
	}
}

// ReadState reads a typed value from the calling executor's state.
// The bool result reports whether the key was present.
func ReadState[T any](ec *ExecContext, key, scope string) (T, bool, error) {
	var zero T
	raw, ok := ec.Read(key, scope)
	if !ok {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, true, fmt.Errorf("read state %s/%s: %w", scope, key, err)
	}
	return v, true, nil
}
