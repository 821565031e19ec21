// Package workflow provides the core superstep execution engine for FlowGraph-Go.
package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Envelope carries a message payload through the workflow graph.
//
// Envelopes are produced when an executor emits a message and consumed by
// edge runners, which decide which downstream executors receive the payload.
//
// TargetID is optional. When set, delivery is restricted to that single
// recipient regardless of an edge's normal fan-out; an edge whose legal
// recipients do not include TargetID drops the message entirely.
type Envelope struct {
	// Payload is the message value. It must be a type registered with the
	// graph (via a handler, output, or port declaration) so that queued
	// envelopes survive a checkpoint round-trip onto a fresh process.
	Payload any

	// SourceID is the executor that emitted this message.
	SourceID string

	// TargetID optionally restricts delivery to a single recipient.
	// Empty means the edge's normal routing applies.
	TargetID string
}

// DeliveryMap is the result of routing one envelope through one edge:
// recipient executor ID mapped to the ordered payloads that recipient should
// now receive. A nil map means the edge's conditions were not met and no
// delivery occurs this round.
type DeliveryMap map[string][]any

// typedPayload is the wire form of a payload inside a checkpoint document.
// Kind names the registered payload type; Data is the JSON encoding.
type typedPayload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// typeRegistry maps between Go types and stable string kinds so that
// envelopes, fan-in buffers, and pending requests can be serialized into a
// self-describing checkpoint and decoded again on a freshly built graph.
//
// Kinds are derived from the type's package path and name (or the reflect
// string form for unnamed types such as slices), which is stable across
// process restarts as long as the graph is built from the same code.
type typeRegistry struct {
	mu     sync.RWMutex
	byKind map[string]reflect.Type
	byType map[reflect.Type]string
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{
		byKind: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// kindOf computes the stable kind string for a type.
func kindOf(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// register adds a type to the registry. Registering the same type twice is a
// no-op; two distinct types mapping to the same kind is a build error
// surfaced by the caller.
func (r *typeRegistry) register(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("cannot register nil type")
	}
	kind := kindOf(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKind[kind]; ok {
		if existing != t {
			return fmt.Errorf("type kind collision: %q maps to both %v and %v", kind, existing, t)
		}
		return nil
	}
	r.byKind[kind] = t
	r.byType[t] = kind
	return nil
}

// marshal encodes a live payload value into its wire form.
func (r *typeRegistry) marshal(v any) (typedPayload, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return typedPayload{}, fmt.Errorf("cannot marshal nil payload")
	}

	r.mu.RLock()
	kind, ok := r.byType[t]
	r.mu.RUnlock()

	if !ok {
		return typedPayload{}, fmt.Errorf("unregistered payload type %v", t)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return typedPayload{}, fmt.Errorf("marshal payload %q: %w", kind, err)
	}
	return typedPayload{Kind: kind, Data: data}, nil
}

// unmarshal decodes a wire payload back into a live value of the registered type.
func (r *typeRegistry) unmarshal(p typedPayload) (any, error) {
	r.mu.RLock()
	t, ok := r.byKind[p.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(p.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("unmarshal payload %q: %w", p.Kind, err)
	}
	return ptr.Elem().Interface(), nil
}

// kinds returns the sorted list of registered kind strings.
func (r *typeRegistry) kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// coalescePayloads turns the global-arrival-order payload list released by a
// fan-in flush into a single deliverable value. When every payload shares the
// same dynamic type the result is a typed slice ([]T), so fan-in targets can
// register a handler for the natural list type. Mixed types fall back to []any.
func coalescePayloads(payloads []any) any {
	if len(payloads) == 0 {
		return []any{}
	}

	elem := reflect.TypeOf(payloads[0])
	uniform := elem != nil
	for _, p := range payloads[1:] {
		if reflect.TypeOf(p) != elem {
			uniform = false
			break
		}
	}
	if !uniform {
		out := make([]any, len(payloads))
		copy(out, payloads)
		return out
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elem), 0, len(payloads))
	for _, p := range payloads {
		slice = reflect.Append(slice, reflect.ValueOf(p))
	}
	return slice.Interface()
}
