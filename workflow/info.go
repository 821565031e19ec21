package workflow

// WorkflowInfo is a serializable structural fingerprint of a graph. It is
// recorded in every checkpoint and compared against the target graph before a
// resume, so a checkpoint taken on one graph instance can safely be restored
// onto a different, freshly built instance of the same topology — and nothing
// else.
type WorkflowInfo struct {
	// Executors maps executor ID to its declared kind.
	Executors map[string]ExecutorInfo `json:"executors"`

	// Edges describes the full edge topology, sorted by edge ID.
	Edges []EdgeInfo `json:"edges"`

	// Ports describes the declared request/response ports, sorted by ID.
	Ports []PortInfo `json:"ports,omitempty"`

	// InputType is the kind of the workflow's initial input.
	InputType string `json:"input_type"`

	// StartID is the executor that receives the initial input.
	StartID string `json:"start_id"`

	// OutputID optionally names the executor designated as the output
	// collector.
	OutputID string `json:"output_id,omitempty"`

	// OutputTypes lists the output collector's declared output kinds, sorted.
	OutputTypes []string `json:"output_types,omitempty"`
}

// ExecutorInfo describes one executor in the fingerprint.
type ExecutorInfo struct {
	// Kind is the executor's declared type name.
	Kind string `json:"kind"`

	// MessageTypes lists the accepted message kinds, sorted.
	MessageTypes []string `json:"message_types"`
}

// EdgeInfo describes one edge in the fingerprint.
type EdgeInfo struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Sources []string `json:"sources"`
	Targets []string `json:"targets"`

	// Conditioned records whether the edge carries a predicate or assigner.
	// Function bodies cannot be fingerprinted; their presence can, and adding
	// or removing one breaks checkpoint compatibility.
	Conditioned bool `json:"conditioned"`
}

// PortInfo describes one request/response port in the fingerprint.
type PortInfo struct {
	ID           string `json:"id"`
	RequestType  string `json:"request_type"`
	ResponseType string `json:"response_type"`
}

// IsMatch reports whether two graphs are structurally interchangeable for
// checkpoint purposes. Every field must agree: same executor IDs with the
// same declared kinds and message types, same edge topology (kind, sources,
// targets, condition presence per edge), same ports, same input type, same
// start executor, and the same output collector.
func (w WorkflowInfo) IsMatch(other WorkflowInfo) bool {
	if w.InputType != other.InputType || w.StartID != other.StartID {
		return false
	}
	if w.OutputID != other.OutputID {
		return false
	}
	if !stringSlicesEqual(w.OutputTypes, other.OutputTypes) {
		return false
	}

	if len(w.Executors) != len(other.Executors) {
		return false
	}
	for id, info := range w.Executors {
		o, ok := other.Executors[id]
		if !ok || info.Kind != o.Kind || !stringSlicesEqual(info.MessageTypes, o.MessageTypes) {
			return false
		}
	}

	if len(w.Edges) != len(other.Edges) {
		return false
	}
	for i, e := range w.Edges {
		o := other.Edges[i]
		if e.ID != o.ID || e.Kind != o.Kind || e.Conditioned != o.Conditioned {
			return false
		}
		if !stringSlicesEqual(e.Sources, o.Sources) || !stringSlicesEqual(e.Targets, o.Targets) {
			return false
		}
	}

	if len(w.Ports) != len(other.Ports) {
		return false
	}
	for i, p := range w.Ports {
		if p != other.Ports[i] {
			return false
		}
	}

	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
