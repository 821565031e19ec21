package workflow

import (
	"fmt"
	"reflect"
	"sort"
)

// Graph is an immutable, validated workflow topology: executors connected by
// edges, plus declared request/response ports. Graphs hold no run state; the
// same instance can drive any number of concurrent runs, and a checkpoint
// from one instance can be resumed on another as long as their WorkflowInfo
// fingerprints match.
type Graph struct {
	executors map[string]*Executor
	order     []string // executor declaration order
	edges     []*Edge  // declaration order, drives routing determinism
	ports     map[string]*RequestPort
	portOrder []string
	startID   string
	outputID  string
	inputType reflect.Type
	registry  *typeRegistry
	info      WorkflowInfo
}

// Info returns the graph's structural fingerprint.
func (g *Graph) Info() WorkflowInfo { return g.info }

// StartID returns the executor that receives the workflow's initial input.
func (g *Graph) StartID() string { return g.startID }

// edgesFrom returns the edges (in declaration order) that have id among
// their sources.
func (g *Graph) edgesFrom(id string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.hasSource(id) {
			out = append(out, e)
		}
	}
	return out
}

// Builder assembles a Graph. All methods are chainable; configuration errors
// accumulate and are reported by Build, before any superstep executes.
//
// Example:
//
//	b := workflow.NewBuilder("guess")
//	workflow.WithInput[int](b)
//	b.AddExecutor(guesser).
//	    AddExecutor(judge).
//	    AddEdge("guess", "judge", nil).
//	    AddEdge("judge", "guess", nil).
//	    WithOutputFrom("judge")
//	g, err := b.Build()
type Builder struct {
	startID   string
	inputType reflect.Type
	outputID  string
	execs     []*Executor
	edges     []*Edge
	ports     []*RequestPort
	errs      []error
}

// NewBuilder starts building a graph whose initial input is delivered to the
// executor with the given ID.
func NewBuilder(startID string) *Builder {
	b := &Builder{startID: startID}
	if startID == "" {
		b.fail("start executor ID cannot be empty")
	}
	return b
}

// WithInput declares the workflow's input type. When omitted, the input type
// is inferred from the start executor's handlers if it registers exactly one
// message type.
func WithInput[T any](b *Builder) *Builder {
	b.inputType = reflect.TypeOf((*T)(nil)).Elem()
	return b
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, &ConfigError{Message: fmt.Sprintf(format, args...)})
}

// AddExecutor registers an executor node. Executor IDs must be unique within
// the graph.
func (b *Builder) AddExecutor(e *Executor) *Builder {
	if e == nil {
		b.fail("executor cannot be nil")
		return b
	}
	b.execs = append(b.execs, e)
	return b
}

// AddEdge declares a Direct edge from source to target with an optional
// payload predicate (nil = unconditional).
func (b *Builder) AddEdge(source, target string, pred Predicate) *Builder {
	b.edges = append(b.edges, &Edge{
		id:      edgeID(EdgeDirect, []string{source}, []string{target}, len(b.edges)),
		kind:    EdgeDirect,
		sources: []string{source},
		targets: []string{target},
		pred:    pred,
	})
	return b
}

// AddFanOutEdge declares a FanOut edge from source to the ordered targets
// with an optional assigner (nil = broadcast to all targets).
func (b *Builder) AddFanOutEdge(source string, targets []string, assign Assigner) *Builder {
	if len(targets) == 0 {
		b.fail("fan-out edge from %q declares no targets", source)
		return b
	}
	b.edges = append(b.edges, &Edge{
		id:      edgeID(EdgeFanOut, []string{source}, targets, len(b.edges)),
		kind:    EdgeFanOut,
		sources: []string{source},
		targets: append([]string(nil), targets...),
		assign:  assign,
	})
	return b
}

// AddFanInEdge declares a FanIn edge joining the ordered sources into a
// single target. The edge buffers payloads per source and releases everything
// buffered, in global arrival order, once every source has contributed at
// least once since the previous release.
func (b *Builder) AddFanInEdge(sources []string, target string) *Builder {
	if len(sources) == 0 {
		b.fail("fan-in edge into %q declares no sources", target)
		return b
	}
	b.edges = append(b.edges, &Edge{
		id:      edgeID(EdgeFanIn, sources, []string{target}, len(b.edges)),
		kind:    EdgeFanIn,
		sources: append([]string(nil), sources...),
		targets: []string{target},
	})
	return b
}

// AddRequestPort declares a request/response port on the graph.
func (b *Builder) AddRequestPort(p *RequestPort) *Builder {
	if p == nil {
		b.fail("request port cannot be nil")
		return b
	}
	if p.id == "" {
		b.fail("request port ID cannot be empty")
		return b
	}
	b.ports = append(b.ports, p)
	return b
}

// WithOutputFrom designates the executor whose yielded outputs are the
// workflow's outputs. The executor must declare at least one output type.
func (b *Builder) WithOutputFrom(executorID string) *Builder {
	b.outputID = executorID
	return b
}

// Build validates the assembled topology and returns an immutable Graph.
//
// Validation covers: unique executor and port IDs, edge endpoints referencing
// existing executors, a start executor that accepts the declared input type,
// emit/handler type compatibility for every edge whose source declares its
// emitted types, and an output collector with declared output types. All
// failures are configuration errors reported here, never at runtime.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	g := &Graph{
		executors: make(map[string]*Executor),
		edges:     b.edges,
		ports:     make(map[string]*RequestPort),
		startID:   b.startID,
		outputID:  b.outputID,
		registry:  newTypeRegistry(),
	}

	for _, e := range b.execs {
		if _, exists := g.executors[e.id]; exists {
			return nil, &ConfigError{Message: "duplicate executor ID: " + e.id}
		}
		g.executors[e.id] = e
		g.order = append(g.order, e.id)
	}

	start, ok := g.executors[b.startID]
	if !ok {
		return nil, &ConfigError{Message: "start executor does not exist: " + b.startID}
	}

	// Infer the input type from the start executor when undeclared.
	g.inputType = b.inputType
	if g.inputType == nil {
		types := start.messageTypes()
		if len(types) != 1 {
			return nil, &ConfigError{Message: fmt.Sprintf(
				"cannot infer input type: start executor %q handles %d message types; declare one with WithInput",
				b.startID, len(types))}
		}
		g.inputType = types[0]
	}
	if !start.accepts(g.inputType) {
		return nil, &ConfigError{Message: fmt.Sprintf(
			"start executor %q has no handler for input type %s", b.startID, kindOf(g.inputType))}
	}

	for _, e := range b.edges {
		for _, id := range append(e.Sources(), e.Targets()...) {
			if _, ok := g.executors[id]; !ok {
				return nil, &ConfigError{Message: fmt.Sprintf(
					"edge %s references unknown executor %q", e.id, id)}
			}
		}
		if err := g.checkEdgeTypes(e); err != nil {
			return nil, err
		}
	}

	for _, p := range b.ports {
		if _, exists := g.ports[p.id]; exists {
			return nil, &ConfigError{Message: "duplicate port ID: " + p.id}
		}
		g.ports[p.id] = p
		g.portOrder = append(g.portOrder, p.id)
	}

	if g.outputID != "" {
		out, ok := g.executors[g.outputID]
		if !ok {
			return nil, &ConfigError{Message: "output executor does not exist: " + g.outputID}
		}
		if len(out.outputs) == 0 {
			return nil, &ConfigError{Message: fmt.Sprintf(
				"output executor %q declares no output types", g.outputID)}
		}
	}

	if err := g.registerTypes(); err != nil {
		return nil, err
	}

	g.info = g.buildInfo()
	return g, nil
}

// checkEdgeTypes verifies emit/handler compatibility for one edge. Sources
// that declare no emit types are skipped: their deliveries are checked
// against the target handler set when routed, and an unhandled delivery
// fails the run rather than being dropped.
func (g *Graph) checkEdgeTypes(e *Edge) error {
	for _, srcID := range e.sources {
		src := g.executors[srcID]
		if len(src.emits) == 0 {
			continue
		}
		for _, tgtID := range e.targets {
			tgt := g.executors[tgtID]
			if !edgeTypesCompatible(e.kind, src, tgt) {
				return &ConfigError{Message: fmt.Sprintf(
					"edge %s: target %q handles none of the message types emitted by %q",
					e.id, tgtID, srcID)}
			}
		}
	}
	return nil
}

// edgeTypesCompatible reports whether the target can handle at least one of
// the source's declared emit types, accounting for fan-in list delivery.
func edgeTypesCompatible(kind EdgeKind, src, tgt *Executor) bool {
	anySlice := reflect.TypeOf([]any{})
	for t := range src.emits {
		if kind == EdgeFanIn {
			if tgt.accepts(reflect.SliceOf(t)) || tgt.accepts(anySlice) {
				return true
			}
			continue
		}
		if tgt.accepts(t) {
			return true
		}
	}
	return false
}

// registerTypes populates the payload type registry with every type the
// graph can put on the wire: handler message types, declared emit and output
// types, port request/response types, and the workflow input type.
func (g *Graph) registerTypes() error {
	reg := func(t reflect.Type) error { return g.registry.register(t) }

	if err := reg(g.inputType); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	for _, id := range g.order {
		e := g.executors[id]
		for _, t := range e.messageTypes() {
			if err := reg(t); err != nil {
				return &ConfigError{Message: err.Error()}
			}
		}
		for t := range e.emits {
			if err := reg(t); err != nil {
				return &ConfigError{Message: err.Error()}
			}
		}
		for t := range e.outputs {
			if err := reg(t); err != nil {
				return &ConfigError{Message: err.Error()}
			}
		}
	}
	for _, id := range g.portOrder {
		p := g.ports[id]
		if err := reg(p.requestType); err != nil {
			return &ConfigError{Message: err.Error()}
		}
		if err := reg(p.responseType); err != nil {
			return &ConfigError{Message: err.Error()}
		}
	}
	return nil
}

// buildInfo computes the graph's structural fingerprint.
func (g *Graph) buildInfo() WorkflowInfo {
	info := WorkflowInfo{
		Executors: make(map[string]ExecutorInfo, len(g.executors)),
		InputType: kindOf(g.inputType),
		StartID:   g.startID,
		OutputID:  g.outputID,
	}
	for id, e := range g.executors {
		info.Executors[id] = ExecutorInfo{Kind: e.kind, MessageTypes: e.messageKinds()}
	}

	for _, e := range g.edges {
		info.Edges = append(info.Edges, EdgeInfo{
			ID:          e.id,
			Kind:        e.kind.String(),
			Sources:     e.Sources(),
			Targets:     e.Targets(),
			Conditioned: e.Conditioned(),
		})
	}
	sort.Slice(info.Edges, func(i, j int) bool { return info.Edges[i].ID < info.Edges[j].ID })

	for _, id := range g.portOrder {
		p := g.ports[id]
		info.Ports = append(info.Ports, PortInfo{
			ID:           p.id,
			RequestType:  kindOf(p.requestType),
			ResponseType: kindOf(p.responseType),
		})
	}
	sort.Slice(info.Ports, func(i, j int) bool { return info.Ports[i].ID < info.Ports[j].ID })

	if g.outputID != "" {
		info.OutputTypes = g.executors[g.outputID].outputKinds()
	}
	return info
}
