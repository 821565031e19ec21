package workflow

import "reflect"

// RequestPort is a declared channel to the world outside the graph. An
// executor sends a request through a port (ExecContext.RequestInfo); the run
// suspends in the Yielded state until the driver supplies a matching
// InfoResponse, which is delivered back to the requesting executor as an
// ordinary message.
type RequestPort struct {
	id           string
	requestType  reflect.Type
	responseType reflect.Type
}

// NewRequestPort declares a request/response port with the given ID.
// Req is the payload type executors send out through the port; Resp is the
// payload type the external responder must supply.
func NewRequestPort[Req, Resp any](id string) *RequestPort {
	return &RequestPort{
		id:           id,
		requestType:  reflect.TypeOf((*Req)(nil)).Elem(),
		responseType: reflect.TypeOf((*Resp)(nil)).Elem(),
	}
}

// ID returns the port identifier, unique within a graph.
func (p *RequestPort) ID() string { return p.id }

// InfoRequest is an outstanding external-input request. Exactly one may be
// outstanding while a run is Yielded.
type InfoRequest struct {
	// RequestID uniquely identifies this request; the matching InfoResponse
	// must carry the same ID.
	RequestID string `json:"request_id"`

	// PortID names the RequestPort the request was issued through.
	PortID string `json:"port_id"`

	// SourceID is the executor that issued the request and will receive the
	// response payload as a message.
	SourceID string `json:"source_id"`

	// Data is the opaque request payload, typed per the port declaration.
	Data any `json:"-"`
}

// InfoResponse answers an outstanding InfoRequest. Supplying a response whose
// RequestID does not match the outstanding request, or responding when no
// request is outstanding, is rejected and leaves the run state unchanged.
type InfoResponse struct {
	// RequestID references the InfoRequest being answered.
	RequestID string

	// Data is the response payload; its type must match the port's declared
	// response type and is delivered to the requesting executor.
	Data any
}
