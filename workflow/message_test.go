package workflow

import (
	"reflect"
	"testing"
)

type wireGuess struct {
	Value int    `json:"value"`
	Hint  string `json:"hint,omitempty"`
}

func TestTypeRegistry_RoundTrip(t *testing.T) {
	reg := newTypeRegistry()
	for _, typ := range []reflect.Type{
		reflect.TypeOf(0),
		reflect.TypeOf(""),
		reflect.TypeOf(wireGuess{}),
		reflect.TypeOf([]int{}),
	} {
		if err := reg.register(typ); err != nil {
			t.Fatalf("register %v: %v", typ, err)
		}
	}

	cases := []struct {
		name    string
		payload any
	}{
		{"int", 42},
		{"string", "hello"},
		{"struct", wireGuess{Value: 7, Hint: "low"}},
		{"slice", []int{1, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tp, err := reg.marshal(tc.payload)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := reg.unmarshal(tp)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got, tc.payload) {
				t.Errorf("round trip: got %#v, want %#v", got, tc.payload)
			}
		})
	}
}

func TestTypeRegistry_UnknownKind(t *testing.T) {
	reg := newTypeRegistry()

	if _, err := reg.marshal(3.14); err == nil {
		t.Error("marshal of unregistered type should fail")
	}
	if _, err := reg.unmarshal(typedPayload{Kind: "never.Registered", Data: []byte(`{}`)}); err == nil {
		t.Error("unmarshal of unknown kind should fail")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeOf(0), "int"},
		{reflect.TypeOf(""), "string"},
		{reflect.TypeOf([]int{}), "[]int"},
		{reflect.TypeOf(wireGuess{}), "github.com/westey-m/flowgraph-go/workflow.wireGuess"},
	}
	for _, tc := range cases {
		if got := kindOf(tc.typ); got != tc.want {
			t.Errorf("kindOf(%v) = %q, want %q", tc.typ, got, tc.want)
		}
	}
}

func TestCoalescePayloads(t *testing.T) {
	t.Run("uniform types produce a typed slice", func(t *testing.T) {
		got := coalescePayloads([]any{1, 2, 3})
		typed, ok := got.([]int)
		if !ok {
			t.Fatalf("expected []int, got %T", got)
		}
		if !reflect.DeepEqual(typed, []int{1, 2, 3}) {
			t.Errorf("got %v", typed)
		}
	})

	t.Run("mixed types produce []any", func(t *testing.T) {
		got := coalescePayloads([]any{1, "two"})
		if _, ok := got.([]any); !ok {
			t.Fatalf("expected []any, got %T", got)
		}
	})

	t.Run("empty input produces empty []any", func(t *testing.T) {
		got := coalescePayloads(nil)
		a, ok := got.([]any)
		if !ok || len(a) != 0 {
			t.Errorf("expected empty []any, got %#v", got)
		}
	})
}
