package proxy

import (
	"context"
	"errors"
	"testing"
)

type fakeCaller struct {
	result interface{}
	err    error
	calls  int
}

func (f *fakeCaller) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	f.calls++
	return f.result, f.err
}

func TestMultiCallerRoundRobinsAcrossSuccessfulCalls(t *testing.T) {
	a := &fakeCaller{result: "a"}
	b := &fakeCaller{result: "b"}
	m := NewMultiCaller([]Caller{a, b})

	results := map[string]bool{}
	for i := 0; i < 4; i++ {
		r, err := m.Call(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results[r.(string)] = true
	}
	if !results["a"] || !results["b"] {
		t.Fatalf("expected round-robin to visit both providers, got %v", results)
	}
}

func TestMultiCallerFailsOverToNextProvider(t *testing.T) {
	bad := &fakeCaller{err: errors.New("down")}
	good := &fakeCaller{result: "ok"}
	m := NewMultiCaller([]Caller{bad, good})

	r, err := m.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected failover to the healthy provider, got error: %v", err)
	}
	if r != "ok" {
		t.Fatalf("expected failover result %q, got %v", "ok", r)
	}
	if bad.calls == 0 {
		t.Fatalf("expected the failing provider to have been attempted")
	}
}

func TestMultiCallerReturnsLastErrorWhenAllFail(t *testing.T) {
	first := &fakeCaller{err: errors.New("first down")}
	second := &fakeCaller{err: errors.New("second down")}
	m := NewMultiCaller([]Caller{first, second})

	_, err := m.Call(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error when every provider fails")
	}
}

func TestMultiCallerEmptyReturnsError(t *testing.T) {
	m := NewMultiCaller(nil)
	if _, err := m.Call(context.Background(), nil); err == nil {
		t.Fatalf("expected an error for a multicaller with no providers bound")
	}
}
