package wire

import (
	"encoding/json"
	"testing"
)

func TestResolvedSetMarshalsSingleEntryAsBareObject(t *testing.T) {
	set := ResolvedSet{Entries: []ResolvedEntry{{AgentID: "clock-aaaaaaaa", Capability: "date_service"}}}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("expected a bare object, got %s: %v", data, err)
	}
	if obj["agent_id"] != "clock-aaaaaaaa" {
		t.Fatalf("unexpected agent_id in %s", data)
	}
}

func TestResolvedSetMarshalsMultiEntryAsArray(t *testing.T) {
	set := ResolvedSet{Entries: []ResolvedEntry{
		{AgentID: "clock-aaaaaaaa", Capability: "date_service"},
		{AgentID: "clock-bbbbbbbb", Capability: "date_service"},
	}}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var arr []map[string]interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("expected a JSON array, got %s: %v", data, err)
	}
	if len(arr) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(arr))
	}
}

func TestResolvedSetRoundTripsSingleEntry(t *testing.T) {
	in := ResolvedSet{Entries: []ResolvedEntry{{AgentID: "clock-aaaaaaaa", FunctionName: "now", Capability: "date_service", Endpoint: "http://localhost:9002"}}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out ResolvedSet
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].AgentID != "clock-aaaaaaaa" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestResolvedSetRoundTripsMultiEntry(t *testing.T) {
	in := ResolvedSet{Entries: []ResolvedEntry{
		{AgentID: "clock-aaaaaaaa", Capability: "date_service"},
		{AgentID: "clock-bbbbbbbb", Capability: "date_service"},
	}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out ResolvedSet
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 entries after round trip, got %d", len(out.Entries))
	}
}

func TestHeartbeatResponseRoundTripsNestedResolvedSets(t *testing.T) {
	resp := HeartbeatResponse{
		Status:  "success",
		AgentID: "greeter-aaaaaaaa",
		DependenciesResolved: map[string]map[string]ResolvedSet{
			"greet": {
				"date_service": {Entries: []ResolvedEntry{{AgentID: "clock-aaaaaaaa", Capability: "date_service"}}},
			},
		},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out HeartbeatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	set, ok := out.DependenciesResolved["greet"]["date_service"]
	if !ok || len(set.Entries) != 1 || set.Entries[0].AgentID != "clock-aaaaaaaa" {
		t.Fatalf("unexpected round-tripped resolution: %+v", out.DependenciesResolved)
	}
}
