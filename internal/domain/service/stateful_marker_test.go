package service

import (
	"testing"
	"time"
)

func TestStoreStatefulMarker_PrependsMostRecentFirst(t *testing.T) {
	var markers []StatefulMarker
	markers = StoreStatefulMarker(markers, StatefulMarker{Model: "gpt-4", Marker: "m1", Timestamp: time.Now()}, 1)
	markers = StoreStatefulMarker(markers, StatefulMarker{Model: "gpt-4", Marker: "m2", Timestamp: time.Now()}, 1)

	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	if markers[0].Marker != "m2" {
		t.Fatalf("most recent marker should be first, got %q", markers[0].Marker)
	}
}

func TestStoreStatefulMarker_SuppressedAboveFirstIteration(t *testing.T) {
	var markers []StatefulMarker
	markers = StoreStatefulMarker(markers, StatefulMarker{Model: "gpt-4", Marker: "m1"}, 1)
	before := len(markers)

	markers = StoreStatefulMarker(markers, StatefulMarker{Model: "gpt-4", Marker: "m2-from-tool-followup"}, 2)

	if len(markers) != before {
		t.Fatalf("marker storage must be suppressed when tool_call_iteration > 1, got %d markers", len(markers))
	}
	if markers[0].Marker != "m1" {
		t.Fatalf("suppressed call should not alter the existing marker list, got %+v", markers)
	}
}

func TestStoreStatefulMarker_TruncatesToMax(t *testing.T) {
	var markers []StatefulMarker
	for i := 0; i < MaxStatefulMarkers+5; i++ {
		markers = StoreStatefulMarker(markers, StatefulMarker{Model: "gpt-4", Marker: "m"}, 1)
	}
	if len(markers) != MaxStatefulMarkers {
		t.Fatalf("expected truncation to %d, got %d", MaxStatefulMarkers, len(markers))
	}
}

func TestGetStatefulMarker_ReturnsFirstMatchForModel(t *testing.T) {
	markers := []StatefulMarker{
		{Model: "claude-3", Marker: "c1"},
		{Model: "gpt-4", Marker: "g1"},
		{Model: "gpt-4", Marker: "g0-older"},
	}

	m, ok := GetStatefulMarker(markers, "gpt-4")
	if !ok {
		t.Fatal("expected a marker match for gpt-4")
	}
	if m.Marker != "g1" {
		t.Fatalf("expected the first (most recent) gpt-4 marker, got %q", m.Marker)
	}
}

func TestGetStatefulMarker_NoMatch(t *testing.T) {
	markers := []StatefulMarker{{Model: "claude-3", Marker: "c1"}}
	_, ok := GetStatefulMarker(markers, "gpt-4")
	if ok {
		t.Fatal("expected no match for a model with no stored marker")
	}
}
