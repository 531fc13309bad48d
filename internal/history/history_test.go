package history

import (
	"testing"

	"croesus/internal/model"
)

func TestRecord(t *testing.T) {
	h := New()
	h.Record(model.Game{Name: "Alice", Death: "quit", Points: 5}, "u1")
	h.Record(model.Game{Name: "alice", Death: "ascended", Role: "Val", Race: "Hum", Gender: "Fem", Align: "Neu"}, "u2")
	h.Record(model.Game{Name: "alice", Death: "ascended", Role: "Val", Race: "Dwa", Gender: "Fem", Align: "Law"}, "u3")
	h.Record(model.Game{Name: "bob", Death: "killed by a newt"}, "u4")

	if got := h.Games("alice"); got != 3 {
		t.Fatalf("alice games = %d", got)
	}
	if url, ok := h.LastGame("alice"); !ok || url != "u3" {
		t.Fatalf("alice last game = %q %v", url, ok)
	}
	if url, ok := h.LastGame(""); !ok || url != "u4" {
		t.Fatalf("latest game = %q %v", url, ok)
	}
	if url, ok := h.LastAscension(""); !ok || url != "u3" {
		t.Fatalf("latest asc = %q %v", url, ok)
	}
	if _, ok := h.LastAscension("bob"); ok {
		t.Fatal("bob has no ascension")
	}

	a, ok := h.Ascensions("alice")
	if !ok || a.Total != 2 || a.Role["Val"] != 2 || a.Race["Hum"] != 1 || a.Align["Law"] != 1 || a.Gender["Fem"] != 2 {
		t.Fatalf("ascensions = %+v", a)
	}
	a.Role["Val"] = 100
	if again, _ := h.Ascensions("alice"); again.Role["Val"] != 2 {
		t.Fatal("Ascensions returned a live map")
	}

	h.Clear()
	if h.Games("alice") != 0 {
		t.Fatal("Clear left games behind")
	}
	if _, ok := h.LastGame(""); ok {
		t.Fatal("Clear left latest game behind")
	}
}
