package dispatch

import "testing"

func TestEventRing_RecentReturnsNewestFirst(t *testing.T) {
	r := newEventRing()
	r.append("a", "crew-1", "first")
	r.append("b", "crew-1", "second")
	r.append("c", "crew-1", "third")

	got := r.recent(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Detail != "third" || got[1].Detail != "second" {
		t.Fatalf("expected newest-first order, got %+v", got)
	}
}

func TestEventRing_WrapsAtCapacity(t *testing.T) {
	r := newEventRing()
	for i := 0; i < maxEvents+10; i++ {
		r.append("kind", "crew", "detail")
	}
	got := r.recent(0)
	if len(got) != maxEvents {
		t.Fatalf("expected ring to cap at %d, got %d", maxEvents, len(got))
	}
}
