package alertbus

import (
	"testing"

	"github.com/google/uuid"

	"netids/internal/core/model"
)

func TestRingPushWithinCapacity(t *testing.T) {
	r := newRing(5)
	for i := 0; i < 3; i++ {
		r.push(model.ThreatAlert{ID: uuid.New()})
	}
	if got := r.recent(10); len(got) != 3 {
		t.Fatalf("recent(10) returned %d alerts, want 3", len(got))
	}
}

func TestRingDropsOldestOnOverflow(t *testing.T) {
	r := newRing(3)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		r.push(model.ThreatAlert{ID: id})
	}

	got := r.recent(10)
	if len(got) != 3 {
		t.Fatalf("recent(10) returned %d alerts, want capacity 3", len(got))
	}
	// Newest first: last pushed (ids[4]) should be first, oldest surviving
	// (ids[2]) should be last.
	if got[0].ID != ids[4] {
		t.Errorf("got[0].ID = %v, want newest %v", got[0].ID, ids[4])
	}
	if got[2].ID != ids[2] {
		t.Errorf("got[2].ID = %v, want oldest surviving %v", got[2].ID, ids[2])
	}
}

func TestRingRecentLimitBelowSize(t *testing.T) {
	r := newRing(10)
	for i := 0; i < 10; i++ {
		r.push(model.ThreatAlert{ID: uuid.New()})
	}
	if got := r.recent(4); len(got) != 4 {
		t.Errorf("recent(4) returned %d alerts, want 4", len(got))
	}
}

func TestRingEmpty(t *testing.T) {
	r := newRing(5)
	if got := r.recent(10); len(got) != 0 {
		t.Errorf("recent(10) on empty ring returned %d alerts, want 0", len(got))
	}
}
