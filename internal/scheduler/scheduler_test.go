package scheduler

import (
	"testing"
	"time"

	"github.com/i474232898/weather-chat/internal/store"
)

func TestSweepOnce(t *testing.T) {
	sessions := store.NewMemoryStore(0, store.Settings{})
	sessions.Create(store.Settings{})
	sessions.Create(store.Settings{})

	s := New(sessions, 30*time.Minute, time.Minute)

	if removed := s.sweepOnce(); removed != 0 {
		t.Fatalf("fresh sessions must survive, removed %d", removed)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if removed := s.sweepOnce(); removed != 2 {
		t.Fatalf("expected 2 removed sessions, got %d", removed)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected empty store, got %d", sessions.Len())
	}
}

func TestStartDisabled(t *testing.T) {
	s := New(store.NewMemoryStore(0, store.Settings{}), 0, time.Minute)
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
}

func TestStartHonoursSubMinuteInterval(t *testing.T) {
	s := New(store.NewMemoryStore(0, store.Settings{}), time.Hour, 30*time.Second)
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	jobs := s.scheduler.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if next := jobs[0].NextRun(); next.After(time.Now().Add(time.Minute)) {
		t.Fatalf("30s interval scheduled too late: next run %s", next)
	}
}
