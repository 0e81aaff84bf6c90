package ranking

import (
	"testing"
	"time"

	"codescope/internal/errors"
	"codescope/internal/logging"
	"codescope/internal/model"
)

func newTestSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		RepositoryID: "repo",
		Query:        "q",
		MaxResults:   5,
		IndexVersion: 1,
		Candidates: []Candidate{
			{UnitID: "u1", FusedScore: 0.9, Adjustment: 1.0},
			{UnitID: "u2", FusedScore: 0.5, Adjustment: 1.0},
		},
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func TestSessionStoreGetUnknown(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Minute, logging.Discard())
	defer s.Stop()
	_, err := s.Get("missing")
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAppendFeedback(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Minute, logging.Discard())
	defer s.Stop()
	s.Put(newTestSession("s1"))

	sess, err := s.AppendFeedback("s1", "u1", model.SignalRelevant)
	if err != nil {
		t.Fatalf("AppendFeedback: %v", err)
	}
	if len(sess.Feedback) != 1 {
		t.Fatalf("feedback entries = %d, want 1", len(sess.Feedback))
	}

	// Append-only: a second judgement on the same candidate adds an entry.
	sess, err = s.AppendFeedback("s1", "u1", model.SignalIrrelevant)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Feedback) != 2 {
		t.Fatalf("feedback entries = %d, want 2", len(sess.Feedback))
	}

	signals := effectiveSignals(sess.Feedback)
	if signals["u1"] != model.SignalIrrelevant {
		t.Errorf("effective signal = %v, want irrelevant (latest wins)", signals["u1"])
	}
}

func TestAppendFeedbackUnknownCandidate(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Minute, logging.Discard())
	defer s.Stop()
	s.Put(newTestSession("s1"))

	_, err := s.AppendFeedback("s1", "ghost", model.SignalRelevant)
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected NotFound for unknown candidate, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Hour, logging.Discard())
	defer s.Stop()
	s.Put(newTestSession("s1"))

	// Not yet idle long enough.
	s.sweep(time.Now().Add(30 * time.Second))
	if _, err := s.Get("s1"); err != nil {
		t.Fatalf("session expired too early: %v", err)
	}

	s.sweep(time.Now().Add(2 * time.Minute))
	if _, err := s.Get("s1"); !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected NotFound after expiry, got %v", err)
	}
}

func TestGetTouchesSession(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Hour, logging.Discard())
	defer s.Stop()
	sess := newTestSession("s1")
	sess.LastActiveAt = time.Now().Add(-50 * time.Second)
	s.Put(sess)

	if _, err := s.Get("s1"); err != nil {
		t.Fatal(err)
	}
	// The Get above refreshed activity, so a sweep slightly past the
	// original deadline must keep the session.
	s.sweep(time.Now().Add(30 * time.Second))
	if _, err := s.Get("s1"); err != nil {
		t.Fatalf("touched session expired: %v", err)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := NewSessionStore(time.Minute, time.Hour, logging.Discard())
	defer s.Stop()
	s.Put(newTestSession("s1"))

	snap, err := s.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	snap.Candidates[0].FusedScore = -1

	again, err := s.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Candidates[0].FusedScore == -1 {
		t.Errorf("mutating a returned session leaked into the store")
	}
}
