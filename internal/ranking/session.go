// Package ranking implements the retrieval and ranking engine: semantic
// retrieval fused with graph proximity, session state, and feedback-driven
// refinement.
package ranking

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"codescope/internal/errors"
	"codescope/internal/logging"
	"codescope/internal/model"
)

// Candidate is one ranked recommendation with its full score breakdown.
// The breakdown is persisted so refine can recompute without re-querying
// the vector index from scratch.
type Candidate struct {
	UnitID        string         `json:"unitId"`
	Path          string         `json:"path"`
	Name          string         `json:"name,omitempty"`
	Kind          model.UnitKind `json:"kind"`
	SemanticScore float64        `json:"semanticScore"`
	GraphScore    float64        `json:"graphScore"`
	FusedScore    float64        `json:"fusedScore"`
	Adjustment    float64        `json:"adjustment"` // feedback multiplier, 1.0 when none
	Reasons       []string       `json:"reasons"`
}

// Session is a recommendation session. Sessions are append-only history:
// refine derives a new session chained to its parent instead of mutating
// rankings in place. Only the feedback log and the activity timestamp
// change after creation.
type Session struct {
	ID           string                `json:"id"`
	ParentID     string                `json:"parentId,omitempty"`
	RepositoryID string                `json:"repositoryId"`
	Query        string                `json:"query"`
	MaxResults   int                   `json:"maxResults"`
	IndexVersion int64                 `json:"indexVersion"`
	StaleIndex   bool                  `json:"staleIndex"`
	Candidates   []Candidate           `json:"candidates"`
	Feedback     []model.FeedbackEntry `json:"feedback"`
	CreatedAt    time.Time             `json:"createdAt"`
	LastActiveAt time.Time             `json:"lastActiveAt"`
}

// sessionEntry pairs a session with its exclusive-access lock. Feedback and
// refine racing on the same session serialize here.
type sessionEntry struct {
	mu   sync.Mutex
	sess *Session
}

// SessionStore holds live sessions and expires idle ones.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry

	idleTimeout time.Duration
	logger      *logging.Logger

	done      chan struct{}
	stopOnce  sync.Once
	sweepDone sync.WaitGroup
}

// NewSessionStore creates a store whose sessions expire after idleTimeout
// without activity. sweepInterval controls how often expiry runs.
func NewSessionStore(idleTimeout, sweepInterval time.Duration, logger *logging.Logger) *SessionStore {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	s := &SessionStore{
		entries:     make(map[string]*sessionEntry),
		idleTimeout: idleTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
	s.sweepDone.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

// Stop halts the expiry sweeper.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.sweepDone.Wait()
}

func (s *SessionStore) sweepLoop(interval time.Duration) {
	defer s.sweepDone.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *SessionStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for id, e := range s.entries {
		e.mu.Lock()
		idle := now.Sub(e.sess.LastActiveAt)
		e.mu.Unlock()
		if idle > s.idleTimeout {
			delete(s.entries, id)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Debug("Expired idle sessions", map[string]interface{}{
			"count": expired,
		})
	}
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.New().String()
}

// Put stores a session.
func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = &sessionEntry{sess: sess}
}

// Get returns a copy of the session, touching its activity timestamp.
func (s *SessionStore) Get(id string) (*Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.LastActiveAt = time.Now().UTC()
	return snapshotSession(e.sess), nil
}

// AppendFeedback appends one entry to the session's feedback log. Fails
// with NotFound for an unknown session or a candidate id the session does
// not contain. The stored ranking is not reordered; feedback is input to
// refine.
func (s *SessionStore) AppendFeedback(sessionID, candidateID string, signal model.FeedbackSignal) (*Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	found := false
	for i := range e.sess.Candidates {
		if e.sess.Candidates[i].UnitID == candidateID {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New(errors.NotFound, "candidate %s not in session %s", candidateID, sessionID)
	}

	now := time.Now().UTC()
	e.sess.Feedback = append(e.sess.Feedback, model.FeedbackEntry{
		CandidateID: candidateID,
		Signal:      signal,
		Timestamp:   now,
	})
	e.sess.LastActiveAt = now
	return snapshotSession(e.sess), nil
}

// WithLocked runs fn with exclusive access to the session. Used by refine
// so the feedback snapshot it reads cannot race a concurrent append.
func (s *SessionStore) WithLocked(id string, fn func(sess *Session) error) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.LastActiveAt = time.Now().UTC()
	return fn(e.sess)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *SessionStore) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.New(errors.NotFound, "session %s not found", id)
	}
	return e, nil
}

// snapshotSession deep-copies the mutable parts of a session.
func snapshotSession(in *Session) *Session {
	out := *in
	out.Candidates = make([]Candidate, len(in.Candidates))
	for i, c := range in.Candidates {
		out.Candidates[i] = c
		out.Candidates[i].Reasons = append([]string(nil), c.Reasons...)
	}
	out.Feedback = append([]model.FeedbackEntry(nil), in.Feedback...)
	return &out
}

// effectiveSignals reduces a feedback log to the latest signal per
// candidate, in deterministic order.
func effectiveSignals(log []model.FeedbackEntry) map[string]model.FeedbackSignal {
	out := make(map[string]model.FeedbackSignal, len(log))
	for _, entry := range log {
		out[entry.CandidateID] = entry.Signal
	}
	return out
}

// sortCandidates orders by fused score descending, ties broken by unit id
// ascending.
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].FusedScore != cands[j].FusedScore {
			return cands[i].FusedScore > cands[j].FusedScore
		}
		return cands[i].UnitID < cands[j].UnitID
	})
}
