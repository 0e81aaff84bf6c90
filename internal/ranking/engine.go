package ranking

import (
	"context"
	"fmt"
	"time"

	"codescope/internal/config"
	"codescope/internal/embed"
	"codescope/internal/errors"
	"codescope/internal/graph"
	"codescope/internal/logging"
	"codescope/internal/model"
	"codescope/internal/vecindex"
)

// IndexInfo describes the index snapshot a recommendation ran against.
type IndexInfo struct {
	Version int64
	Stale   bool
}

// IndexSource resolves a repository id to its live graph store and vector
// index. The coordinator implements this; the engine depends only on the
// capability.
type IndexSource interface {
	Indexes(repositoryID string) (*graph.Store, vecindex.Index, IndexInfo, error)
}

// Engine fuses semantic-similarity and graph-proximity signals into ranked,
// confidence-scored recommendations, and owns session state for iterative
// refinement.
//
// Ranking is deterministic: for a fixed index state, query text, and weight
// configuration, repeated calls return identical candidate lists and
// reasons. The only external call is the single query embedding.
type Engine struct {
	source   IndexSource
	provider embed.Provider
	sessions *SessionStore
	cfg      config.RankingConfig
	logger   *logging.Logger
}

// NewEngine creates a ranking engine.
func NewEngine(source IndexSource, provider embed.Provider, sessions *SessionStore, cfg config.RankingConfig, logger *logging.Logger) *Engine {
	return &Engine{
		source:   source,
		provider: provider,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sessions exposes the engine's session store.
func (e *Engine) Sessions() *SessionStore {
	return e.sessions
}

// Recommend ranks the units of a repository against a natural-language
// query and opens a new session capturing the full score breakdown.
func (e *Engine) Recommend(ctx context.Context, repositoryID, queryText string, maxResults int) (*Session, error) {
	if maxResults <= 0 {
		return nil, errors.New(errors.InvalidArgument, "maxResults must be positive")
	}
	sess, err := e.rank(ctx, repositoryID, queryText, maxResults, "", nil)
	if err != nil {
		return nil, err
	}
	e.sessions.Put(sess)
	e.logger.Info("Recommendation session created", map[string]interface{}{
		"sessionId":  sess.ID,
		"repository": repositoryID,
		"candidates": len(sess.Candidates),
		"staleIndex": sess.StaleIndex,
	})
	return snapshotSession(sess), nil
}

// Feedback appends a signal to a session's feedback log. The ranking is
// not reordered; the log is input to Refine.
func (e *Engine) Feedback(sessionID, candidateID string, signal model.FeedbackSignal) (*Session, error) {
	return e.sessions.AppendFeedback(sessionID, candidateID, signal)
}

// Refine derives a new session from an existing one: it re-runs retrieval
// with the adjusted query (or the original), then damps candidates the
// feedback log marks irrelevant and boosts those marked relevant. The
// parent session is retained unchanged for audit.
func (e *Engine) Refine(ctx context.Context, sessionID, adjustedQuery string) (*Session, error) {
	var parentID, repositoryID, query string
	var maxResults int
	var signals map[string]model.FeedbackSignal

	err := e.sessions.WithLocked(sessionID, func(sess *Session) error {
		parentID = sess.ID
		repositoryID = sess.RepositoryID
		query = sess.Query
		maxResults = sess.MaxResults
		signals = effectiveSignals(sess.Feedback)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if adjustedQuery != "" {
		query = adjustedQuery
	}

	sess, err := e.rank(ctx, repositoryID, query, maxResults, parentID, signals)
	if err != nil {
		return nil, err
	}
	e.sessions.Put(sess)
	e.logger.Info("Session refined", map[string]interface{}{
		"sessionId": sess.ID,
		"parentId":  parentID,
		"feedback":  len(signals),
	})
	return snapshotSession(sess), nil
}

// rank runs retrieval steps 2-7: fetch candidates, apply the graph bonus,
// fuse, sort, truncate, attach reasons, build the session.
func (e *Engine) rank(ctx context.Context, repositoryID, queryText string, maxResults int, parentID string, signals map[string]model.FeedbackSignal) (*Session, error) {
	g, idx, info, err := e.source.Indexes(repositoryID)
	if err != nil {
		return nil, err
	}

	queryVec, err := e.provider.Embed(ctx, queryText)
	if err != nil {
		// Never treated as zero similarity: that would corrupt ranking.
		return nil, errors.Wrap(errors.EmbeddingService, err, "query embedding failed")
	}

	n := maxResults * e.cfg.CandidateMultiplier
	if n < maxResults {
		n = maxResults
	}
	matches := idx.Query(queryVec, n, nil)

	seeds := e.pickSeeds(matches)
	distances := e.seedDistances(g, seeds, matches)

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		c := Candidate{
			UnitID:        m.UnitID,
			SemanticScore: m.Similarity,
			Adjustment:    1.0,
		}
		if u, ok := g.Unit(m.UnitID); ok {
			c.Path = u.Path
			c.Name = u.Name
			c.Kind = u.Kind
		}

		if d, reachable := distances[m.UnitID]; reachable {
			c.GraphScore = e.cfg.GraphWeight / float64(1+d.distance)
		}
		c.FusedScore = e.cfg.SemanticWeight*c.SemanticScore + c.GraphScore

		if signals != nil {
			switch signals[m.UnitID] {
			case model.SignalIrrelevant:
				c.Adjustment = e.cfg.DampingFactor
			case model.SignalRelevant:
				c.Adjustment = e.cfg.BoostFactor
			}
			c.FusedScore *= c.Adjustment
		}

		c.Reasons = e.reasons(g, c, distances[m.UnitID], signals)
		candidates = append(candidates, c)
	}

	sortCandidates(candidates)
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	now := time.Now().UTC()
	return &Session{
		ID:           NewSessionID(),
		ParentID:     parentID,
		RepositoryID: repositoryID,
		Query:        queryText,
		MaxResults:   maxResults,
		IndexVersion: info.Version,
		StaleIndex:   info.Stale,
		Candidates:   candidates,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// pickSeeds selects the seed units: the strongest semantic hits above the
// high-confidence threshold, at most SeedCount of them. Matches arrive
// sorted, so seeds are a deterministic prefix.
func (e *Engine) pickSeeds(matches []vecindex.Match) []vecindex.Match {
	var seeds []vecindex.Match
	for _, m := range matches {
		if len(seeds) >= e.cfg.SeedCount {
			break
		}
		if m.Similarity < e.cfg.SeedThreshold {
			break
		}
		seeds = append(seeds, m)
	}
	return seeds
}

// seedDistance records the nearest seed to a candidate.
type seedDistance struct {
	distance int
	seedID   string
	edgeKind model.EdgeKind // edge kind when distance is exactly 1
}

// seedDistances runs one BFS per seed over the candidate set and keeps the
// minimum distance per candidate. Unreachable candidates are absent.
func (e *Engine) seedDistances(g *graph.Store, seeds, matches []vecindex.Match) map[string]seedDistance {
	targets := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		targets[m.UnitID] = struct{}{}
	}

	out := make(map[string]seedDistance)
	for _, seed := range seeds {
		dists := g.Distances(seed.UnitID, targets, model.DirBoth, e.cfg.MaxGraphDepth)
		for unitID, d := range dists {
			cur, seen := out[unitID]
			if seen && (cur.distance < d || (cur.distance == d && cur.seedID <= seed.UnitID)) {
				continue
			}
			sd := seedDistance{distance: d, seedID: seed.UnitID}
			if d == 1 {
				sd.edgeKind = edgeKindBetween(g, seed.UnitID, unitID)
			}
			out[unitID] = sd
		}
	}
	return out
}

// edgeKindBetween reports the kind of a direct edge between two units, in
// either direction, preferring imports as the most explainable relation.
func edgeKindBetween(g *graph.Store, a, b string) model.EdgeKind {
	kinds := g.EdgeKinds(a, b)
	kinds = append(kinds, g.EdgeKinds(b, a)...)
	var found model.EdgeKind
	for _, k := range kinds {
		if k == model.EdgeImports {
			return k
		}
		if found == "" {
			found = k
		}
	}
	return found
}

// reasons builds the human-readable justification for one candidate.
// Confidence without justification is not actionable.
func (e *Engine) reasons(g *graph.Store, c Candidate, sd seedDistance, signals map[string]model.FeedbackSignal) []string {
	out := []string{fmt.Sprintf("semantic similarity %.2f", c.SemanticScore)}

	if sd.seedID != "" {
		seedName := sd.seedID
		if u, ok := g.Unit(sd.seedID); ok && u.Name != "" {
			seedName = u.Name
		}
		switch {
		case sd.distance == 0:
			out = append(out, "high-confidence semantic seed")
		case sd.distance == 1 && sd.edgeKind == model.EdgeImports:
			out = append(out, fmt.Sprintf("direct import of seed %s", seedName))
		case sd.distance == 1:
			out = append(out, fmt.Sprintf("directly linked to seed %s (%s)", seedName, sd.edgeKind))
		default:
			out = append(out, fmt.Sprintf("graph distance %d from seed %s", sd.distance, seedName))
		}
	}

	if signals != nil {
		switch signals[c.UnitID] {
		case model.SignalRelevant:
			out = append(out, fmt.Sprintf("boosted %.1fx by relevant feedback", e.cfg.BoostFactor))
		case model.SignalIrrelevant:
			out = append(out, fmt.Sprintf("damped %.1fx by irrelevant feedback", e.cfg.DampingFactor))
		}
	}
	return out
}
