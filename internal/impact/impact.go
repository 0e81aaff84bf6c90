// Package impact estimates the blast radius of a set of changed files
// by walking the dependency graph against edge direction: everything
// that depends, directly or transitively, on the changed units.
package impact

import (
	"sort"

	"codescope/internal/errors"
	"codescope/internal/logging"
	"codescope/internal/model"
	"codescope/internal/ranking"
)

// Risk buckets impacted units by dependency distance.
type Risk string

const (
	RiskHigh   Risk = "high"   // direct dependents
	RiskMedium Risk = "medium" // two hops away
	RiskLow    Risk = "low"    // further
)

func riskForDistance(d int) Risk {
	switch {
	case d <= 1:
		return RiskHigh
	case d == 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ImpactedUnit is one dependent of the changed set.
type ImpactedUnit struct {
	UnitID   string         `json:"unitId"`
	Path     string         `json:"path"`
	Name     string         `json:"name,omitempty"`
	Kind     model.UnitKind `json:"kind"`
	Distance int            `json:"distance"`
	Risk     Risk           `json:"risk"`
}

// Report is the result of one impact analysis.
type Report struct {
	RepositoryID string         `json:"repositoryId"`
	ChangedFiles []string       `json:"changedFiles"`
	MaxDepth     int            `json:"maxDepth"`
	ChangedUnits int            `json:"changedUnits"`
	Impacted     []ImpactedUnit `json:"impacted"`
	StaleIndex   bool           `json:"staleIndex,omitempty"`
}

// Analyzer runs impact analysis over a repository's live index.
type Analyzer struct {
	source ranking.IndexSource
	logger *logging.Logger
}

func NewAnalyzer(source ranking.IndexSource, logger *logging.Logger) *Analyzer {
	return &Analyzer{source: source, logger: logger}
}

// Analyze walks inbound edges from every unit of the changed files up
// to maxDepth hops. A unit reachable from several changed files keeps
// its minimum distance. The changed units themselves are not listed.
func (a *Analyzer) Analyze(repositoryID string, changedFiles []string, maxDepth int) (*Report, error) {
	if len(changedFiles) == 0 {
		return nil, errors.New(errors.InvalidArgument, "changedFiles must not be empty")
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}

	g, _, info, err := a.source.Indexes(repositoryID)
	if err != nil {
		return nil, err
	}

	origins := make(map[string]struct{})
	sortedFiles := append([]string(nil), changedFiles...)
	sort.Strings(sortedFiles)
	for _, path := range sortedFiles {
		for _, u := range g.UnitsByPath(path) {
			origins[u.ID] = struct{}{}
		}
	}
	if len(origins) == 0 {
		return nil, errors.New(errors.NotFound,
			"none of the changed files are indexed in repository %s", repositoryID)
	}

	// Union of reverse-BFS frontiers, keeping the minimum distance.
	minDist := make(map[string]int)
	originIDs := make([]string, 0, len(origins))
	for id := range origins {
		originIDs = append(originIDs, id)
	}
	sort.Strings(originIDs)
	for _, origin := range originIDs {
		neighbors, err := g.Neighbors(origin, model.DirIn, maxDepth)
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			if _, isOrigin := origins[n.UnitID]; isOrigin {
				continue
			}
			if d, ok := minDist[n.UnitID]; !ok || n.Distance < d {
				minDist[n.UnitID] = n.Distance
			}
		}
	}

	impacted := make([]ImpactedUnit, 0, len(minDist))
	for id, d := range minDist {
		u, ok := g.Unit(id)
		if !ok {
			continue
		}
		impacted = append(impacted, ImpactedUnit{
			UnitID:   id,
			Path:     u.Path,
			Name:     u.Name,
			Kind:     u.Kind,
			Distance: d,
			Risk:     riskForDistance(d),
		})
	}
	sort.Slice(impacted, func(i, j int) bool {
		if impacted[i].Distance != impacted[j].Distance {
			return impacted[i].Distance < impacted[j].Distance
		}
		return impacted[i].UnitID < impacted[j].UnitID
	})

	a.logger.Debug("Impact analysis completed", map[string]interface{}{
		"repository": repositoryID,
		"changed":    len(origins),
		"impacted":   len(impacted),
	})

	return &Report{
		RepositoryID: repositoryID,
		ChangedFiles: sortedFiles,
		MaxDepth:     maxDepth,
		ChangedUnits: len(origins),
		Impacted:     impacted,
		StaleIndex:   info.Stale,
	}, nil
}
