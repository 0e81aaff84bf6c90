// Package coordinator owns repository registration, the per-repository
// index lifecycle, and the background jobs that build the dependency
// graph and vector index from source.
package coordinator

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"codescope/internal/config"
	"codescope/internal/embed"
	"codescope/internal/errors"
	"codescope/internal/graph"
	"codescope/internal/hashing"
	"codescope/internal/jobs"
	"codescope/internal/logging"
	"codescope/internal/model"
	"codescope/internal/parser"
	"codescope/internal/ranking"
	"codescope/internal/storage"
	"codescope/internal/vecindex"
)

// IndexState is the lifecycle state of a repository's index.
type IndexState string

const (
	StateUnindexed IndexState = "unindexed"
	StateIndexing  IndexState = "indexing"
	StateReady     IndexState = "ready"
	StateStale     IndexState = "stale"
	StateFailed    IndexState = "failed"
)

// Repository is the registration record and index status of one
// repository root.
type Repository struct {
	ID           string     `json:"id"`
	Root         string     `json:"root"`
	Name         string     `json:"name"`
	State        IndexState `json:"state"`
	IndexVersion int64      `json:"indexVersion"`
	RegisteredAt time.Time  `json:"registeredAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastError    string     `json:"lastError,omitempty"`
	ActiveJobID  string     `json:"activeJobId,omitempty"`
}

// repoEntry bundles a repository with its live in-memory indexes.
// mu guards repo, fileHashes, prevState, and pending; the graph store
// and vector index have their own locks.
type repoEntry struct {
	mu         sync.Mutex
	repo       Repository
	graph      *graph.Store
	index      *vecindex.Memory
	fileHashes map[string]string
	prevState  IndexState

	// Content hashes observed by the watcher while a job was running,
	// re-checked against fileHashes when the job finishes.
	pending map[string]string
}

// Coordinator manages all registered repositories and their indexing
// jobs. It implements ranking.IndexSource.
type Coordinator struct {
	mu        sync.RWMutex
	repos     map[string]*repoEntry
	scipPaths map[string]string // job id -> scip index path
	watchers  map[string]*Watcher

	parser   *parser.Parser
	provider embed.Provider
	runner   *jobs.Runner
	db       *storage.DB
	cfg      *config.Config
	logger   *logging.Logger
}

// New creates a coordinator, restores persisted repositories into
// memory, and registers job handlers on the runner.
func New(db *storage.DB, provider embed.Provider, runner *jobs.Runner, cfg *config.Config, logger *logging.Logger) (*Coordinator, error) {
	c := &Coordinator{
		repos:     make(map[string]*repoEntry),
		scipPaths: make(map[string]string),
		watchers:  make(map[string]*Watcher),
		parser:    parser.New(),
		provider:  provider,
		runner:    runner,
		db:        db,
		cfg:       cfg,
		logger:    logger,
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	runner.RegisterHandler(jobs.JobTypeIndexRepository, c.handleIndexJob)
	runner.RegisterHandler(jobs.JobTypeImportSCIP, c.handleSCIPJob)
	runner.OnAbandoned(c.jobAbandoned)
	return c, nil
}

// jobAbandoned restores repository state when an indexing job reaches a
// terminal state without its handler running, e.g. cancelled while still
// queued. Without this the repository would stay in the indexing state
// and reject every later request.
func (c *Coordinator) jobAbandoned(job *jobs.Job) {
	entry, err := c.entry(job.RepositoryID)
	if err != nil {
		return
	}
	entry.mu.Lock()
	active := entry.repo.ActiveJobID == job.ID
	entry.mu.Unlock()
	if !active {
		return
	}
	c.mu.Lock()
	delete(c.scipPaths, job.ID)
	c.mu.Unlock()
	c.finishJob(entry, nil, true)
}

// restore rebuilds in-memory graph stores and vector indexes from the
// database. A repository persisted mid-indexing is demoted: its last
// completed version is still usable, so it comes back stale, or
// unindexed if no version ever completed.
func (c *Coordinator) restore() error {
	rows, err := c.db.LoadRepositories()
	if err != nil {
		return err
	}
	for _, row := range rows {
		entry := &repoEntry{
			repo: Repository{
				ID:           row.ID,
				Root:         row.Root,
				Name:         row.Name,
				State:        IndexState(row.State),
				IndexVersion: row.IndexVersion,
				RegisteredAt: row.RegisteredAt,
				UpdatedAt:    row.UpdatedAt,
			},
			graph:      graph.NewStore(),
			index:      vecindex.NewMemory(),
			fileHashes: make(map[string]string),
		}
		if entry.repo.State == StateIndexing {
			if entry.repo.IndexVersion > 0 {
				entry.repo.State = StateStale
			} else {
				entry.repo.State = StateUnindexed
			}
		}

		units, err := c.db.LoadUnits(row.ID)
		if err != nil {
			return err
		}
		if err := entry.graph.UpsertUnits(units); err != nil {
			return errors.Wrap(errors.GraphCorruption, err, "restoring units for %s", row.ID)
		}
		edges, err := c.db.LoadEdges(row.ID)
		if err != nil {
			return err
		}
		if err := entry.graph.UpsertEdges(edges); err != nil {
			return errors.Wrap(errors.GraphCorruption, err, "restoring edges for %s", row.ID)
		}
		for _, u := range units {
			entry.index.SetUnitHash(u.ID, u.ContentHash)
		}
		recs, err := c.db.LoadEmbeddings(row.ID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := entry.index.Upsert(rec); err != nil {
				return err
			}
		}
		hashes, err := c.db.LoadFileHashes(row.ID)
		if err != nil {
			return err
		}
		entry.fileHashes = hashes

		c.repos[row.ID] = entry
		c.logger.Info("Restored repository", map[string]interface{}{
			"repository": row.ID,
			"state":      string(entry.repo.State),
			"units":      len(units),
			"edges":      len(edges),
		})
	}
	return nil
}

// RegisterRepository registers a directory as a repository. Registering
// the same root again returns the existing record unchanged.
func (c *Coordinator) RegisterRepository(root, name string) (Repository, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Repository{}, errors.Wrap(errors.InvalidArgument, err, "invalid repository root %q", root)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return Repository{}, errors.Wrap(errors.NotFound, err, "repository root %q", absRoot)
	}
	if !info.IsDir() {
		return Repository{}, errors.New(errors.InvalidArgument, "repository root %q is not a directory", absRoot)
	}

	id := "r:" + hashing.ShortID("repo", absRoot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.repos[id]; ok {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.repo, nil
	}

	if name == "" {
		name = filepath.Base(absRoot)
	}
	if m, err := LoadManifest(absRoot); err == nil && m != nil && m.Name != "" {
		name = m.Name
	}

	now := time.Now().UTC()
	entry := &repoEntry{
		repo: Repository{
			ID:           id,
			Root:         absRoot,
			Name:         name,
			State:        StateUnindexed,
			RegisteredAt: now,
			UpdatedAt:    now,
		},
		graph:      graph.NewStore(),
		index:      vecindex.NewMemory(),
		fileHashes: make(map[string]string),
	}
	c.repos[id] = entry

	if err := c.persistRepo(entry.repo); err != nil {
		delete(c.repos, id)
		return Repository{}, err
	}
	c.logger.Info("Registered repository", map[string]interface{}{
		"repository": id,
		"root":       absRoot,
		"name":       name,
	})
	return entry.repo, nil
}

// Repository returns a snapshot of one repository's status.
func (c *Coordinator) Repository(repoID string) (Repository, error) {
	entry, err := c.entry(repoID)
	if err != nil {
		return Repository{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.repo, nil
}

// ListRepositories returns all repositories ordered by id.
func (c *Coordinator) ListRepositories() []Repository {
	c.mu.RLock()
	entries := make([]*repoEntry, 0, len(c.repos))
	for _, e := range c.repos {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make([]Repository, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.repo)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartIndexing queues a full indexing pass over the repository. At
// most one indexing job runs per repository; a second request while one
// is active is rejected rather than queued.
func (c *Coordinator) StartIndexing(repoID string) (string, error) {
	entry, err := c.entry(repoID)
	if err != nil {
		return "", err
	}

	entry.mu.Lock()
	if entry.repo.State == StateIndexing {
		jobID := entry.repo.ActiveJobID
		entry.mu.Unlock()
		return "", errors.New(errors.AlreadyInProgress,
			"repository %s is already being indexed", repoID).
			WithDetails(map[string]string{"jobId": jobID})
	}
	entry.prevState = entry.repo.State
	entry.repo.State = StateIndexing
	entry.repo.LastError = ""

	job := jobs.NewJob(jobs.JobTypeIndexRepository, repoID)
	entry.repo.ActiveJobID = job.ID
	repo := entry.repo
	entry.mu.Unlock()

	if err := c.runner.Submit(job); err != nil {
		entry.mu.Lock()
		entry.repo.State = entry.prevState
		entry.repo.ActiveJobID = ""
		entry.mu.Unlock()
		return "", err
	}
	if err := c.persistRepo(repo); err != nil {
		c.logger.Warn("Failed to persist repository state", map[string]interface{}{
			"repository": repoID,
			"error":      err.Error(),
		})
	}
	return job.ID, nil
}

// StartSCIPImport queues a job that loads a prebuilt SCIP index file
// instead of parsing source. The same single-active-job rule applies.
func (c *Coordinator) StartSCIPImport(repoID, scipPath string) (string, error) {
	entry, err := c.entry(repoID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(scipPath); err != nil {
		return "", errors.Wrap(errors.NotFound, err, "scip index %q", scipPath)
	}

	entry.mu.Lock()
	if entry.repo.State == StateIndexing {
		entry.mu.Unlock()
		return "", errors.New(errors.AlreadyInProgress,
			"repository %s is already being indexed", repoID)
	}
	entry.prevState = entry.repo.State
	entry.repo.State = StateIndexing
	entry.repo.LastError = ""

	job := jobs.NewJob(jobs.JobTypeImportSCIP, repoID)
	entry.repo.ActiveJobID = job.ID
	entry.mu.Unlock()

	c.mu.Lock()
	c.scipPaths[job.ID] = scipPath
	c.mu.Unlock()

	if err := c.runner.Submit(job); err != nil {
		c.mu.Lock()
		delete(c.scipPaths, job.ID)
		c.mu.Unlock()
		entry.mu.Lock()
		entry.repo.State = entry.prevState
		entry.repo.ActiveJobID = ""
		entry.mu.Unlock()
		return "", err
	}
	return job.ID, nil
}

// Indexes resolves a repository to its live indexes for ranking.
// A repository that never completed an indexing pass is not queryable.
func (c *Coordinator) Indexes(repositoryID string) (*graph.Store, vecindex.Index, ranking.IndexInfo, error) {
	entry, err := c.entry(repositoryID)
	if err != nil {
		return nil, nil, ranking.IndexInfo{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.repo.IndexVersion == 0 {
		return nil, nil, ranking.IndexInfo{}, errors.New(errors.NotFound,
			"repository %s has not been indexed yet", repositoryID)
	}
	info := ranking.IndexInfo{
		Version: entry.repo.IndexVersion,
		Stale:   entry.repo.State != StateReady,
	}
	return entry.graph, entry.index, info, nil
}

// MarkFileChanged transitions a ready repository to stale when a file's
// observed content no longer matches what was indexed. Changes that
// hash to the indexed content (touch, revert) are ignored.
func (c *Coordinator) MarkFileChanged(repoID, relPath, contentHash string) {
	entry, err := c.entry(repoID)
	if err != nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if known, ok := entry.fileHashes[relPath]; ok && known == contentHash {
		delete(entry.pending, relPath)
		return
	}
	if entry.repo.State == StateIndexing {
		// The running job may or may not pick this change up; remember it
		// and let finishJob compare against what was actually indexed.
		if entry.pending == nil {
			entry.pending = make(map[string]string)
		}
		entry.pending[relPath] = contentHash
		return
	}
	if entry.repo.State != StateReady {
		return
	}
	entry.repo.State = StateStale
	entry.repo.UpdatedAt = time.Now().UTC()
	repo := entry.repo
	go func() {
		if err := c.persistRepo(repo); err != nil {
			c.logger.Warn("Failed to persist stale state", map[string]interface{}{
				"repository": repoID,
				"error":      err.Error(),
			})
		}
	}()
	c.logger.Info("Repository marked stale", map[string]interface{}{
		"repository": repoID,
		"path":       relPath,
	})
}

// ExportSnapshot writes a compressed snapshot of the repository's index.
func (c *Coordinator) ExportSnapshot(repoID string, w io.Writer) error {
	if _, err := c.entry(repoID); err != nil {
		return err
	}
	return c.db.ExportSnapshot(repoID, w)
}

// EnableWatching starts a filesystem watcher for the repository, if one
// is not already running.
func (c *Coordinator) EnableWatching(repoID string) error {
	entry, err := c.entry(repoID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	root := entry.repo.Root
	entry.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watchers[repoID]; ok {
		return nil
	}
	debounce := time.Duration(c.cfg.Indexing.DebounceMs) * time.Millisecond
	w, err := NewWatcher(c, repoID, root, debounce, c.logger)
	if err != nil {
		return errors.Wrap(errors.InternalError, err, "starting watcher for %s", repoID)
	}
	c.watchers[repoID] = w
	return nil
}

// Close stops all filesystem watchers.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = make(map[string]*Watcher)
	c.mu.Unlock()
	for _, w := range watchers {
		if err := w.Close(); err != nil {
			c.logger.Warn("Failed to close watcher", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (c *Coordinator) entry(repoID string) (*repoEntry, error) {
	c.mu.RLock()
	entry, ok := c.repos[repoID]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.NotFound, "repository %s is not registered", repoID)
	}
	return entry, nil
}

func (c *Coordinator) persistRepo(repo Repository) error {
	return c.db.SaveRepository(storage.RepositoryRow{
		ID:           repo.ID,
		Root:         repo.Root,
		Name:         repo.Name,
		State:        string(repo.State),
		IndexVersion: repo.IndexVersion,
		RegisteredAt: repo.RegisteredAt,
		UpdatedAt:    repo.UpdatedAt,
	})
}

// finishJob records the terminal outcome of an indexing job on the
// repository record. Completion bumps the index version; every version
// number is observed at most once.
func (c *Coordinator) finishJob(entry *repoEntry, jobErr error, cancelled bool) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.repo.ActiveJobID = ""
	entry.repo.UpdatedAt = time.Now().UTC()

	// Changes the watcher saw mid-job count as staleness unless the job
	// itself indexed the same content.
	missed := false
	for p, h := range entry.pending {
		if entry.fileHashes[p] != h {
			missed = true
			break
		}
	}
	entry.pending = nil

	switch {
	case cancelled:
		entry.repo.State = entry.prevState
		if missed && entry.repo.State == StateReady {
			entry.repo.State = StateStale
		}
	case jobErr != nil:
		entry.repo.State = StateFailed
		entry.repo.LastError = jobErr.Error()
	default:
		entry.repo.IndexVersion++
		entry.repo.State = StateReady
		if missed {
			entry.repo.State = StateStale
		}
		entry.repo.LastError = ""
	}
	if err := c.persistRepo(entry.repo); err != nil {
		c.logger.Warn("Failed to persist repository state", map[string]interface{}{
			"repository": entry.repo.ID,
			"error":      err.Error(),
		})
	}
}

// linkModules resolves module units against file units and returns the
// resulting edges. Relative imports resolve against the importing
// file's directory; bare imports match by path suffix. Ambiguous
// matches pick the shortest path, then lexicographically smallest.
func linkModules(g *graph.Store) []model.DependencyEdge {
	units := g.Units()
	filesByTrimmedPath := make(map[string][]model.StructuralUnit)
	var filePaths []string
	for _, u := range units {
		if u.Kind != model.KindFile {
			continue
		}
		trimmed := strings.TrimSuffix(u.Path, filepath.Ext(u.Path))
		filesByTrimmedPath[trimmed] = append(filesByTrimmedPath[trimmed], u)
		filePaths = append(filePaths, trimmed)
	}
	sort.Strings(filePaths)

	// Importing file paths per module, for resolving relative imports.
	importers := make(map[string][]string)
	for _, e := range g.Edges() {
		if e.Kind != model.EdgeImports {
			continue
		}
		if to, ok := g.Unit(e.To); ok && to.Kind == model.KindModule {
			if from, ok := g.Unit(e.From); ok {
				importers[to.ID] = append(importers[to.ID], from.Path)
			}
		}
	}

	var out []model.DependencyEdge
	for _, u := range units {
		if u.Kind != model.KindModule {
			continue
		}
		target := resolveModuleTarget(u, importers[u.ID], filesByTrimmedPath, filePaths)
		if target == "" || target == u.ID {
			continue
		}
		out = append(out, model.DependencyEdge{
			From:       u.ID,
			To:         target,
			Kind:       model.EdgeReferences,
			Confidence: 0.8,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func resolveModuleTarget(mod model.StructuralUnit, importerPaths []string, files map[string][]model.StructuralUnit, sortedPaths []string) string {
	name := mod.Name
	if strings.HasPrefix(name, ".") {
		sort.Strings(importerPaths)
		for _, from := range importerPaths {
			resolved := filepath.ToSlash(filepath.Clean(filepath.Join(filepath.Dir(from), name)))
			if us, ok := files[resolved]; ok {
				return us[0].ID
			}
			if us, ok := files[resolved+"/index"]; ok {
				return us[0].ID
			}
		}
		return ""
	}
	name = filepath.ToSlash(name)
	var best string
	for _, p := range sortedPaths {
		if p == name || strings.HasSuffix(p, "/"+name) {
			if best == "" || len(p) < len(best) {
				best = p
			}
		}
	}
	if best == "" {
		return ""
	}
	return files[best][0].ID
}
