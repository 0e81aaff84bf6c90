// Package service wires the engine together behind one facade: config,
// storage, the indexing coordinator, the ranking engine, and the impact
// analyzer. Callers (the CLI, embedding hosts) talk to this package
// with plain structs and never reach into the internals.
package service

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"codescope/internal/config"
	"codescope/internal/coordinator"
	"codescope/internal/embed"
	"codescope/internal/errors"
	"codescope/internal/graph"
	"codescope/internal/impact"
	"codescope/internal/jobs"
	"codescope/internal/logging"
	"codescope/internal/model"
	"codescope/internal/ranking"
	"codescope/internal/storage"
)

// Service is the top-level engine handle.
type Service struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *storage.DB
	runner   *jobs.Runner
	coord    *coordinator.Coordinator
	engine   *ranking.Engine
	sessions *ranking.SessionStore
	analyzer *impact.Analyzer
}

// Options controls service construction.
type Options struct {
	// Root is the working directory holding .codescope. Defaults to
	// the current directory.
	Root string
	// Logger overrides the logger built from configuration.
	Logger *logging.Logger
	// Provider overrides the embedding provider built from
	// configuration. Tests use this with a static provider.
	Provider embed.Provider
}

// New constructs a fully wired service.
func New(opts Options) (*Service, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "loading configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.Config{
			Format: logging.Format(cfg.Logging.Format),
			Level:  logging.LogLevel(cfg.Logging.Level),
		})
	}

	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}
	db, err := storage.Open(filepath.Join(dataDir, "data"), logger)
	if err != nil {
		return nil, err
	}
	idle := time.Duration(cfg.Sessions.IdleTimeoutMinutes) * time.Minute
	if n, err := db.DeleteSessionsBefore(time.Now().Add(-idle)); err == nil && n > 0 {
		logger.Debug("Expired persisted sessions", map[string]interface{}{
			"count": n,
		})
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = buildProvider(cfg.Embedding)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	runner := jobs.NewRunner(logger, jobs.RunnerConfig{
		QueueSize:   100,
		WorkerCount: 2,
	})

	coord, err := coordinator.New(db, provider, runner, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	runner.Start()

	sessions := ranking.NewSessionStore(
		time.Duration(cfg.Sessions.IdleTimeoutMinutes)*time.Minute,
		time.Duration(cfg.Sessions.SweepIntervalMinutes)*time.Minute,
		logger,
	)
	engine := ranking.NewEngine(coord, provider, sessions, cfg.Ranking, logger)
	analyzer := impact.NewAnalyzer(coord, logger)

	return &Service{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		runner:   runner,
		coord:    coord,
		engine:   engine,
		sessions: sessions,
		analyzer: analyzer,
	}, nil
}

// buildProvider constructs the configured embedding provider, wrapped
// with the configured timeout.
func buildProvider(cfg config.EmbeddingConfig) (embed.Provider, error) {
	var p embed.Provider
	switch cfg.Provider {
	case "ollama":
		p = embed.NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, errors.New(errors.InvalidArgument,
				"embedding provider openai requires %s to be set", cfg.APIKeyEnv)
		}
		p = embed.NewOpenAIProvider(apiKey, cfg.BaseURL, cfg.Model)
	case "static":
		p = embed.NewStaticProvider(cfg.Dimension)
	default:
		return nil, errors.New(errors.InvalidArgument,
			"unknown embedding provider %q", cfg.Provider)
	}
	return embed.WithTimeout(p, time.Duration(cfg.TimeoutMs)*time.Millisecond), nil
}

// Close shuts the service down: watchers, job runner, session sweeper,
// then the database.
func (s *Service) Close() error {
	s.coord.Close()
	if err := s.runner.Stop(10 * time.Second); err != nil {
		s.logger.Warn("Job runner did not stop cleanly", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.sessions.Stop()
	return s.db.Close()
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// RegisterRepository registers a directory for indexing. Registration
// is idempotent per resolved absolute path.
func (s *Service) RegisterRepository(root, name string) (coordinator.Repository, error) {
	repo, err := s.coord.RegisterRepository(root, name)
	if err != nil {
		return coordinator.Repository{}, err
	}
	if s.cfg.Indexing.WatchForChanges {
		if err := s.coord.EnableWatching(repo.ID); err != nil {
			s.logger.Warn("Failed to start watcher", map[string]interface{}{
				"repository": repo.ID,
				"error":      err.Error(),
			})
		}
	}
	return repo, nil
}

// StartIndexing queues an indexing job and returns its id.
func (s *Service) StartIndexing(repositoryID string) (string, error) {
	return s.coord.StartIndexing(repositoryID)
}

// ImportSCIP queues a job loading a prebuilt SCIP index file.
func (s *Service) ImportSCIP(repositoryID, scipPath string) (string, error) {
	return s.coord.StartSCIPImport(repositoryID, scipPath)
}

// GetIndexStatus returns the repository's lifecycle state and version.
func (s *Service) GetIndexStatus(repositoryID string) (coordinator.Repository, error) {
	return s.coord.Repository(repositoryID)
}

// ListRepositories returns all registered repositories.
func (s *Service) ListRepositories() []coordinator.Repository {
	return s.coord.ListRepositories()
}

// GetJob returns a background job by id.
func (s *Service) GetJob(jobID string) (*jobs.Job, error) {
	job, ok := s.runner.GetJob(jobID)
	if !ok {
		return nil, errors.New(errors.NotFound, "job %s not found", jobID)
	}
	return job, nil
}

// ListJobs returns all known jobs, newest first.
func (s *Service) ListJobs() []*jobs.Job {
	return s.runner.ListJobs()
}

// CancelJob requests cancellation of a running or queued job.
func (s *Service) CancelJob(jobID string) error {
	return s.runner.Cancel(jobID)
}

// Recommend ranks repository units against a query and opens a session.
func (s *Service) Recommend(ctx context.Context, repositoryID, query string, maxResults int) (*ranking.Session, error) {
	sess, err := s.engine.Recommend(ctx, repositoryID, query, maxResults)
	if err != nil {
		return nil, err
	}
	s.persistSession(sess)
	return sess, nil
}

// SubmitFeedback appends a relevance signal to a session.
func (s *Service) SubmitFeedback(sessionID, candidateID string, signal model.FeedbackSignal) (*ranking.Session, error) {
	if err := s.reviveSession(sessionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Feedback(sessionID, candidateID, signal)
	if err != nil {
		return nil, err
	}
	s.persistSession(sess)
	return sess, nil
}

// Refine derives a new session from an existing one, applying its
// feedback log to the ranking.
func (s *Service) Refine(ctx context.Context, sessionID, adjustedQuery string) (*ranking.Session, error) {
	if err := s.reviveSession(sessionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Refine(ctx, sessionID, adjustedQuery)
	if err != nil {
		return nil, err
	}
	s.persistSession(sess)
	return sess, nil
}

// GetSession returns a session snapshot by id.
func (s *Service) GetSession(sessionID string) (*ranking.Session, error) {
	if err := s.reviveSession(sessionID); err != nil {
		return nil, err
	}
	return s.sessions.Get(sessionID)
}

// persistSession writes a session through to storage so a later process
// can pick it up for feedback or refinement.
func (s *Service) persistSession(sess *ranking.Session) {
	payload, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn("Failed to encode session", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
		return
	}
	if err := s.db.SaveSession(sess.ID, sess.RepositoryID, sess.LastActiveAt, payload); err != nil {
		s.logger.Warn("Failed to persist session", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
	}
}

// reviveSession loads a persisted session into the in-memory store if
// it is not already there. Sessions idle past the configured timeout
// stay expired.
func (s *Service) reviveSession(sessionID string) error {
	if _, err := s.sessions.Get(sessionID); err == nil {
		return nil
	}
	payload, err := s.db.LoadSession(sessionID)
	if err != nil {
		return errors.New(errors.NotFound, "session %s not found", sessionID)
	}
	var sess ranking.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return errors.Wrap(errors.InternalError, err, "decoding session %s", sessionID)
	}
	idle := time.Duration(s.cfg.Sessions.IdleTimeoutMinutes) * time.Minute
	if time.Since(sess.LastActiveAt) > idle {
		return errors.New(errors.NotFound, "session %s expired", sessionID)
	}
	s.sessions.Put(&sess)
	return nil
}

// GetDependencyGraph extracts the subgraph around one unit.
func (s *Service) GetDependencyGraph(repositoryID, unitID string, direction model.Direction, maxDepth int) (*graph.Subgraph, error) {
	g, _, _, err := s.coord.Indexes(repositoryID)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = 2
	}
	return g.Extract(unitID, direction, maxDepth)
}

// DetectCycles reports dependency cycles in a repository's graph.
func (s *Service) DetectCycles(repositoryID string) ([]graph.Cycle, error) {
	g, _, _, err := s.coord.Indexes(repositoryID)
	if err != nil {
		return nil, err
	}
	return g.DetectCycles(), nil
}

// AnalyzeImpact estimates which units depend on a set of changed files.
func (s *Service) AnalyzeImpact(repositoryID string, changedFiles []string, maxDepth int) (*impact.Report, error) {
	return s.analyzer.Analyze(repositoryID, changedFiles, maxDepth)
}

// ExportSnapshot writes a compressed index snapshot to w.
func (s *Service) ExportSnapshot(repositoryID string, w io.Writer) error {
	return s.coord.ExportSnapshot(repositoryID, w)
}
