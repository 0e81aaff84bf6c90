package coordinator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"codescope/internal/errors"
	"codescope/internal/hashing"
	"codescope/internal/jobs"
	"codescope/internal/model"
	"codescope/internal/parser"
)

// Directories never worth indexing, independent of user ignore rules.
var skippedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".codescope":   {},
	"node_modules": {},
	"vendor":       {},
	"target":       {},
	"__pycache__":  {},
}

// handleIndexJob is the job handler for a full indexing pass.
func (c *Coordinator) handleIndexJob(ctx context.Context, job *jobs.Job, progress func(int)) error {
	entry, err := c.entry(job.RepositoryID)
	if err != nil {
		return err
	}
	jobErr := c.indexRepository(ctx, entry, job, progress)
	c.finishJob(entry, jobErr, ctx.Err() != nil)
	return jobErr
}

func (c *Coordinator) indexRepository(ctx context.Context, entry *repoEntry, job *jobs.Job, progress func(int)) error {
	entry.mu.Lock()
	root := entry.repo.Root
	repoID := entry.repo.ID
	entry.mu.Unlock()

	ignore := append([]string(nil), c.cfg.Indexing.Ignore...)
	if m, err := LoadManifest(root); err == nil && m != nil {
		ignore = append(ignore, m.Ignore...)
	}

	files, err := c.collectFiles(root, ignore)
	if err != nil {
		return err
	}
	c.removeDeletedFiles(entry, repoID, files)

	var (
		statsMu sync.Mutex
		seen    = len(files)
		done    int
		indexed int
		skipped int
		failed  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := c.cfg.Indexing.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, relPath := range files {
		relPath := relPath
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := c.indexFile(gctx, entry, repoID, root, relPath)
			if err != nil {
				return err
			}
			statsMu.Lock()
			switch outcome {
			case fileIndexed:
				indexed++
			case fileSkipped:
				skipped++
			case fileFailed:
				failed = append(failed, relPath)
			}
			done++
			pct := 0
			if seen > 0 {
				pct = done * 90 / seen
			}
			statsMu.Unlock()
			progress(pct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Strings(failed)
	c.runner.UpdateJob(job.ID, func(j *jobs.Job) {
		j.Stats.FilesSeen = seen
		j.Stats.FilesIndexed = indexed
		j.Stats.FilesSkipped = skipped
		j.FailedFiles = failed
	})

	// Cross-file linking runs after every batch is applied, so both
	// endpoints of each resolved edge are guaranteed present.
	linkEdges := linkModules(entry.graph)
	if len(linkEdges) > 0 {
		if err := entry.graph.UpsertEdges(linkEdges); err != nil {
			return errors.Wrap(errors.GraphCorruption, err, "linking modules")
		}
		if err := c.db.UpsertEdges(repoID, linkEdges); err != nil {
			return err
		}
	}

	// Shared module rows whose last importer dropped them this pass are
	// already gone from the in-memory graph; mirror that in the database.
	if err := c.db.PruneDetachedUnits(repoID); err != nil {
		return err
	}
	progress(95)

	units := entry.graph.NumUnits()
	edges := entry.graph.NumEdges()
	cycles := len(entry.graph.DetectCycles())
	c.runner.UpdateJob(job.ID, func(j *jobs.Job) {
		j.Stats.Units = units
		j.Stats.Edges = edges
		j.Stats.Cycles = cycles
	})
	progress(100)

	c.logger.Info("Indexing completed", map[string]interface{}{
		"repository": repoID,
		"files":      indexed,
		"skipped":    skipped,
		"failed":     len(failed),
		"units":      units,
		"edges":      edges,
	})
	return nil
}

type fileOutcome int

const (
	fileIndexed fileOutcome = iota
	fileSkipped
	fileFailed
)

// indexFile parses, embeds, and applies one file. Per-file failures
// (undecodable content, embedding errors) are reported as fileFailed
// so the job continues; only infrastructure errors abort the job.
func (c *Coordinator) indexFile(ctx context.Context, entry *repoEntry, repoID, root, relPath string) (fileOutcome, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		c.logger.Warn("Failed to read file", map[string]interface{}{
			"path":  relPath,
			"error": err.Error(),
		})
		return fileFailed, nil
	}
	contentHash := hashing.ContentHash(content)

	entry.mu.Lock()
	unchanged := entry.fileHashes[relPath] == contentHash
	entry.mu.Unlock()
	if unchanged {
		return fileSkipped, nil
	}

	units, edges, err := c.parser.ParseFile(ctx, relPath, content)
	if err != nil {
		if errors.Is(err, errors.DecodeError) {
			c.logger.Warn("Skipping undecodable file", map[string]interface{}{
				"path": relPath,
			})
			return fileFailed, nil
		}
		return fileFailed, err
	}

	recs, err := c.embedUnits(ctx, units, content)
	if err != nil {
		if errors.Is(err, errors.EmbeddingService) || errors.Is(err, errors.Timeout) {
			c.logger.Warn("Embedding failed for file", map[string]interface{}{
				"path":  relPath,
				"error": err.Error(),
			})
			return fileFailed, nil
		}
		return fileFailed, err
	}

	batch := model.FileBatch{Path: relPath, Units: units, Edges: edges}

	removed, err := entry.graph.ApplyFileBatch(batch)
	if err != nil {
		return fileFailed, err
	}
	for _, id := range removed {
		entry.index.RemoveUnit(id)
	}
	for _, u := range units {
		entry.index.SetUnitHash(u.ID, u.ContentHash)
	}
	for _, rec := range recs {
		if err := entry.index.Upsert(rec); err != nil {
			return fileFailed, err
		}
	}

	if err := c.db.ReplaceFileData(repoID, batch, contentHash); err != nil {
		return fileFailed, err
	}
	for _, rec := range recs {
		if err := c.db.SaveEmbedding(repoID, rec); err != nil {
			return fileFailed, err
		}
	}

	entry.mu.Lock()
	entry.fileHashes[relPath] = contentHash
	entry.mu.Unlock()
	return fileIndexed, nil
}

// embedUnits produces one embedding record per unit. The input text is
// a small header plus the unit's source extent, so renames and moves
// shift the vector even when the body is unchanged.
func (c *Coordinator) embedUnits(ctx context.Context, units []model.StructuralUnit, content []byte) ([]model.EmbeddingRecord, error) {
	if len(units) == 0 {
		return nil, nil
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = embedInput(u, content)
	}
	vectors, err := c.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(units) {
		return nil, errors.New(errors.EmbeddingService,
			"provider returned %d vectors for %d units", len(vectors), len(units))
	}
	recs := make([]model.EmbeddingRecord, len(units))
	for i, u := range units {
		recs[i] = model.EmbeddingRecord{
			UnitID:      u.ID,
			Vector:      vectors[i],
			ModelTag:    c.provider.ModelTag(),
			ContentHash: u.ContentHash,
		}
	}
	return recs, nil
}

const maxEmbedBytes = 4096

func embedInput(u model.StructuralUnit, content []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", u.Kind, u.Name, u.Path)
	start, end := int(u.StartByte), int(u.EndByte)
	if start < end && end <= len(content) {
		if end-start > maxEmbedBytes {
			end = start + maxEmbedBytes
		}
		b.Write(content[start:end])
	}
	return b.String()
}

// collectFiles walks the repository and returns sorted relative paths
// of indexable source files.
func (c *Coordinator) collectFiles(root string, ignore []string) ([]string, error) {
	maxSize := c.cfg.Indexing.MaxFileSizeBytes
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skippedDirs[name]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchesIgnore(rel, ignore) {
			return nil
		}
		if _, ok := parser.LanguageFromExtension(filepath.Ext(name)); !ok {
			return nil
		}
		if maxSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > int64(maxSize) {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "walking repository %s", root)
	}
	sort.Strings(files)
	return files, nil
}

func matchesIgnore(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}

// removeDeletedFiles drops index data for files that were indexed
// before but no longer exist on disk.
func (c *Coordinator) removeDeletedFiles(entry *repoEntry, repoID string, current []string) {
	live := make(map[string]struct{}, len(current))
	for _, p := range current {
		live[p] = struct{}{}
	}
	entry.mu.Lock()
	var gone []string
	for p := range entry.fileHashes {
		if _, ok := live[p]; !ok {
			gone = append(gone, p)
		}
	}
	entry.mu.Unlock()
	sort.Strings(gone)

	for _, p := range gone {
		for _, id := range entry.graph.RemoveFile(p) {
			entry.index.RemoveUnit(id)
		}
		if err := c.db.DeleteFileData(repoID, p); err != nil {
			c.logger.Warn("Failed to delete file data", map[string]interface{}{
				"path":  p,
				"error": err.Error(),
			})
		}
		entry.mu.Lock()
		delete(entry.fileHashes, p)
		entry.mu.Unlock()
	}
}
