package coordinator

import (
	"context"
	"sort"

	"codescope/internal/errors"
	"codescope/internal/hashing"
	"codescope/internal/jobs"
	"codescope/internal/model"
	"codescope/internal/parser"
)

// handleSCIPJob loads a prebuilt SCIP index instead of parsing source.
// SCIP batches carry cross-file edges, so application is two-phase:
// all units first, then all edges, keeping referential integrity.
func (c *Coordinator) handleSCIPJob(ctx context.Context, job *jobs.Job, progress func(int)) error {
	entry, err := c.entry(job.RepositoryID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	scipPath := c.scipPaths[job.ID]
	delete(c.scipPaths, job.ID)
	c.mu.Unlock()
	if scipPath == "" {
		err := errors.New(errors.InternalError, "no scip index recorded for job %s", job.ID)
		c.finishJob(entry, err, false)
		return err
	}

	jobErr := c.importSCIP(ctx, entry, job, scipPath, progress)
	c.finishJob(entry, jobErr, ctx.Err() != nil)
	return jobErr
}

func (c *Coordinator) importSCIP(ctx context.Context, entry *repoEntry, job *jobs.Job, scipPath string, progress func(int)) error {
	batches, err := parser.ImportSCIP(scipPath)
	if err != nil {
		return err
	}
	progress(10)

	var allUnits []model.StructuralUnit
	var allEdges []model.DependencyEdge
	for _, b := range batches {
		allUnits = append(allUnits, b.Units...)
		allEdges = append(allEdges, b.Edges...)
	}

	if err := entry.graph.UpsertUnits(allUnits); err != nil {
		return errors.Wrap(errors.GraphCorruption, err, "applying scip units")
	}
	if err := entry.graph.UpsertEdges(allEdges); err != nil {
		return errors.Wrap(errors.GraphCorruption, err, "applying scip edges")
	}
	progress(40)

	repoID := job.RepositoryID
	var failed []string
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		// SCIP documents carry no source bytes, so embeddings come
		// from names and paths alone.
		recs, err := c.embedUnits(ctx, b.Units, nil)
		if err != nil {
			failed = append(failed, b.Path)
		} else {
			for _, u := range b.Units {
				entry.index.SetUnitHash(u.ID, u.ContentHash)
			}
			for _, rec := range recs {
				if err := entry.index.Upsert(rec); err != nil {
					return err
				}
				if err := c.db.SaveEmbedding(repoID, rec); err != nil {
					return err
				}
			}
		}

		fileHash := hashing.ShortID("scip-file", b.Path)
		if err := c.db.ReplaceFileData(repoID, model.FileBatch{Path: b.Path, Units: b.Units}, fileHash); err != nil {
			return err
		}
		entry.mu.Lock()
		entry.fileHashes[b.Path] = fileHash
		entry.mu.Unlock()

		progress(40 + (i+1)*55/len(batches))
	}
	// Cross-file edges were withheld from the per-file batches above,
	// persist them in one pass now that every unit row exists.
	if err := c.db.UpsertEdges(repoID, allEdges); err != nil {
		return err
	}
	sort.Strings(failed)

	units := entry.graph.NumUnits()
	edges := entry.graph.NumEdges()
	cycles := len(entry.graph.DetectCycles())
	c.runner.UpdateJob(job.ID, func(j *jobs.Job) {
		j.FailedFiles = failed
		j.Stats.FilesSeen = len(batches)
		j.Stats.FilesIndexed = len(batches) - len(failed)
		j.Stats.Units = units
		j.Stats.Edges = edges
		j.Stats.Cycles = cycles
	})
	progress(100)

	c.logger.Info("SCIP import completed", map[string]interface{}{
		"repository": repoID,
		"documents":  len(batches),
		"units":      units,
		"edges":      edges,
	})
	return nil
}
