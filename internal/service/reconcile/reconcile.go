// Package reconcile diffs the source map against the output map and
// classifies every record into create, update, unchanged or delete. The
// join key is the record id, never the filename: titles move, ids do not.
package reconcile

import (
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/jgivc/pagesync/internal/common"
	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/naming"
)

type reconciler struct {
	naming *naming.Config
	log    *slog.Logger
}

func New(namingCfg *naming.Config, log *slog.Logger) *reconciler {
	return &reconciler{
		naming: namingCfg,
		log:    log.With(slog.String("item", "Reconciler")),
	}
}

// Reconcile is deterministic given its inputs and touches no I/O. Every
// processed record lands in exactly one of the three source partitions;
// output entries matched by no processed record land in ToDelete.
func (r *reconciler) Reconcile(records []*entity.SourceRecord, outputs []*entity.OutputEntry) *entity.ActionPlan {
	plan := &entity.ActionPlan{
		Renames: make(map[string]entity.Rename),
	}

	outByID := make(map[string]*entity.OutputEntry, len(outputs))
	for _, entry := range outputs {
		outByID[entry.ID] = entry
	}

	matched := make(map[string]struct{}, len(records))
	claimedPaths := make(map[string]string) // derived path -> record id

	for _, rec := range records {
		if !rec.ShouldProcess {
			continue
		}

		prior, exists := outByID[rec.ID]

		// A record whose payload retrieval failed must never be written or
		// deleted on the strength of that failure. Its prior output, if
		// any, is preserved untouched.
		if !rec.HasPayload() {
			r.log.Warn("Record has no payload, skipping",
				slog.String("record_id", rec.ID), slog.String("title", rec.Title))
			matched[rec.ID] = struct{}{}

			continue
		}

		desired := naming.DerivePath(rec.Title, rec.ID, rec.OriginCollection, rec.TargetFolder, r.naming)

		if owner, taken := claimedPaths[desired.FilePath]; taken {
			r.log.Error("Skipping record",
				slog.String("path", desired.FilePath),
				slog.String("record_id", rec.ID),
				slog.String("colliding_record_id", owner),
				slog.Any("error", common.ErrPathCollision))
			matched[rec.ID] = struct{}{}

			continue
		}
		claimedPaths[desired.FilePath] = rec.ID

		matched[rec.ID] = struct{}{}

		if !exists {
			plan.ToCreate = append(plan.ToCreate, entity.Action{Record: rec})

			continue
		}

		// A structural change always forces an update, even with identical
		// timestamps: the on-disk location is part of observable state.
		if r.structuralChange(desired, prior) {
			plan.Renames[rec.ID] = entity.Rename{
				OldPath: prior.FilePath,
				NewPath: desired.FilePath,
			}
			plan.ToUpdate = append(plan.ToUpdate, entity.Action{Record: rec, Prior: prior})

			continue
		}

		if !rec.LastModified.Equal(prior.LastModified) {
			plan.ToUpdate = append(plan.ToUpdate, entity.Action{Record: rec, Prior: prior})

			continue
		}

		plan.Unchanged = append(plan.Unchanged, entity.Action{Record: rec, Prior: prior})
	}

	for _, entry := range outputs {
		if _, ok := matched[entry.ID]; !ok {
			plan.ToDelete = append(plan.ToDelete, entry)
		}
	}

	// Stable delete order keeps repeated runs comparable in logs and tests.
	sort.Slice(plan.ToDelete, func(i, j int) bool {
		return plan.ToDelete[i].FilePath < plan.ToDelete[j].FilePath
	})

	return plan
}

func (r *reconciler) structuralChange(desired entity.OutputPath, prior *entity.OutputEntry) bool {
	if desired.IsBundle != (prior.Kind == entity.KindBundleIndex) {
		return true
	}

	return filepath.Clean(desired.FilePath) != filepath.Clean(prior.FilePath)
}
