package reconcile

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "aaaaaaaa-0000-4000-8000-000000000001"
	idB = "bbbbbbbb-0000-4000-8000-000000000002"
	idC = "cccccccc-0000-4000-8000-000000000003"
)

var t1 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler() *reconciler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(&naming.Config{
		Extension:     ".md",
		IndexFileName: "index.md",
		DefaultLayout: naming.LayoutFlat,
		CollectionLayouts: map[string]naming.Layout{
			"posts": naming.LayoutBundle,
		},
	}, log)
}

func record(id, title string, modified time.Time) *entity.SourceRecord {
	return &entity.SourceRecord{
		ID:               id,
		Title:            title,
		LastModified:     modified,
		OriginCollection: "pages",
		TargetFolder:     "out",
		ShouldProcess:    true,
		Blocks:           []*entity.Block{{Kind: "paragraph", Text: "hi"}},
	}
}

func entryFor(rec *entity.SourceRecord, cfg *naming.Config) *entity.OutputEntry {
	p := naming.DerivePath(rec.Title, rec.ID, rec.OriginCollection, rec.TargetFolder, cfg)

	kind := entity.KindFlatFile
	if p.IsBundle {
		kind = entity.KindBundleIndex
	}

	return &entity.OutputEntry{
		ID:           rec.ID,
		FilePath:     p.FilePath,
		LastModified: rec.LastModified,
		Kind:         kind,
	}
}

func TestReconcileCreate(t *testing.T) {
	r := newTestReconciler()

	plan := r.Reconcile([]*entity.SourceRecord{record(idA, "New Post", t1)}, nil)

	require.Len(t, plan.ToCreate, 1)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.Unchanged)
	assert.Empty(t, plan.ToDelete)
	assert.Empty(t, plan.Renames)
}

func TestReconcileIdempotence(t *testing.T) {
	r := newTestReconciler()

	recs := []*entity.SourceRecord{
		record(idA, "Post A", t1),
		record(idB, "Post B", t1.Add(time.Hour)),
	}
	outs := []*entity.OutputEntry{
		entryFor(recs[0], r.naming),
		entryFor(recs[1], r.naming),
	}

	plan := r.Reconcile(recs, outs)

	assert.Empty(t, plan.ToCreate)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.ToDelete)
	assert.Len(t, plan.Unchanged, 2)
}

func TestReconcileUpdateOnTimestampChange(t *testing.T) {
	r := newTestReconciler()

	rec := record(idA, "Post A", t1.Add(time.Minute))
	prior := entryFor(record(idA, "Post A", t1), r.naming)

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{prior})

	require.Len(t, plan.ToUpdate, 1)
	assert.Same(t, prior, plan.ToUpdate[0].Prior)
	assert.Empty(t, plan.Renames)
}

func TestReconcileTimestampTextualFormIrrelevant(t *testing.T) {
	r := newTestReconciler()

	// Same instant, different zone representation.
	rec := record(idA, "Post A", t1.In(time.FixedZone("plus2", 2*3600)))
	prior := entryFor(record(idA, "Post A", t1), r.naming)

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{prior})

	assert.Len(t, plan.Unchanged, 1)
	assert.Empty(t, plan.ToUpdate)
}

func TestReconcileRenameDetection(t *testing.T) {
	r := newTestReconciler()

	// Same id, same timestamp, new title: forced update with a rename entry.
	prior := entryFor(record(idA, "Old Title", t1), r.naming)
	rec := record(idA, "New Title", t1)

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{prior})

	require.Len(t, plan.ToUpdate, 1)
	ren, ok := plan.Renames[idA]
	require.True(t, ok)
	assert.Equal(t, prior.FilePath, ren.OldPath)
	assert.NotEqual(t, ren.OldPath, ren.NewPath)
}

func TestReconcileLayoutChangeForcesUpdate(t *testing.T) {
	r := newTestReconciler()

	rec := record(idA, "Post A", t1)
	rec.OriginCollection = "posts" // bundle layout now

	flatPrior := entryFor(record(idA, "Post A", t1), r.naming) // flat entry

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{flatPrior})

	require.Len(t, plan.ToUpdate, 1)
	assert.Contains(t, plan.Renames, idA)
}

func TestReconcileDeleteOrphans(t *testing.T) {
	r := newTestReconciler()

	orphan := entryFor(record(idC, "Gone Post", t1), r.naming)

	plan := r.Reconcile(nil, []*entity.OutputEntry{orphan})

	require.Len(t, plan.ToDelete, 1)
	assert.Equal(t, idC, plan.ToDelete[0].ID)
}

func TestReconcileUnprocessedRecordDeletesItsOutput(t *testing.T) {
	r := newTestReconciler()

	rec := record(idA, "Unpublished", t1)
	rec.ShouldProcess = false
	prior := entryFor(rec, r.naming)

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{prior})

	require.Len(t, plan.ToDelete, 1)
	assert.Empty(t, plan.ToCreate)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.Unchanged)
}

func TestReconcileDraftNeverMaterializedScenario(t *testing.T) {
	r := newTestReconciler()

	draft := record(idA, "Draft Post", t1)
	draft.ShouldProcess = false
	ready := record(idB, "Ready Post", t1)

	plan := r.Reconcile(
		[]*entity.SourceRecord{draft, ready},
		[]*entity.OutputEntry{entryFor(ready, r.naming)},
	)

	assert.Empty(t, plan.ToCreate)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.ToDelete)
	require.Len(t, plan.Unchanged, 1)
	assert.Equal(t, idB, plan.Unchanged[0].Record.ID)
}

func TestReconcileMissingPayloadPreservesOutput(t *testing.T) {
	r := newTestReconciler()

	rec := record(idA, "Broken Fetch", t1.Add(time.Hour))
	rec.Blocks = nil // retrieval failed
	prior := entryFor(record(idA, "Broken Fetch", t1), r.naming)

	plan := r.Reconcile([]*entity.SourceRecord{rec}, []*entity.OutputEntry{prior})

	assert.Empty(t, plan.ToCreate)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.ToDelete, "transient fetch failure must not destroy prior output")
}

func TestReconcilePartitionsAreDisjoint(t *testing.T) {
	r := newTestReconciler()

	recs := []*entity.SourceRecord{
		record(idA, "Create Me", t1),
		record(idB, "Update Me", t1.Add(time.Hour)),
		record(idC, "Keep Me", t1),
	}
	outs := []*entity.OutputEntry{
		entryFor(record(idB, "Update Me", t1), r.naming),
		entryFor(record(idC, "Keep Me", t1), r.naming),
	}

	plan := r.Reconcile(recs, outs)

	seen := make(map[string]int)
	for _, a := range plan.ToCreate {
		seen[a.Record.ID]++
	}
	for _, a := range plan.ToUpdate {
		seen[a.Record.ID]++
	}
	for _, a := range plan.Unchanged {
		seen[a.Record.ID]++
	}

	require.Len(t, seen, 3)
	for id, count := range seen {
		assert.Equal(t, 1, count, "record %s in more than one partition", id)
	}

	for _, e := range plan.ToDelete {
		assert.NotContains(t, seen, e.ID)
	}
}

func TestReconcilePathCollisionIsNotSilent(t *testing.T) {
	r := newTestReconciler()

	// Duplicate ids violate the source invariant, but a collision must
	// surface as a skipped record, never as a silent overwrite.
	a := record(idA, "Same Title", t1)
	b := record(idA, "Same Title", t1)

	plan := r.Reconcile([]*entity.SourceRecord{a, b}, nil)

	assert.Len(t, plan.ToCreate, 1)
}

func TestReconcileSameTitleDistinctIDsNoCollision(t *testing.T) {
	r := newTestReconciler()

	plan := r.Reconcile([]*entity.SourceRecord{
		record(idA, "Same Title", t1),
		record(idB, "Same Title", t1),
	}, nil)

	// The id embedded in the derived name keeps the paths apart.
	assert.Len(t, plan.ToCreate, 2)
}
