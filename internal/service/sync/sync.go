// Package sync drives one full run: build both maps, reconcile, then
// execute the plan. Per-record failures are logged and scoped to the
// record; the rest of the run proceeds.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/pagesync/internal/adapter/mdrender"
	"github.com/jgivc/pagesync/internal/codec"
	"github.com/jgivc/pagesync/internal/common"
	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/naming"
	"github.com/jgivc/pagesync/internal/retry"
)

// assetURLTTL is how long a signed remote URL left embedded in a document
// (because its download failed) is assumed to stay valid.
const assetURLTTL = time.Hour

type SourceMapBuilder interface {
	Build(ctx context.Context) []*entity.SourceRecord
}

type OutputMapper interface {
	BuildOutputMap() ([]*entity.OutputEntry, error)
	WriteFile(path string, content []byte) error
	RemoveEntry(entry *entity.OutputEntry) error
	RemovePath(path string) error
}

type Reconciler interface {
	Reconcile(records []*entity.SourceRecord, outputs []*entity.OutputEntry) *entity.ActionPlan
}

type Renderer interface {
	Render(blocks []*entity.Block, resolve mdrender.AssetResolver) (string, error)
	ExtractAssetRefs(blocks []*entity.Block, ownerID string) []entity.AssetRef
}

type AssetRepository interface {
	LocalPath(assetURL string) string
	ShouldFetch(assetURL, ownerID string) bool
	RecordFetch(assetURL, ownerID, localPath string, data []byte) error
	CleanupOrphaned(activeOwnerIDs []string) error
	WithIdentityLock(assetURL string, fn func() error) error
}

type AssetDownloader interface {
	DownloadAsset(ctx context.Context, assetURL string) (io.ReadCloser, error)
}

// Stats summarizes one run for logging and the CLI.
type Stats struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Renamed   int
	Failed    int
}

type syncService struct {
	source     SourceMapBuilder
	output     OutputMapper
	reconciler Reconciler
	renderer   Renderer
	assets     AssetRepository
	downloader AssetDownloader
	codec      *codec.Codec
	naming     *naming.Config
	policy     retry.Policy
	log        *slog.Logger

	running atomic.Bool
	now     func() time.Time
}

func NewSyncService(
	source SourceMapBuilder,
	output OutputMapper,
	reconciler Reconciler,
	renderer Renderer,
	assets AssetRepository,
	downloader AssetDownloader,
	namingCfg *naming.Config,
	policy retry.Policy,
	log *slog.Logger,
) *syncService {
	return &syncService{
		source:     source,
		output:     output,
		reconciler: reconciler,
		renderer:   renderer,
		assets:     assets,
		downloader: downloader,
		codec:      codec.New(),
		naming:     namingCfg,
		policy:     policy,
		log:        log.With(slog.String("item", "SyncService")),
		now:        time.Now,
	}
}

// Run performs one synchronization pass. With dryRun the plan is computed
// and logged, nothing is written or deleted.
func (s *syncService) Run(ctx context.Context, dryRun bool) (*Stats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, common.ErrSyncRunHasAlreadyStarted
	}
	defer s.running.Store(false)

	records := s.source.Build(ctx)

	outputs, err := s.output.BuildOutputMap()
	if err != nil {
		return nil, fmt.Errorf("cannot build output map: %w", err)
	}

	plan := s.reconciler.Reconcile(records, outputs)

	s.log.Info("Reconciled",
		slog.Int("create", len(plan.ToCreate)),
		slog.Int("update", len(plan.ToUpdate)),
		slog.Int("unchanged", len(plan.Unchanged)),
		slog.Int("delete", len(plan.ToDelete)),
		slog.Int("renames", len(plan.Renames)))

	stats := &Stats{
		Unchanged: len(plan.Unchanged),
	}

	if dryRun {
		stats.Renamed = len(plan.Renames)
		s.logPlan(plan)

		return stats, nil
	}

	for _, action := range plan.ToCreate {
		if err := s.writeRecord(ctx, action.Record); err != nil {
			s.log.Error("Cannot create record output",
				slog.String("record_id", action.Record.ID), slog.Any("error", err))
			stats.Failed++

			continue
		}
		stats.Created++
	}

	for _, action := range plan.ToUpdate {
		if err := s.writeRecord(ctx, action.Record); err != nil {
			s.log.Error("Cannot update record output",
				slog.String("record_id", action.Record.ID), slog.Any("error", err))
			stats.Failed++

			continue
		}

		// The new location is in place, the stale one can go. A rename
		// counts as done only once the old path is actually gone.
		if ren, renamed := plan.Renames[action.Record.ID]; renamed {
			if err := s.output.RemovePath(ren.OldPath); err != nil {
				s.log.Error("Cannot remove old path after rename",
					slog.String("path", ren.OldPath), slog.Any("error", err))
			} else {
				stats.Renamed++
			}
		}

		stats.Updated++
	}

	for _, entry := range plan.ToDelete {
		if err := s.output.RemoveEntry(entry); err != nil {
			s.log.Error("Cannot delete output entry",
				slog.String("path", entry.FilePath), slog.Any("error", err))
			stats.Failed++

			continue
		}
		stats.Deleted++
	}

	active := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ShouldProcess {
			active = append(active, rec.ID)
		}
	}

	if err := s.assets.CleanupOrphaned(active); err != nil {
		s.log.Error("Cannot clean up orphaned assets", slog.Any("error", err))
	}

	s.log.Info("Run complete",
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("deleted", stats.Deleted),
		slog.Int("failed", stats.Failed))

	return stats, nil
}

// writeRecord materializes one record: download its assets, render the
// body, then atomically replace the output file. The write happens only
// after every asset download for the record has settled.
func (s *syncService) writeRecord(ctx context.Context, rec *entity.SourceRecord) error {
	desired := naming.DerivePath(rec.Title, rec.ID, rec.OriginCollection, rec.TargetFolder, s.naming)

	refs := s.renderer.ExtractAssetRefs(rec.Blocks, rec.ID)
	local, failed := s.downloadAssets(ctx, refs)

	resolver := func(url string) string {
		p, fetched := local[url]
		if !fetched {
			return url
		}

		rel, err := filepath.Rel(desired.ContainerDir, p)
		if err != nil {
			return p
		}

		return rel
	}

	body, err := s.renderer.Render(rec.Blocks, resolver)
	if err != nil {
		return fmt.Errorf("cannot render record: %w", err)
	}

	header := &codec.Header{
		ID:           rec.ID,
		Title:        rec.Title,
		LastModified: rec.LastModified,
		LastSync:     s.now().UTC(),
	}
	if failed > 0 {
		// Remote URLs stayed embedded; mark when they go stale.
		header.AssetExpiry = s.now().UTC().Add(assetURLTTL)
	}

	content, err := s.codec.Serialize(header, body)
	if err != nil {
		return fmt.Errorf("cannot serialize output: %w", err)
	}

	if err := s.output.WriteFile(desired.FilePath, []byte(content)); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}

	return nil
}

// downloadAssets fetches every referenced asset concurrently and waits for
// the whole batch. Returns the url -> local path map for the assets that
// are on disk, and how many failed.
func (s *syncService) downloadAssets(ctx context.Context, refs []entity.AssetRef) (map[string]string, int) {
	local := make(map[string]string, len(refs))

	if len(refs) == 0 {
		return local, 0
	}

	var (
		mu       gosync.Mutex
		wg       gosync.WaitGroup
		failures int
	)

	for _, ref := range refs {
		wg.Add(1)

		go func(ref entity.AssetRef) {
			defer wg.Done()

			path, err := s.fetchAsset(ctx, ref)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				s.log.Warn("Cannot download asset",
					slog.String("url", ref.URL), slog.Any("error", err))
				failures++

				return
			}

			local[ref.URL] = path
		}(ref)
	}

	wg.Wait()

	return local, failures
}

// fetchAsset downloads one asset at most once. The identity lock makes the
// should-fetch check and the tracking-record write one atomic step, so two
// records referencing the same asset cannot race a double download.
func (s *syncService) fetchAsset(ctx context.Context, ref entity.AssetRef) (string, error) {
	path := s.assets.LocalPath(ref.URL)

	err := s.assets.WithIdentityLock(ref.URL, func() error {
		if !s.assets.ShouldFetch(ref.URL, ref.OwnerID) {
			return nil
		}

		data, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]byte, error) {
			rc, err := s.downloader.DownloadAsset(ctx, ref.URL)
			if err != nil {
				return nil, err
			}
			defer rc.Close()

			return io.ReadAll(rc)
		})
		if err != nil {
			// No tracking record for a failed download; the next run retries.
			return err
		}

		if err := s.output.WriteFile(path, data); err != nil {
			return fmt.Errorf("cannot store asset: %w", err)
		}

		return s.assets.RecordFetch(ref.URL, ref.OwnerID, path, data)
	})
	if err != nil {
		return "", err
	}

	return path, nil
}

func (s *syncService) logPlan(plan *entity.ActionPlan) {
	for _, a := range plan.ToCreate {
		s.log.Info("Would create", slog.String("record_id", a.Record.ID), slog.String("title", a.Record.Title))
	}
	for _, a := range plan.ToUpdate {
		s.log.Info("Would update", slog.String("record_id", a.Record.ID), slog.String("title", a.Record.Title))
	}
	for _, e := range plan.ToDelete {
		s.log.Info("Would delete", slog.String("path", e.FilePath))
	}
	for id, ren := range plan.Renames {
		s.log.Info("Would rename",
			slog.String("record_id", id),
			slog.String("from", ren.OldPath),
			slog.String("to", ren.NewPath))
	}
}
