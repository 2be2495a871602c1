// Package source builds the source map: every configured collection and
// individually-mounted record, normalized into SourceRecords. A failing
// collection contributes nothing this run and never aborts the others.
package source

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jgivc/pagesync/internal/adapter/srcadapter"
	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/retry"
)

const defaultWorkers = 4

type SourceClient interface {
	ListCollectionRecords(ctx context.Context, collectionID, cursor string) (*srcadapter.RecordPage, error)
	GetRecord(ctx context.Context, recordID string) (*srcadapter.RawRecord, error)
	GetRecordContent(ctx context.Context, recordID string) ([]*entity.Block, error)
}

// Mount binds one remote collection or record to a destination folder.
type Mount struct {
	ID           string
	TargetFolder string
}

type Config struct {
	Collections      []Mount
	Records          []Mount
	ClassifyProperty string
	PublishedValues  []string
	Workers          int
}

type builder struct {
	client   SourceClient
	cfg      *Config
	classify *classifier
	policy   retry.Policy
	log      *slog.Logger
}

func NewBuilder(client SourceClient, cfg *Config, policy retry.Policy, log *slog.Logger) *builder {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	return &builder{
		client:   client,
		cfg:      cfg,
		classify: newClassifier(cfg.ClassifyProperty, cfg.PublishedValues),
		policy:   policy,
		log:      log.With(slog.String("item", "SourceMapBuilder")),
	}
}

// Build drains every mount and returns the normalized source map. Partial
// results are valid and intentional: mounts that fail are logged and the
// rest still synchronize.
func (b *builder) Build(ctx context.Context) []*entity.SourceRecord {
	var records []*entity.SourceRecord
	seen := make(map[string]struct{})

	for _, mount := range b.cfg.Collections {
		collected, err := b.drainCollection(ctx, mount)
		if err != nil {
			b.log.Error("Cannot list collection, skipping it this run",
				slog.String("collection_id", mount.ID), slog.Any("error", err))

			continue
		}

		for _, rec := range collected {
			if _, dup := seen[rec.ID]; dup {
				b.log.Warn("Duplicate record id across mounts, keeping first",
					slog.String("record_id", rec.ID))

				continue
			}

			seen[rec.ID] = struct{}{}
			records = append(records, rec)
		}
	}

	for _, mount := range b.cfg.Records {
		rec, err := retry.Do(ctx, b.policy, func(ctx context.Context) (*srcadapter.RawRecord, error) {
			return b.client.GetRecord(ctx, mount.ID)
		})
		if err != nil {
			b.log.Error("Cannot get record, skipping",
				slog.String("record_id", mount.ID), slog.Any("error", err))

			continue
		}

		if _, dup := seen[rec.ID]; dup {
			b.log.Warn("Duplicate record id across mounts, keeping first",
				slog.String("record_id", rec.ID))

			continue
		}

		seen[rec.ID] = struct{}{}
		records = append(records, b.toSourceRecord(rec, mount.ID, mount.TargetFolder))
	}

	b.fetchPayloads(ctx, records)

	return records
}

// drainCollection follows the pagination cursor to the end. Each page call
// goes through the retry wrapper; once retries are exhausted the whole
// collection is treated as unreachable.
func (b *builder) drainCollection(ctx context.Context, mount Mount) ([]*entity.SourceRecord, error) {
	var records []*entity.SourceRecord

	cursor := ""
	for {
		page, err := retry.Do(ctx, b.policy, func(ctx context.Context) (*srcadapter.RecordPage, error) {
			return b.client.ListCollectionRecords(ctx, mount.ID, cursor)
		})
		if err != nil {
			return nil, err
		}

		for _, raw := range page.Records {
			records = append(records, b.toSourceRecord(raw, mount.ID, mount.TargetFolder))
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return records, nil
}

func (b *builder) toSourceRecord(raw *srcadapter.RawRecord, collectionID, targetFolder string) *entity.SourceRecord {
	return &entity.SourceRecord{
		ID:               raw.ID,
		Title:            raw.Title,
		LastModified:     raw.LastModified,
		OriginCollection: collectionID,
		TargetFolder:     targetFolder,
		ShouldProcess:    b.classify.ShouldProcess(raw.Properties),
		Blocks:           raw.Blocks,
	}
}

// fetchPayloads pulls content trees for the records that will actually be
// processed, with a bounded worker pool. A failed fetch leaves Blocks nil;
// the reconciler treats such records as skip-and-preserve.
func (b *builder) fetchPayloads(ctx context.Context, records []*entity.SourceRecord) {
	pending := make([]*entity.SourceRecord, 0, len(records))
	for _, rec := range records {
		if rec.ShouldProcess && rec.Blocks == nil {
			pending = append(pending, rec)
		}
	}

	if len(pending) == 0 {
		return
	}

	in := make(chan *entity.SourceRecord, len(pending))
	for _, rec := range pending {
		in <- rec
	}
	close(in)

	var wg sync.WaitGroup
	wg.Add(b.cfg.Workers)
	for n := 0; n < b.cfg.Workers; n++ {
		go b.payloadWorker(ctx, n, in, &wg)
	}

	wg.Wait()
}

func (b *builder) payloadWorker(ctx context.Context, n int, in chan *entity.SourceRecord, wg *sync.WaitGroup) {
	defer wg.Done()

	log := b.log.With(slog.Int("worker_id", n))

	for rec := range in {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		default:
		}

		blocks, err := retry.Do(ctx, b.policy, func(ctx context.Context) ([]*entity.Block, error) {
			return b.client.GetRecordContent(ctx, rec.ID)
		})
		if err != nil {
			log.Warn("Cannot fetch record content",
				slog.String("record_id", rec.ID), slog.Any("error", err))

			continue
		}

		if blocks == nil {
			blocks = []*entity.Block{}
		}
		rec.Blocks = blocks
	}
}
