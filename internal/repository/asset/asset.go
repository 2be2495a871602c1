// Package asset tracks downloaded binary assets across runs. Assets are
// keyed by content identity, a hash of the stable parts of their URL, so a
// re-signed link to the same resource is never downloaded twice. The index
// is a YAML sidecar file co-located with the assets themselves.
package asset

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/util"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	shortIDLen       = 12
	indexFilePerm    = 0o644
	assetDirPerm     = 0o755
	defaultIndexName = "assets.yml"
)

type Config struct {
	Dir           string // directory holding downloaded assets and the index
	IndexFileName string
}

type repository struct {
	fs  afero.Fs
	cfg *Config
	log *slog.Logger

	mu    sync.Mutex
	index map[string]*entity.AssetRecord
	locks map[string]*sync.Mutex
}

// NewRepository loads the sidecar index. A missing index file is a normal
// first-run condition, not an error.
func NewRepository(fs afero.Fs, cfg *Config, log *slog.Logger) (*repository, error) {
	if cfg.IndexFileName == "" {
		cfg.IndexFileName = defaultIndexName
	}

	r := &repository{
		fs:    fs,
		cfg:   cfg,
		log:   log.With(slog.String("item", "AssetRepository")),
		index: make(map[string]*entity.AssetRecord),
		locks: make(map[string]*sync.Mutex),
	}

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("cannot load asset index: %w", err)
	}

	return r, nil
}

// ContentIdentity derives the stable key for an asset URL. Query parameters
// are stripped: they carry expiring signatures, not identity.
func ContentIdentity(assetURL string) string {
	u, err := url.Parse(assetURL)
	if err != nil {
		return util.GetIDFromString(&assetURL)
	}

	stable := u.Scheme + "://" + u.Host + u.Path

	return util.GetIDFromString(&stable)
}

// LocalPath returns the deterministic on-disk location for an asset URL.
func (r *repository) LocalPath(assetURL string) string {
	name := ContentIdentity(assetURL)[:shortIDLen]
	if ext := path.Ext(stripQuery(assetURL)); ext != "" {
		name += ext
	}

	return filepath.Join(r.cfg.Dir, name)
}

// ShouldFetch reports whether a download is required: false only when a
// record for this identity exists, belongs to ownerID, and its file is
// still on disk.
func (r *repository) ShouldFetch(assetURL, ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.index[ContentIdentity(assetURL)]
	if !exists || rec.OwnerID != ownerID {
		return true
	}

	if _, err := r.fs.Stat(rec.LocalPath); err != nil {
		return true
	}

	return false
}

// RecordFetch upserts the tracking record for a completed download and
// writes the index back. It must only be called after the bytes are safely
// on disk; a failed download leaves no trace here.
func (r *repository) RecordFetch(assetURL, ownerID, localPath string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.index[ContentIdentity(assetURL)] = &entity.AssetRecord{
		ContentID:   ContentIdentity(assetURL),
		OwnerID:     ownerID,
		LocalPath:   localPath,
		ContentHash: util.GetIDFromBytes(data),
		LastFetched: time.Now().UTC(),
	}

	if err := r.save(); err != nil {
		return fmt.Errorf("cannot save asset index: %w", err)
	}

	return nil
}

// FindExisting lists the on-disk paths of every asset owned by ownerID.
func (r *repository) FindExisting(ownerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var paths []string
	for _, rec := range r.index {
		if rec.OwnerID == ownerID {
			paths = append(paths, rec.LocalPath)
		}
	}

	return paths
}

// CleanupOrphaned removes every asset whose owner is not active. It holds
// the index lock for the whole sweep, so a concurrent fetch for an active
// owner can never observe its asset being removed.
func (r *repository) CleanupOrphaned(activeOwnerIDs []string) error {
	active := make(map[string]struct{}, len(activeOwnerIDs))
	for _, id := range activeOwnerIDs {
		active[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for contentID, rec := range r.index {
		if _, keep := active[rec.OwnerID]; keep {
			continue
		}

		if err := r.fs.Remove(rec.LocalPath); err != nil && !os.IsNotExist(err) {
			r.log.Error("Cannot remove orphaned asset",
				slog.String("path", rec.LocalPath), slog.Any("error", err))

			continue
		}

		delete(r.index, contentID)
		removed++
	}

	if removed == 0 {
		return nil
	}

	r.log.Info("Removed orphaned assets", slog.Int("count", removed))

	if err := r.save(); err != nil {
		return fmt.Errorf("cannot save asset index: %w", err)
	}

	return nil
}

// WithIdentityLock serializes read-then-write sequences for one content
// identity, so two concurrent downloads of the same logical asset cannot
// race on the tracking record.
func (r *repository) WithIdentityLock(assetURL string, fn func() error) error {
	contentID := ContentIdentity(assetURL)

	r.mu.Lock()
	lock, exists := r.locks[contentID]
	if !exists {
		lock = &sync.Mutex{}
		r.locks[contentID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	return fn()
}

func (r *repository) load() error {
	data, err := afero.ReadFile(r.fs, r.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	return yaml.Unmarshal(data, &r.index)
}

// save writes the index atomically: temp file first, rename over the old
// one. Caller must hold r.mu.
func (r *repository) save() error {
	data, err := yaml.Marshal(r.index)
	if err != nil {
		return err
	}

	if err := r.fs.MkdirAll(r.cfg.Dir, assetDirPerm); err != nil {
		return err
	}

	tmp := r.indexPath() + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, indexFilePerm); err != nil {
		return err
	}

	return r.fs.Rename(tmp, r.indexPath())
}

func (r *repository) indexPath() string {
	return filepath.Join(r.cfg.Dir, r.cfg.IndexFileName)
}

func stripQuery(assetURL string) string {
	u, err := url.Parse(assetURL)
	if err != nil {
		return assetURL
	}

	return u.Path
}
