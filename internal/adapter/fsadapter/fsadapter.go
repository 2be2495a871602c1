// Package fsadapter builds the output map: it walks the local output tree,
// parses each file's metadata header and yields one entry per file that a
// prior run produced. Files it cannot attribute are excluded and left alone.
package fsadapter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgivc/pagesync/internal/codec"
	"github.com/jgivc/pagesync/internal/common"
	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/util"
	"github.com/spf13/afero"
)

type Config struct {
	OutputRoot    string
	Extension     string   // output files to consider, e.g. ".md"
	IndexFileName string   // marks bundle indexes, e.g. "index.md"
	SkipDirs      []string // directory names never descended into
}

type fsAdapter struct {
	fs       afero.Fs
	cfg      *Config
	codec    *codec.Codec
	skipDirs map[string]struct{}
	log      *slog.Logger
}

func NewFSAdapter(cfg *Config, log *slog.Logger) *fsAdapter {
	return NewFSAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewFSAdapterWithFS(fs afero.Fs, cfg *Config, log *slog.Logger) *fsAdapter {
	skipDirs := make(map[string]struct{}, len(cfg.SkipDirs))
	for _, dir := range cfg.SkipDirs {
		skipDirs[dir] = struct{}{}
	}

	return &fsAdapter{
		fs:       fs,
		cfg:      cfg,
		codec:    codec.New(),
		skipDirs: skipDirs,
		log:      log.With(slog.String("item", "FSAdapter")),
	}
}

// BuildOutputMap scans the output root. A missing root is the normal
// first-run case and yields an empty map. The traversal uses an explicit
// worklist, so bundle nesting depth never maps to call-stack depth.
func (a *fsAdapter) BuildOutputMap() ([]*entity.OutputEntry, error) {
	if exists, err := afero.DirExists(a.fs, a.cfg.OutputRoot); err != nil {
		return nil, fmt.Errorf("cannot stat output root: %w", err)
	} else if !exists {
		a.log.Info("Output root does not exist yet", slog.String("path", a.cfg.OutputRoot))

		return []*entity.OutputEntry{}, nil
	}

	var entries []*entity.OutputEntry

	worklist := []string{a.cfg.OutputRoot}
	for len(worklist) > 0 {
		dir := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		dirEntries, err := afero.ReadDir(a.fs, dir)
		if err != nil {
			a.log.Error("Cannot read directory", slog.String("path", dir), slog.Any("error", err))

			continue
		}

		for _, de := range dirEntries {
			path := filepath.Join(dir, de.Name())

			if de.IsDir() {
				if _, skip := a.skipDirs[de.Name()]; skip {
					continue
				}
				worklist = append(worklist, path)

				continue
			}

			if !strings.HasSuffix(de.Name(), a.cfg.Extension) {
				continue
			}

			entry, err := a.toEntry(path, de.Name())
			if err != nil {
				a.log.Warn("Excluding file from reconciliation",
					slog.String("path", path), slog.Any("error", err))

				continue
			}

			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// toEntry parses one output file. The id is resolved in order: header id
// field, nested tracking object (handled by the codec), then a hex run in
// the filename. Failing all three, the file is excluded, never guessed at.
func (a *fsAdapter) toEntry(path, name string) (*entity.OutputEntry, error) {
	content, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}

	entry := &entity.OutputEntry{
		FilePath: path,
		Kind:     entity.KindFlatFile,
	}
	if name == a.cfg.IndexFileName {
		entry.Kind = entity.KindBundleIndex
	}

	header, _, err := a.codec.Parse(content)
	if err != nil {
		a.log.Warn("Cannot parse metadata header", slog.String("path", path), slog.Any("error", err))
	}

	if header != nil && header.ID != "" {
		id, err := util.NormalizeRecordID(header.ID)
		if err != nil {
			return nil, err
		}

		entry.ID = id
		entry.LastModified = header.LastModified
		entry.LastSync = header.LastSync
		entry.AssetExpiry = header.AssetExpiry

		return entry, nil
	}

	// Fallback identity channel: the id embedded in the file or bundle name.
	fallbackName := name
	if entry.Kind == entity.KindBundleIndex {
		fallbackName = filepath.Base(filepath.Dir(path))
	}

	if id, ok := util.RecordIDFromFileName(fallbackName); ok {
		a.log.Warn("Recovered record id from filename, header is missing or damaged",
			slog.String("path", path), slog.String("record_id", id))

		entry.ID = id
		entry.IDFromFilename = true
		if header != nil {
			entry.LastModified = header.LastModified
			entry.LastSync = header.LastSync
			entry.AssetExpiry = header.AssetExpiry
		}

		return entry, nil
	}

	return nil, fmt.Errorf("%w: %s", common.ErrNoRecordID, path)
}

// WriteFile atomically replaces path with content: the bytes go to a
// temporary file in the same directory first, then rename over the target.
// A half-written file can never shadow a valid prior one.
func (a *fsAdapter) WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(a.fs, tmp, content, 0o644); err != nil {
		return fmt.Errorf("cannot write temp file: %w", err)
	}

	if err := a.fs.Rename(tmp, path); err != nil {
		_ = a.fs.Remove(tmp)

		return fmt.Errorf("cannot replace %s: %w", path, err)
	}

	return nil
}

// RemoveEntry deletes one output entry: the whole containing directory for
// a bundle index, just the file for a flat one.
func (a *fsAdapter) RemoveEntry(entry *entity.OutputEntry) error {
	if entry.Kind == entity.KindBundleIndex {
		dir := filepath.Dir(entry.FilePath)
		if err := a.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("cannot remove bundle %s: %w", dir, err)
		}

		return nil
	}

	if err := a.fs.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove file %s: %w", entry.FilePath, err)
	}

	return nil
}

// RemovePath removes a stale location after a rename: the bundle directory
// when the old path was a bundle index, otherwise the bare file.
func (a *fsAdapter) RemovePath(path string) error {
	if filepath.Base(path) == a.cfg.IndexFileName {
		return a.fs.RemoveAll(filepath.Dir(path))
	}

	if err := a.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
