// Package naming derives deterministic on-disk locations for records.
// The record id is embedded into the file or bundle name, so rename
// detection can always join on id even when two titles slugify identically.
package naming

import (
	"path/filepath"
	"strings"

	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/util"
)

const (
	LayoutFlat Layout = iota
	LayoutBundle

	defaultSlug = "untitled"
	separator   = "-"
)

type Layout int

func (l Layout) String() string {
	return [...]string{"Flat", "Bundle"}[l]
}

// Config resolves which structural layout a record gets. Title overrides win
// over collection defaults, collection defaults win over DefaultLayout.
type Config struct {
	Extension         string // output file extension, e.g. ".md"
	IndexFileName     string // bundle index file name, e.g. "index.md"
	DefaultLayout     Layout
	CollectionLayouts map[string]Layout // keyed by collection id
	TitleOverrides    map[string]Layout // keyed by exact title match
}

// Slugify normalizes a title to a filesystem-safe name: lowercase,
// every run of non-alphanumeric characters collapsed to one separator,
// no leading or trailing separators. Pure: same title, same slug, always.
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	pending := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteString(separator)
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}

	if b.Len() == 0 {
		return defaultSlug
	}

	return b.String()
}

// DerivePath computes the output location for a record. It must be
// re-invocable with unchanged inputs and produce a byte-identical path,
// otherwise rename detection would report false positives.
func DerivePath(title, id, collectionID, targetFolder string, cfg *Config) entity.OutputPath {
	slug := Slugify(title)
	name := slug + separator + util.CompactRecordID(id)

	layout := cfg.DefaultLayout
	if l, exists := cfg.CollectionLayouts[collectionID]; exists {
		layout = l
	}
	if l, exists := cfg.TitleOverrides[title]; exists {
		layout = l
	}

	if layout == LayoutBundle {
		dir := filepath.Join(targetFolder, name)

		return entity.OutputPath{
			ContainerDir: dir,
			FilePath:     filepath.Join(dir, cfg.IndexFileName),
			Slug:         slug,
			IsBundle:     true,
		}
	}

	return entity.OutputPath{
		ContainerDir: targetFolder,
		FilePath:     filepath.Join(targetFolder, name+cfg.Extension),
		Slug:         slug,
		IsBundle:     false,
	}
}
