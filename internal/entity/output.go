package entity

import "time"

// StructuralKind tells whether an output entry is a standalone file or the
// index file of a directory bundle.
type StructuralKind int

const (
	KindFlatFile StructuralKind = iota
	KindBundleIndex
)

func (k StructuralKind) String() string {
	return [...]string{"FlatFile", "BundleIndex"}[k]
}

// OutputEntry is one previously-materialized record discovered on disk.
type OutputEntry struct {
	ID             string
	FilePath       string
	LastModified   time.Time
	Kind           StructuralKind
	AssetExpiry    time.Time // zero if the file embeds no expiring asset URLs
	LastSync       time.Time
	IDFromFilename bool // ID was recovered from the filename, not the header
}

// OutputPath is the derived on-disk location for a record. It is a pure
// function of title, id and structural config, never stored.
type OutputPath struct {
	ContainerDir string // bundle directory, or the target folder for flat files
	FilePath     string // the markdown file itself (bundle index file for bundles)
	Slug         string
	IsBundle     bool
}

// Rename records a derived-path change for one record id.
type Rename struct {
	OldPath string
	NewPath string
}

// Action pairs a source record with the output entry it supersedes, if any.
type Action struct {
	Record *SourceRecord
	Prior  *OutputEntry // nil for creates
}

// ActionPlan is the reconciler's output: disjoint partitions over processed
// record ids plus the orphaned output entries to remove.
type ActionPlan struct {
	ToCreate  []Action
	ToUpdate  []Action
	Unchanged []Action
	ToDelete  []*OutputEntry
	Renames   map[string]Rename
}
