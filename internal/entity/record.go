package entity

import "time"

// PropertyKind enumerates the closed set of remote property shapes the
// classifier understands. Unknown kinds coming off the wire are ignored.
type PropertyKind string

const (
	PropertyKindText        PropertyKind = "text"
	PropertyKindSelect      PropertyKind = "select"
	PropertyKindMultiSelect PropertyKind = "multi_select"
	PropertyKindDate        PropertyKind = "date"
	PropertyKindStatus      PropertyKind = "status"
	PropertyKindNumber      PropertyKind = "number"
	PropertyKindCheckbox    PropertyKind = "checkbox"
	PropertyKindPeople      PropertyKind = "people"
)

// Property is one loosely-typed record property. Only the field matching
// Kind is meaningful.
type Property struct {
	Kind     PropertyKind
	Text     string
	Select   string
	Multi    []string
	Date     time.Time
	Number   float64
	Checkbox bool
	People   []string
}

// Block is one node of a record's content tree. The renderer walks these,
// the core never interprets them.
type Block struct {
	Kind     string
	Text     string
	Language string // code blocks only
	AssetURL string // image blocks only
	Children []*Block
}

// SourceRecord is one unit of remote content, normalized by the source map
// builder. ID is stable for the record's lifetime; Title is not.
type SourceRecord struct {
	ID               string
	Title            string
	LastModified     time.Time
	OriginCollection string
	TargetFolder     string
	ShouldProcess    bool
	Blocks           []*Block // nil means retrieval failed, record must not be written
}

// HasPayload reports whether the record's content was actually retrieved.
// A record without payload must never be created or updated on disk.
func (r *SourceRecord) HasPayload() bool {
	return r.Blocks != nil
}
