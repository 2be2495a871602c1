package srcadapter

import (
	"encoding/json"
	"time"

	"github.com/jgivc/pagesync/internal/entity"
)

// RawRecord is one record as the remote source returns it: identity, title,
// classification properties and (once fetched) the content block tree.
type RawRecord struct {
	ID           string
	Title        string
	LastModified time.Time
	Properties   map[string]entity.Property
	Blocks       []*entity.Block
}

type recordPayload struct {
	ID           string                     `json:"id"`
	Title        string                     `json:"title"`
	LastModified string                     `json:"last_modified"`
	Properties   map[string]json.RawMessage `json:"properties"`
}

type namedValue struct {
	Name string `json:"name"`
}

type propertyPayload struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Select      *namedValue  `json:"select"`
	MultiSelect []namedValue `json:"multi_select"`
	Date        *struct {
		Start string `json:"start"`
	} `json:"date"`
	Status   *namedValue  `json:"status"`
	Number   *float64     `json:"number"`
	Checkbox *bool        `json:"checkbox"`
	People   []namedValue `json:"people"`
}

type blockPayload struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Language string          `json:"language"`
	URL      string          `json:"url"`
	Children []*blockPayload `json:"children"`
}

func (p *recordPayload) toRecord() (*RawRecord, error) {
	rec := &RawRecord{
		ID:         p.ID,
		Title:      p.Title,
		Properties: make(map[string]entity.Property, len(p.Properties)),
	}

	if p.LastModified != "" {
		t, err := time.Parse(time.RFC3339, p.LastModified)
		if err != nil {
			return nil, err
		}
		rec.LastModified = t
	}

	for name, raw := range p.Properties {
		prop, known := decodeProperty(raw)
		if !known {
			// Unknown property kinds are ignored, not errored.
			continue
		}

		rec.Properties[name] = prop
	}

	return rec, nil
}

// decodeProperty dispatches over the closed set of known property kinds.
// The second return is false for kinds this version does not understand.
func decodeProperty(raw json.RawMessage) (entity.Property, bool) {
	var p propertyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return entity.Property{}, false
	}

	switch entity.PropertyKind(p.Type) {
	case entity.PropertyKindText:
		return entity.Property{Kind: entity.PropertyKindText, Text: p.Text}, true
	case entity.PropertyKindSelect:
		var v string
		if p.Select != nil {
			v = p.Select.Name
		}

		return entity.Property{Kind: entity.PropertyKindSelect, Select: v}, true
	case entity.PropertyKindMultiSelect:
		return entity.Property{Kind: entity.PropertyKindMultiSelect, Multi: names(p.MultiSelect)}, true
	case entity.PropertyKindDate:
		var t time.Time
		if p.Date != nil && p.Date.Start != "" {
			parsed, err := time.Parse(time.RFC3339, p.Date.Start)
			if err != nil {
				return entity.Property{}, false
			}
			t = parsed
		}

		return entity.Property{Kind: entity.PropertyKindDate, Date: t}, true
	case entity.PropertyKindStatus:
		var v string
		if p.Status != nil {
			v = p.Status.Name
		}

		return entity.Property{Kind: entity.PropertyKindStatus, Select: v}, true
	case entity.PropertyKindNumber:
		var n float64
		if p.Number != nil {
			n = *p.Number
		}

		return entity.Property{Kind: entity.PropertyKindNumber, Number: n}, true
	case entity.PropertyKindCheckbox:
		var b bool
		if p.Checkbox != nil {
			b = *p.Checkbox
		}

		return entity.Property{Kind: entity.PropertyKindCheckbox, Checkbox: b}, true
	case entity.PropertyKindPeople:
		return entity.Property{Kind: entity.PropertyKindPeople, People: names(p.People)}, true
	}

	return entity.Property{}, false
}

func names(vals []namedValue) []string {
	if len(vals) == 0 {
		return nil
	}

	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Name)
	}

	return out
}

func (b *blockPayload) toBlock() *entity.Block {
	blk := &entity.Block{
		Kind:     b.Type,
		Text:     b.Text,
		Language: b.Language,
		AssetURL: b.URL,
	}

	for _, child := range b.Children {
		blk.Children = append(blk.Children, child.toBlock())
	}

	return blk
}
