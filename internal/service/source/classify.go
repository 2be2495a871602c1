package source

import "github.com/jgivc/pagesync/internal/entity"

// classifier decides "ready to publish" from one configured property: a
// status or select whose value must be in the published set, or a checkbox
// of the same name as a binary flag. A record without the property at all
// is included — fail open, so schema drift never silently drops content.
type classifier struct {
	property  string
	published map[string]struct{}
}

func newClassifier(property string, publishedValues []string) *classifier {
	published := make(map[string]struct{}, len(publishedValues))
	for _, v := range publishedValues {
		published[v] = struct{}{}
	}

	return &classifier{
		property:  property,
		published: published,
	}
}

func (c *classifier) ShouldProcess(props map[string]entity.Property) bool {
	p, exists := props[c.property]
	if !exists {
		return true
	}

	switch p.Kind {
	case entity.PropertyKindStatus, entity.PropertyKindSelect:
		_, ok := c.published[p.Select]

		return ok
	case entity.PropertyKindCheckbox:
		return p.Checkbox
	}

	return true
}
