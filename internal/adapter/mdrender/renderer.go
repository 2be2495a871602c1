// Package mdrender turns a record's block tree into markdown text.
// It covers the closed set of block kinds the source emits; anything
// else degrades to a plain paragraph so content is never dropped.
package mdrender

import (
	"fmt"
	"strings"

	"github.com/jgivc/pagesync/internal/entity"
)

const (
	BlockParagraph    = "paragraph"
	BlockHeading1     = "heading_1"
	BlockHeading2     = "heading_2"
	BlockHeading3     = "heading_3"
	BlockBulletedItem = "bulleted_list_item"
	BlockNumberedItem = "numbered_list_item"
	BlockQuote        = "quote"
	BlockCode         = "code"
	BlockDivider      = "divider"
	BlockImage        = "image"

	indentStep = "  "
)

// AssetResolver maps a remote asset URL to the path the rendered document
// should reference, typically the locally-downloaded copy.
type AssetResolver func(url string) string

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

// Render produces the markdown body for a block tree. resolve may be nil,
// in which case image URLs are emitted as-is.
func (r *Renderer) Render(blocks []*entity.Block, resolve AssetResolver) (string, error) {
	if resolve == nil {
		resolve = func(url string) string { return url }
	}

	var b strings.Builder
	r.renderBlocks(&b, blocks, 0, resolve)

	return b.String(), nil
}

func (r *Renderer) renderBlocks(b *strings.Builder, blocks []*entity.Block, depth int, resolve AssetResolver) {
	number := 0
	for _, blk := range blocks {
		if blk.Kind == BlockNumberedItem {
			number++
		} else {
			number = 0
		}

		r.renderBlock(b, blk, depth, number, resolve)
	}
}

func (r *Renderer) renderBlock(b *strings.Builder, blk *entity.Block, depth, number int, resolve AssetResolver) {
	indent := strings.Repeat(indentStep, depth)

	switch blk.Kind {
	case BlockHeading1:
		fmt.Fprintf(b, "# %s\n\n", blk.Text)
	case BlockHeading2:
		fmt.Fprintf(b, "## %s\n\n", blk.Text)
	case BlockHeading3:
		fmt.Fprintf(b, "### %s\n\n", blk.Text)
	case BlockBulletedItem:
		fmt.Fprintf(b, "%s- %s\n", indent, blk.Text)
		r.renderBlocks(b, blk.Children, depth+1, resolve)

		return
	case BlockNumberedItem:
		fmt.Fprintf(b, "%s%d. %s\n", indent, number, blk.Text)
		r.renderBlocks(b, blk.Children, depth+1, resolve)

		return
	case BlockQuote:
		fmt.Fprintf(b, "> %s\n\n", blk.Text)
	case BlockCode:
		fmt.Fprintf(b, "```%s\n%s\n```\n\n", blk.Language, blk.Text)
	case BlockDivider:
		b.WriteString("---\n\n")
	case BlockImage:
		fmt.Fprintf(b, "![%s](%s)\n\n", blk.Text, resolve(blk.AssetURL))
	default:
		if blk.Text != "" {
			fmt.Fprintf(b, "%s\n\n", blk.Text)
		}
	}

	r.renderBlocks(b, blk.Children, depth, resolve)
}

// ExtractAssetRefs walks the tree and collects every remote asset a record
// references, so they can be downloaded before the record is written.
func (r *Renderer) ExtractAssetRefs(blocks []*entity.Block, ownerID string) []entity.AssetRef {
	var refs []entity.AssetRef

	stack := make([]*entity.Block, 0, len(blocks))
	for i := len(blocks) - 1; i >= 0; i-- {
		stack = append(stack, blocks[i])
	}

	for len(stack) > 0 {
		blk := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if blk.Kind == BlockImage && blk.AssetURL != "" {
			refs = append(refs, entity.AssetRef{URL: blk.AssetURL, OwnerID: ownerID})
		}

		for i := len(blk.Children) - 1; i >= 0; i-- {
			stack = append(stack, blk.Children[i])
		}
	}

	return refs
}
