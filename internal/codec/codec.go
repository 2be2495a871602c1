// Package codec reads and writes the YAML frontmatter header that every
// output file carries. The header is the tracking channel: it echoes the
// source record id and timestamps so later runs can join files back to
// their records.
package codec

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"go.abhg.dev/goldmark/frontmatter"
	"gopkg.in/yaml.v2"
)

const (
	delimiter = "---\n"

	// TimeLayout is the canonical textual form for every timestamp the
	// header carries. Parsing always goes through it before comparison.
	TimeLayout = time.RFC3339
)

// Header is the structured metadata block of one output file.
type Header struct {
	ID           string
	Title        string
	LastModified time.Time
	LastSync     time.Time
	AssetExpiry  time.Time // zero means no expiring asset URLs embedded
}

type serializedHeader struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	LastModified string `yaml:"last_modified"`
	LastSync     string `yaml:"last_sync"`
	AssetExpiry  string `yaml:"asset_expiry,omitempty"`
}

// rawHeader also carries the nested tracking object written by earlier
// versions of the tool, used as a fallback id channel.
type rawHeader struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	LastModified string `yaml:"last_modified"`
	LastSync     string `yaml:"last_sync"`
	AssetExpiry  string `yaml:"asset_expiry"`
	Sync         struct {
		ID           string `yaml:"id"`
		LastModified string `yaml:"last_modified"`
	} `yaml:"sync"`
}

type Codec struct {
	md goldmark.Markdown
}

func New() *Codec {
	return &Codec{
		md: goldmark.New(
			goldmark.WithExtensions(
				&frontmatter.Extender{},
			),
		),
	}
}

// Serialize renders the header block, fences included, followed by the body.
func (c *Codec) Serialize(h *Header, body string) (string, error) {
	sh := serializedHeader{
		ID:           h.ID,
		Title:        h.Title,
		LastModified: h.LastModified.Format(TimeLayout),
		LastSync:     h.LastSync.Format(TimeLayout),
	}
	if !h.AssetExpiry.IsZero() {
		sh.AssetExpiry = h.AssetExpiry.Format(TimeLayout)
	}

	data, err := yaml.Marshal(&sh)
	if err != nil {
		return "", fmt.Errorf("cannot marshal header: %w", err)
	}

	var b strings.Builder
	b.WriteString(delimiter)
	b.Write(data)
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString(body)

	return b.String(), nil
}

// Parse extracts the header and body from a file's text. A file without a
// frontmatter block yields a nil header and the full text as body. The
// nested sync object's id is used when the top-level id field is absent.
func (c *Codec) Parse(fileText []byte) (*Header, string, error) {
	ctx := parser.NewContext()

	var buf bytes.Buffer
	if err := c.md.Convert(fileText, &buf, parser.WithContext(ctx)); err != nil {
		return nil, "", fmt.Errorf("cannot parse file: %w", err)
	}

	fm := frontmatter.Get(ctx)
	if fm == nil {
		return nil, string(fileText), nil
	}

	var raw rawHeader
	if err := fm.Decode(&raw); err != nil {
		return nil, "", fmt.Errorf("cannot decode header: %w", err)
	}

	h := &Header{
		ID:    raw.ID,
		Title: raw.Title,
	}

	lastModified := raw.LastModified
	if h.ID == "" {
		h.ID = raw.Sync.ID
		if lastModified == "" {
			lastModified = raw.Sync.LastModified
		}
	}

	var err error
	if h.LastModified, err = parseTime(lastModified); err != nil {
		return nil, "", fmt.Errorf("cannot parse last_modified: %w", err)
	}
	if h.LastSync, err = parseTime(raw.LastSync); err != nil {
		return nil, "", fmt.Errorf("cannot parse last_sync: %w", err)
	}
	if h.AssetExpiry, err = parseTime(raw.AssetExpiry); err != nil {
		return nil, "", fmt.Errorf("cannot parse asset_expiry: %w", err)
	}

	return h, stripHeader(string(fileText)), nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(TimeLayout, s)
}

func stripHeader(text string) string {
	if !strings.HasPrefix(text, delimiter) {
		return text
	}

	parts := strings.SplitN(text, delimiter, 3)
	if len(parts) < 3 {
		return text
	}

	return strings.TrimPrefix(parts[2], "\n")
}
