// Package srcadapter is the HTTP client for the remote content source:
// token auth, cursor pagination, bounded timeouts. Transient failures are
// surfaced as typed status errors so the retry layer can classify them.
package srcadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jgivc/pagesync/internal/common"
	"github.com/jgivc/pagesync/internal/entity"
	"github.com/jgivc/pagesync/internal/retry"
	"github.com/jgivc/pagesync/internal/util"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100

	headerAuth = "Authorization"
)

type Config struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
}

// RecordPage is one page of a collection listing.
type RecordPage struct {
	Records    []*RawRecord
	NextCursor string
	HasMore    bool
}

type client struct {
	cfg   *Config
	httpc *http.Client
	log   *slog.Logger
}

func NewClient(cfg *Config, log *slog.Logger) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &client{
		cfg: cfg,
		httpc: &http.Client{
			Timeout: timeout,
		},
		log: log.With(slog.String("item", "SourceClient")),
	}
}

// ListCollectionRecords fetches one page of a collection. Callers drain the
// cursor until HasMore is false.
func (c *client) ListCollectionRecords(ctx context.Context, collectionID, cursor string) (*RecordPage, error) {
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	q := url.Values{}
	q.Set("page_size", fmt.Sprint(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var payload struct {
		Records    []*recordPayload `json:"records"`
		NextCursor string           `json:"next_cursor"`
		HasMore    bool             `json:"has_more"`
	}

	path := fmt.Sprintf("collections/%s/records?%s", url.PathEscape(collectionID), q.Encode())
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("cannot list collection %s: %w", collectionID, err)
	}

	page := &RecordPage{
		NextCursor: payload.NextCursor,
		HasMore:    payload.HasMore,
	}

	for _, rp := range payload.Records {
		rec, err := rp.toRecord()
		if err != nil {
			c.log.Error("Cannot decode record, skipping",
				slog.String("record_id", rp.ID), slog.Any("error", err))

			continue
		}

		if rec.ID, err = util.NormalizeRecordID(rec.ID); err != nil {
			c.log.Error("Record has malformed id, skipping", slog.Any("error", err))

			continue
		}

		page.Records = append(page.Records, rec)
	}

	return page, nil
}

// GetRecord fetches one individually-mounted record. A 404 surfaces as
// common.ErrRecordNotFound so callers can tell a gone record from an outage.
func (c *client) GetRecord(ctx context.Context, recordID string) (*RawRecord, error) {
	var payload recordPayload
	if err := c.get(ctx, "records/"+url.PathEscape(recordID), &payload); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("record %s: %w", recordID, common.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("cannot get record %s: %w", recordID, err)
	}

	rec, err := payload.toRecord()
	if err != nil {
		return nil, fmt.Errorf("cannot decode record %s: %w", recordID, err)
	}

	if rec.ID, err = util.NormalizeRecordID(rec.ID); err != nil {
		return nil, err
	}

	return rec, nil
}

// GetRecordContent fetches a record's block tree.
func (c *client) GetRecordContent(ctx context.Context, recordID string) ([]*entity.Block, error) {
	var payload struct {
		Blocks []*blockPayload `json:"blocks"`
	}

	if err := c.get(ctx, "records/"+url.PathEscape(recordID)+"/content", &payload); err != nil {
		return nil, fmt.Errorf("cannot get record %s content: %w", recordID, err)
	}

	blocks := make([]*entity.Block, 0, len(payload.Blocks))
	for _, bp := range payload.Blocks {
		blocks = append(blocks, bp.toBlock())
	}

	return blocks, nil
}

// DownloadAsset streams one binary asset. The caller owns closing the reader.
func (c *client) DownloadAsset(ctx context.Context, assetURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot build asset request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot download asset: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("asset %s: %w", assetURL, common.ErrAssetNotFound)
		}

		return nil, &retry.StatusError{
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("asset download failed with status %d", resp.StatusCode),
		}
	}

	return resp.Body, nil
}

func isStatus(err error, status int) bool {
	var se *retry.StatusError
	return errors.As(err, &se) && se.Status == status
}

func (c *client) get(ctx context.Context, path string, out any) error {
	u := c.cfg.BaseURL
	if u == "" || u[len(u)-1] != '/' {
		u += "/"
	}
	u += path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("cannot build request: %w", err)
	}

	req.Header.Set(headerAuth, "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &retry.StatusError{
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("request %s failed with status %d: %s", path, resp.StatusCode, body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cannot decode response: %w", err)
	}

	return nil
}
