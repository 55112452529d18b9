// Package sharepoint talks to the Microsoft Graph workbook surface: drive
// item metadata (the ETag optimistic lock), content download, range PATCH
// batches, and row insertion. Rate-limit responses are retried with
// exponential backoff honoring any server-provided Retry-After.
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/workbook"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// BatchLimit is the number of sub-requests per $batch call. Graph accepts
// up to 20 but range PATCHes against one workbook session degrade past 5.
const BatchLimit = 5

// Client is a Graph API client scoped to one access token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logx.Logger
	batch   int
}

// NewClient creates a Graph client. A zero batchSize falls back to BatchLimit.
func NewClient(token string, timeout time.Duration, batchSize int, log *logx.Logger) *Client {
	if batchSize <= 0 || batchSize > BatchLimit {
		batchSize = BatchLimit
	}
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		batch:   batchSize,
	}
}

// SetBaseURL overrides the Graph endpoint (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// DriveItem is the subset of Graph drive item metadata the pipeline needs.
type DriveItem struct {
	ID           string `json:"id"`
	ETag         string `json:"eTag"`
	LastModified string `json:"lastModifiedDateTime"`
	DriveID      string
}

// ResolveItem locates the drive item for a SharePoint reference and
// returns its id plus the current ETag and last-modified metadata.
func (c *Client) ResolveItem(ctx context.Context, item *workbook.SharePointItem) (*DriveItem, error) {
	var site struct {
		ID string `json:"id"`
	}
	siteURL := fmt.Sprintf("%s/sites/%s:%s", c.baseURL, item.Host, item.SitePath)
	if err := c.getJSON(ctx, siteURL, &site); err != nil {
		return nil, fmt.Errorf("failed to resolve site %s%s: %w", item.Host, item.SitePath, err)
	}

	var drive struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/sites/%s/drive", c.baseURL, site.ID), &drive); err != nil {
		return nil, fmt.Errorf("failed to resolve drive for site %s: %w", site.ID, err)
	}

	var di DriveItem
	itemURL := fmt.Sprintf("%s/drives/%s/root:%s", c.baseURL, drive.ID, item.FilePath)
	if err := c.getJSON(ctx, itemURL, &di); err != nil {
		return nil, fmt.Errorf("failed to resolve item %s: %w", item.FilePath, err)
	}
	di.DriveID = drive.ID
	return &di, nil
}

// Download writes the workbook content to destPath and returns the item
// metadata captured at the same moment.
func (c *Client) Download(ctx context.Context, item *workbook.SharePointItem, destPath string) (*DriveItem, error) {
	di, err := c.ResolveItem(ctx, item)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/drives/%s/items/%s/content", c.baseURL, di.DriveID, di.ID)
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", item.FilePath, err)
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot %s: %w", destPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to write snapshot %s: %w", destPath, err)
	}
	return di, nil
}

// CurrentETag re-reads the item's ETag, used by writeback to validate the
// optimistic lock before mutating anything.
func (c *Client) CurrentETag(ctx context.Context, item *workbook.SharePointItem) (string, error) {
	di, err := c.ResolveItem(ctx, item)
	if err != nil {
		return "", err
	}
	return di.ETag, nil
}

// RangePatch is one value write against a worksheet range.
type RangePatch struct {
	Sheet   string
	Address string // e.g. "B4" or "B4:D4"
	Values  [][]any
}

// PatchRanges applies value writes in $batch groups of the configured
// size. Sub-request failures surface as one aggregated error naming the
// failed addresses.
func (c *Client) PatchRanges(ctx context.Context, di *DriveItem, patches []RangePatch) error {
	for start := 0; start < len(patches); start += c.batch {
		end := start + c.batch
		if end > len(patches) {
			end = len(patches)
		}
		if err := c.patchBatch(ctx, di, patches[start:end]); err != nil {
			return err
		}
	}
	return nil
}

type batchRequest struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type batchResponse struct {
	Responses []struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	} `json:"responses"`
}

func (c *Client) patchBatch(ctx context.Context, di *DriveItem, patches []RangePatch) error {
	reqs := make([]batchRequest, 0, len(patches))
	for i, p := range patches {
		body, err := json.Marshal(map[string]any{"values": p.Values})
		if err != nil {
			return fmt.Errorf("failed to encode patch %s: %w", p.Address, err)
		}
		reqs = append(reqs, batchRequest{
			ID:     strconv.Itoa(i),
			Method: http.MethodPatch,
			URL: fmt.Sprintf("/drives/%s/items/%s/workbook/worksheets('%s')/range(address='%s')",
				di.DriveID, di.ID, url.PathEscape(p.Sheet), p.Address),
			Body:    body,
			Headers: map[string]string{"Content-Type": "application/json"},
		})
	}

	payload, err := json.Marshal(map[string]any{"requests": reqs})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/$batch", bytes.NewReader(payload), "application/json")
	if err != nil {
		return fmt.Errorf("batch patch failed: %w", err)
	}
	defer resp.Body.Close()

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode batch response: %w", err)
	}
	var failed []string
	for _, r := range br.Responses {
		if r.Status >= 300 {
			idx, _ := strconv.Atoi(r.ID)
			addr := "?"
			if idx >= 0 && idx < len(patches) {
				addr = patches[idx].Address
			}
			failed = append(failed, fmt.Sprintf("%s(status %d)", addr, r.Status))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("batch patch had %d failed ranges: %v", len(failed), failed)
	}
	return nil
}

// InsertRow inserts one row shifting down. Dimension inserts cannot batch,
// so callers issue them sequentially before any range patches.
func (c *Client) InsertRow(ctx context.Context, di *DriveItem, sheet string, row int) error {
	address := fmt.Sprintf("%d:%d", row, row)
	u := fmt.Sprintf("%s/drives/%s/items/%s/workbook/worksheets('%s')/range(address='%s')/insert",
		c.baseURL, di.DriveID, di.ID, url.PathEscape(sheet), address)
	body, _ := json.Marshal(map[string]string{"shift": "Down"})
	resp, err := c.do(ctx, http.MethodPost, u, bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("failed to insert row %d on %s: %w", row, sheet, err)
	}
	resp.Body.Close()
	return nil
}

// SetWrap enables text wrap on a range via the format surface.
func (c *Client) SetWrap(ctx context.Context, di *DriveItem, sheet, address string) error {
	u := fmt.Sprintf("%s/drives/%s/items/%s/workbook/worksheets('%s')/range(address='%s')/format",
		c.baseURL, di.DriveID, di.ID, url.PathEscape(sheet), address)
	body, _ := json.Marshal(map[string]any{"wrapText": true})
	resp, err := c.do(ctx, http.MethodPatch, u, bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("failed to set wrap on %s!%s: %w", sheet, address, err)
	}
	resp.Body.Close()
	return nil
}

// do performs one authorized request, retrying 429/503 with exponential
// backoff and honoring Retry-After when the server provides one.
func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	op := func() error {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err = c.http.Do(req) //nolint:bodyclose // closed by caller or below
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			delay := retryAfter(resp)
			status := resp.StatusCode
			resp.Body.Close()
			if c.log != nil {
				c.log.Warn("graph throttled (status %d), retrying in %s", status, delay)
			}
			// Honor the server-directed delay before backoff retries.
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-time.After(delay):
			}
			return fmt.Errorf("graph throttled with status %d", status)
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return backoff.Permanent(fmt.Errorf("graph api status=%d body=%s", resp.StatusCode, string(b)))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", u, err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 2 * time.Second
}
