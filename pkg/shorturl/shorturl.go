// Package shorturl wraps the URL-shortening service used when a
// hyperlink target would exceed the spreadsheet formula limit.
package shorturl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxTargetLength is the longest hyperlink target a sheet formula
// accepts; longer targets are shortened.
const MaxTargetLength = 255

// Client posts long URLs to the shortener endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a client. An empty endpoint disables shortening:
// Shorten then returns the input unchanged.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// Shorten exchanges a long URL for a short one. URLs already within the
// limit pass through untouched.
func (c *Client) Shorten(ctx context.Context, long string) (string, error) {
	if len(long) <= MaxTargetLength || c.endpoint == "" {
		return long, nil
	}
	body, err := json.Marshal(map[string]string{"url": long})
	if err != nil {
		return "", fmt.Errorf("failed to encode shorten request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build shorten request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call shortener: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("shortener status=%d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Short string `json:"short"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode shortener response: %w", err)
	}
	if out.Short == "" {
		return "", fmt.Errorf("shortener returned an empty url")
	}
	return out.Short, nil
}
