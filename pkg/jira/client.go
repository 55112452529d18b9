package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sheetpulse/pkg/config"
)

// Client provides read access to a Jira instance. Search and issue reads
// expand the changelog so snapshots carry the full transition history.
type Client struct {
	baseURL  string
	username string
	token    string
	apiVer   string
	pageSize int
	http     *http.Client
}

// NewClient builds a client from the per-run credential set.
func NewClient(creds config.Credentials, cfg config.JiraConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(creds.JiraBaseURL, "/"),
		username: creds.JiraUsername,
		token:    creds.JiraToken,
		apiVer:   cfg.APIVersion,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// BrowseURL returns the issue-browse link for a key.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// SearchURL returns the issue-search link for a JQL expression.
func (c *Client) SearchURL(jql string) string {
	return c.baseURL + "/issues/?jql=" + url.QueryEscape(jql)
}

// Issue fetches one issue with all fields, comments and changelog.
func (c *Client) Issue(ctx context.Context, key string) (*Snapshot, error) {
	if key == "" {
		return nil, fmt.Errorf("empty issue key")
	}
	q := url.Values{}
	q.Set("fields", "*all")
	q.Set("expand", "changelog")
	u := fmt.Sprintf("%s/rest/api/%s/issue/%s?%s", c.baseURL, c.version(), url.PathEscape(key), q.Encode())

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s: %w", key, err)
	}
	var ri restIssue
	if err := json.Unmarshal(body, &ri); err != nil {
		return nil, fmt.Errorf("failed to parse issue %s: %w", key, err)
	}
	return newSnapshot(&ri)
}

// Search runs a JQL query, paging until exhaustion, and returns
// normalized snapshots with changelogs.
func (c *Client) Search(ctx context.Context, jql string) ([]*Snapshot, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, fmt.Errorf("empty jql")
	}
	var out []*Snapshot
	startAt := 0
	for {
		page, err := c.searchPage(ctx, jql, startAt)
		if err != nil {
			return nil, err
		}
		for i := range page.Issues {
			s, err := newSnapshot(&page.Issues[i])
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return out, nil
		}
	}
}

// SearchKeys fetches an explicit key set via "id in (...)" per the scope
// contract, preserving normalization.
func (c *Client) SearchKeys(ctx context.Context, keys []string) ([]*Snapshot, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return c.Search(ctx, fmt.Sprintf("id in (%s)", strings.Join(keys, ",")))
}

// EpicChildren returns all issues whose epic link equals the key, sorted
// by numeric key suffix.
func (c *Client) EpicChildren(ctx context.Context, epicKey string) ([]*Snapshot, error) {
	children, err := c.Search(ctx, fmt.Sprintf(`"Epic Link" = %s OR parent = %s`, epicKey, epicKey))
	if err != nil {
		return nil, err
	}
	sortByKeySuffix(children)
	return children, nil
}

// CreateRequest carries the fields of the enumerated issue-create path.
type CreateRequest struct {
	Project     string
	IssueType   string
	Summary     string
	Description string
}

// Create posts a new issue and returns its key. Only the fields of the
// create path are supported.
func (c *Client) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.Project == "" || req.Summary == "" {
		return "", fmt.Errorf("issue create requires a project and a summary")
	}
	issueType := req.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	fields := map[string]any{
		"project":   map[string]string{"key": req.Project},
		"issuetype": map[string]string{"name": issueType},
		"summary":   req.Summary,
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("failed to encode issue create: %w", err)
	}
	u := fmt.Sprintf("%s/rest/api/%s/issue", c.baseURL, c.version())
	body, err := c.post(ctx, u, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create issue in %s: %w", req.Project, err)
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse issue create response: %w", err)
	}
	if out.Key == "" {
		return "", fmt.Errorf("issue create returned no key")
	}
	return out.Key, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) (*searchResult, error) {
	var body []byte
	var err error
	if c.version() == "3" {
		payload, _ := json.Marshal(map[string]any{
			"jql":        jql,
			"startAt":    startAt,
			"maxResults": c.pageSize,
			"fields":     []string{"*all"},
			"expand":     []string{"changelog"},
		})
		u := fmt.Sprintf("%s/rest/api/3/search", c.baseURL)
		body, err = c.post(ctx, u, payload)
	} else {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", fmt.Sprint(startAt))
		q.Set("maxResults", fmt.Sprint(c.pageSize))
		q.Set("fields", "*all")
		q.Set("expand", "changelog")
		u := fmt.Sprintf("%s/rest/api/2/search?%s", c.baseURL, q.Encode())
		body, err = c.get(ctx, u)
	}
	if err != nil {
		return nil, fmt.Errorf("jql search failed: %w", err)
	}
	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search result: %w", err)
	}
	return &result, nil
}

func (c *Client) version() string {
	if c.apiVer == "3" {
		return "3"
	}
	return "2"
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil)
}

func (c *Client) post(ctx context.Context, u string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, payload)
}

// do performs one authorized request, retrying 429 and 5xx responses with
// exponential backoff.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("jira base url not configured")
	}

	var body []byte
	op := func() error {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.username != "" && c.token != "" {
			req.SetBasicAuth(c.username, c.token)
		} else if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b))))
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
