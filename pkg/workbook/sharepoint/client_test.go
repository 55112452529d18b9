package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetpulse/pkg/workbook"
)

func newTestItem() *workbook.SharePointItem {
	return &workbook.SharePointItem{
		Host:     "contoso.sharepoint.com",
		SitePath: "/sites/eng",
		FilePath: "/Shared/roadmap.xlsx",
	}
}

func newGraphStub(t *testing.T, batchHook func(body map[string]any) int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/sites/contoso.sharepoint.com:"):
			json.NewEncoder(w).Encode(map[string]string{"id": "site-1"})
		case r.URL.Path == "/sites/site-1/drive":
			json.NewEncoder(w).Encode(map[string]string{"id": "drive-1"})
		case strings.HasPrefix(r.URL.Path, "/drives/drive-1/root:"):
			json.NewEncoder(w).Encode(map[string]string{
				"id": "item-1", "eTag": "\"etag-7\"", "lastModifiedDateTime": "2026-08-30T10:00:00Z",
			})
		case r.URL.Path == "/$batch":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			n := len(body["requests"].([]any))
			if batchHook != nil {
				if status := batchHook(body); status != 0 {
					w.WriteHeader(status)
					return
				}
			}
			responses := make([]map[string]any, 0, n)
			for i := 0; i < n; i++ {
				responses = append(responses, map[string]any{"id": fmt.Sprint(i), "status": 200})
			}
			json.NewEncoder(w).Encode(map[string]any{"responses": responses})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestResolveItemCapturesETag(t *testing.T) {
	srv := newGraphStub(t, nil)
	defer srv.Close()

	c := NewClient("tok", 10*time.Second, 5, nil)
	c.SetBaseURL(srv.URL)

	di, err := c.ResolveItem(context.Background(), newTestItem())
	require.NoError(t, err)
	assert.Equal(t, "item-1", di.ID)
	assert.Equal(t, "drive-1", di.DriveID)
	assert.Equal(t, "\"etag-7\"", di.ETag)

	etag, err := c.CurrentETag(context.Background(), newTestItem())
	require.NoError(t, err)
	assert.Equal(t, "\"etag-7\"", etag)
}

func TestPatchRangesSplitsIntoBatchesOfFive(t *testing.T) {
	var batchSizes []int
	srv := newGraphStub(t, func(body map[string]any) int {
		batchSizes = append(batchSizes, len(body["requests"].([]any)))
		return 0
	})
	defer srv.Close()

	c := NewClient("tok", 10*time.Second, 5, nil)
	c.SetBaseURL(srv.URL)

	di := &DriveItem{ID: "item-1", DriveID: "drive-1"}
	patches := make([]RangePatch, 12)
	for i := range patches {
		patches[i] = RangePatch{Sheet: "S1", Address: fmt.Sprintf("B%d", i+2), Values: [][]any{{"v"}}}
	}
	require.NoError(t, c.PatchRanges(context.Background(), di, patches))
	assert.Equal(t, []int{5, 5, 2}, batchSizes)
}

func TestPatchRangesReportsFailedAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"responses": []map[string]any{
			{"id": "0", "status": 200},
			{"id": "1", "status": 409},
		}})
	}))
	defer srv.Close()

	c := NewClient("tok", 10*time.Second, 5, nil)
	c.SetBaseURL(srv.URL)

	di := &DriveItem{ID: "item-1", DriveID: "drive-1"}
	err := c.PatchRanges(context.Background(), di, []RangePatch{
		{Sheet: "S1", Address: "B2", Values: [][]any{{"a"}}},
		{Sheet: "S1", Address: "B3", Values: [][]any{{"b"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B3")
	assert.NotContains(t, err.Error(), "B2(")
}

func TestThrottleHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "site-1"})
	}))
	defer srv.Close()

	c := NewClient("tok", 10*time.Second, 5, nil)
	c.SetBaseURL(srv.URL)

	start := time.Now()
	var out map[string]any
	err := c.getJSON(context.Background(), srv.URL+"/sites/whatever", &out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), calls.Load())
}
