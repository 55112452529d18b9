package gsheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"sheetpulse/pkg/workbook"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newSheetsStub(t *testing.T, recorded *[]recordedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		*recorded = append(*recorded, recordedRequest{method: r.Method, path: r.URL.Path, body: body})

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/v4/spreadsheets/doc-1"):
			json.NewEncoder(w).Encode(map[string]any{
				"sheets": []map[string]any{
					{"properties": map[string]any{"title": "Dashboard", "sheetId": 101}},
					{"properties": map[string]any{"title": "Backlog", "sheetId": 202}},
				},
			})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
			json.NewEncoder(w).Encode(map[string]any{
				"values": [][]any{{"Project", "<jira>"}, {"TES-1", "Login bug"}},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), "",
		option.WithEndpoint(srv.URL),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func TestSheetInfoSelectsFirstSheetByDefault(t *testing.T) {
	var recorded []recordedRequest
	srv := newSheetsStub(t, &recorded)
	defer srv.Close()
	c := newTestClient(t, srv)

	title, id, err := c.SheetInfo(context.Background(), "doc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", title)
	assert.Equal(t, int64(101), id)

	title, id, err = c.SheetInfo(context.Background(), "doc-1", "Backlog")
	require.NoError(t, err)
	assert.Equal(t, "Backlog", title)
	assert.Equal(t, int64(202), id)

	_, _, err = c.SheetInfo(context.Background(), "doc-1", "Nope")
	assert.Error(t, err)
}

func TestReadGrid(t *testing.T) {
	var recorded []recordedRequest
	srv := newSheetsStub(t, &recorded)
	defer srv.Close()
	c := newTestClient(t, srv)

	grid, err := c.ReadGrid(context.Background(), "doc-1", "Dashboard")
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", grid.SheetName)
	assert.Equal(t, "<jira>", grid.Cell(1, 2))
	assert.Equal(t, "TES-1", grid.Cell(2, 1))
}

func TestBatchSetValuesUsesUserEntered(t *testing.T) {
	var recorded []recordedRequest
	srv := newSheetsStub(t, &recorded)
	defer srv.Close()
	c := newTestClient(t, srv)

	err := c.BatchSetValues(context.Background(), "doc-1", []ValueWrite{
		{Range: "'Dashboard'!B2", Values: [][]any{{"Login bug"}}},
	})
	require.NoError(t, err)

	last := recorded[len(recorded)-1]
	assert.Contains(t, last.path, "values:batchUpdate")
	assert.Equal(t, "USER_ENTERED", last.body["valueInputOption"])
}

func TestInsertRowsTargetsSheetID(t *testing.T) {
	var recorded []recordedRequest
	srv := newSheetsStub(t, &recorded)
	defer srv.Close()
	c := newTestClient(t, srv)

	require.NoError(t, c.InsertRows(context.Background(), "doc-1", 202, 4, 2))

	last := recorded[len(recorded)-1]
	reqs := last.body["requests"].([]any)
	require.Len(t, reqs, 1)
	insert := reqs[0].(map[string]any)["insertDimension"].(map[string]any)
	rng := insert["range"].(map[string]any)
	assert.Equal(t, float64(202), rng["sheetId"])
	assert.Equal(t, float64(3), rng["startIndex"])
	assert.Equal(t, float64(5), rng["endIndex"])
	assert.Equal(t, "ROWS", rng["dimension"])
}

func TestSetWrapEmitsRepeatCell(t *testing.T) {
	var recorded []recordedRequest
	srv := newSheetsStub(t, &recorded)
	defer srv.Close()
	c := newTestClient(t, srv)

	err := c.SetWrap(context.Background(), "doc-1", 101, []workbook.Coord{{Row: 5, Col: 3}})
	require.NoError(t, err)

	last := recorded[len(recorded)-1]
	reqs := last.body["requests"].([]any)
	require.Len(t, reqs, 1)
	repeat := reqs[0].(map[string]any)["repeatCell"].(map[string]any)
	assert.Equal(t, "userEnteredFormat.wrapStrategy", repeat["fields"])
}
