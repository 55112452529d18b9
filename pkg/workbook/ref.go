// Package workbook models the spreadsheet stores the pipeline reads and
// writes: local xlsx files, SharePoint drive items, and Google Sheets. A
// Ref is the tagged union naming one workbook; it is immutable for the
// duration of a run.
package workbook

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Kind discriminates the Ref union.
type Kind string

const (
	KindLocal      Kind = "local"
	KindSharePoint Kind = "sharepoint"
	KindGoogle     Kind = "google"
)

// SharePointItem identifies a drive item plus the optimistic-lock metadata
// captured at snapshot time.
type SharePointItem struct {
	Host         string `yaml:"host" json:"host"`
	SitePath     string `yaml:"site_path" json:"sitePath"`
	FilePath     string `yaml:"file_path" json:"filePath"`
	ETag         string `yaml:"etag" json:"etag"`
	LastModified string `yaml:"last_modified" json:"lastModified"`
}

// GoogleSheet identifies a Google Sheets document.
type GoogleSheet struct {
	DocumentID string `yaml:"document_id" json:"documentId"`
	Title      string `yaml:"title" json:"title"`
}

// Ref is the tagged union over workbook stores. Exactly one of LocalPath,
// SharePoint, Google is set, per Kind.
type Ref struct {
	Kind       Kind            `yaml:"kind"`
	LocalPath  string          `yaml:"local_path,omitempty"`
	SharePoint *SharePointItem `yaml:"sharepoint,omitempty"`
	Google     *GoogleSheet    `yaml:"google,omitempty"`

	// Sheet is the optional sheet selector decoded from a #fragment on
	// the original reference. Empty means the first sheet.
	Sheet string `yaml:"sheet,omitempty"`
}

// Parse turns a user-supplied reference string into a Ref. Recognized
// forms:
//
//	/path/to/book.xlsx[#Sheet]
//	https://{host}/sites/{site}/.../{file}.xlsx[#Sheet]   (SharePoint)
//	gsheet:{documentId}[#Sheet]  or a docs.google.com URL
func Parse(raw string) (Ref, error) {
	ref := Ref{}
	if raw == "" {
		return ref, fmt.Errorf("empty workbook reference")
	}

	if i := strings.LastIndex(raw, "#"); i >= 0 {
		frag := raw[i+1:]
		raw = raw[:i]
		decoded, err := url.QueryUnescape(frag)
		if err != nil {
			decoded = frag
		}
		ref.Sheet = decoded
	}

	switch {
	case strings.HasPrefix(raw, "gsheet:"):
		ref.Kind = KindGoogle
		ref.Google = &GoogleSheet{DocumentID: strings.TrimPrefix(raw, "gsheet:")}
	case strings.Contains(raw, "docs.google.com"):
		u, err := url.Parse(raw)
		if err != nil {
			return ref, fmt.Errorf("failed to parse google sheet url: %w", err)
		}
		// /spreadsheets/d/{id}/...
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i, p := range parts {
			if p == "d" && i+1 < len(parts) {
				ref.Kind = KindGoogle
				ref.Google = &GoogleSheet{DocumentID: parts[i+1]}
				return ref, nil
			}
		}
		return ref, fmt.Errorf("no document id in google sheet url %s", raw)
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		u, err := url.Parse(raw)
		if err != nil {
			return ref, fmt.Errorf("failed to parse sharepoint url: %w", err)
		}
		sitePath, filePath := splitSitePath(u.Path)
		if filePath == "" {
			return ref, fmt.Errorf("no file path in sharepoint url %s", raw)
		}
		ref.Kind = KindSharePoint
		ref.SharePoint = &SharePointItem{
			Host:     u.Host,
			SitePath: sitePath,
			FilePath: filePath,
		}
	default:
		ref.Kind = KindLocal
		ref.LocalPath = raw
	}
	return ref, nil
}

// splitSitePath divides a SharePoint URL path into the site collection part
// and the file path inside the document library.
func splitSitePath(p string) (site, file string) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "sites" || parts[0] == "teams") {
		site = "/" + parts[0] + "/" + parts[1]
		file = "/" + strings.Join(parts[2:], "/")
		return site, file
	}
	return "", p
}

// Basename returns the workbook file name without extension, used in
// artifact naming.
func (r Ref) Basename() string {
	var name string
	switch r.Kind {
	case KindLocal:
		name = r.LocalPath
	case KindSharePoint:
		name = r.SharePoint.FilePath
	case KindGoogle:
		if r.Google.Title != "" {
			name = r.Google.Title
		} else {
			name = r.Google.DocumentID
		}
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// String renders a canonical form suitable for logging and scope files.
func (r Ref) String() string {
	var s string
	switch r.Kind {
	case KindLocal:
		s = r.LocalPath
	case KindSharePoint:
		s = "https://" + r.SharePoint.Host + r.SharePoint.SitePath + r.SharePoint.FilePath
	case KindGoogle:
		s = "gsheet:" + r.Google.DocumentID
	}
	if r.Sheet != "" {
		s += "#" + r.Sheet
	}
	return s
}

// WithSheet returns a copy of the reference selecting a different sheet.
func (r Ref) WithSheet(sheet string) Ref {
	r.Sheet = sheet
	return r
}

// CellName converts 1-based (col, row) to A1 notation.
func CellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("?%d:%d", col, row)
	}
	return name
}

// ColumnName converts a 1-based column index to its letter form.
func ColumnName(col int) string {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return "?"
	}
	return name
}

// SnapshotMeta is the sidecar persisted next to SharePoint snapshots so a
// later writeback can verify the optimistic lock.
type SnapshotMeta struct {
	ETag         string    `yaml:"etag" json:"etag"`
	LastModified string    `yaml:"last_modified" json:"lastModified"`
	CapturedAt   time.Time `yaml:"captured_at" json:"capturedAt"`
}
