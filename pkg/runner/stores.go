package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"sheetpulse/pkg/analyze"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/workbook"
	"sheetpulse/pkg/workbook/gsheets"
	"sheetpulse/pkg/workbook/sharepoint"
	"sheetpulse/pkg/writeback"
)

// store is the per-run view of one workbook: materialize grids, apply
// changes, refresh the optimistic-lock baseline after a conflict.
type store interface {
	grid(ctx context.Context, selector string) (*workbook.Grid, error)
	apply(ctx context.Context, cs *analyze.ChangeSet) error
	resnapshot(ctx context.Context) error
	close() error
}

// openStore builds the store for the session's workbook reference.
func openStore(ctx context.Context, s *session) (store, error) {
	applier := &writeback.Applier{Links: s.r.Jira, Log: s.log}

	switch s.ref.Kind {
	case workbook.KindLocal:
		ls, err := workbook.OpenLocal(s.ref.LocalPath)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(s.ref.LocalPath)
		if err != nil {
			return nil, logx.Wrap(err, "failed to snapshot workbook")
		}
		if _, err := s.dir.WriteFile(snapshotName(s), data); err != nil {
			return nil, err
		}
		return &localStore{store: ls, applier: applier}, nil

	case workbook.KindSharePoint:
		sp := &sharePointStore{
			client:  sharepoint.NewClient(s.r.Creds.GraphToken, s.r.Cfg.SharePoint.Timeout, s.r.Cfg.SharePoint.BatchSize, s.log),
			item:    s.ref.SharePoint,
			s:       s,
			applier: applier,
		}
		if err := sp.download(ctx); err != nil {
			return nil, err
		}
		return sp, nil

	case workbook.KindGoogle:
		gc, err := gsheets.NewClient(ctx, s.r.Creds.GoogleCreds)
		if err != nil {
			return nil, err
		}
		return &googleStore{
			client:    gc,
			docID:     s.ref.Google.DocumentID,
			applier:   applier,
			baselines: map[string]*workbook.Grid{},
			sheetIDs:  map[string]int64{},
		}, nil
	}
	return nil, fmt.Errorf("unknown workbook kind %q", s.ref.Kind)
}

func snapshotName(s *session) string {
	return fmt.Sprintf("%s.%s.snapshot.xlsx", s.ref.Basename(), s.timestamp)
}

// metaName is the lock-metadata sidecar, keyed by the snapshot file it
// describes.
func metaName(s *session) string {
	return fmt.Sprintf("%s.%s.meta.json", snapshotName(s), s.timestamp)
}

// localStore mutates the source file in place; there is no concurrent
// editor, so resnapshot is a no-op.
type localStore struct {
	store   *workbook.LocalStore
	applier *writeback.Applier
}

func (l *localStore) grid(_ context.Context, selector string) (*workbook.Grid, error) {
	return l.store.ReadGrid(selector)
}

func (l *localStore) apply(ctx context.Context, cs *analyze.ChangeSet) error {
	return l.applier.ApplyLocal(ctx, l.store, cs)
}

func (l *localStore) resnapshot(context.Context) error { return nil }
func (l *localStore) close() error                     { return l.store.Close() }

// sharePointStore works off a downloaded snapshot and writes back via
// the Graph API guarded by the snapshot ETag.
type sharePointStore struct {
	client  *sharepoint.Client
	item    *workbook.SharePointItem
	s       *session
	applier *writeback.Applier
	etag    string
	local   *workbook.LocalStore
}

// download captures the workbook bytes plus the lock metadata sidecar.
func (sp *sharePointStore) download(ctx context.Context) error {
	dest := sp.s.dir.File(snapshotName(sp.s))
	di, err := sp.client.Download(ctx, sp.item, dest)
	if err != nil {
		return logx.Wrap(err, "failed to download workbook snapshot")
	}
	meta := workbook.SnapshotMeta{
		ETag:         di.ETag,
		LastModified: di.LastModified,
		CapturedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if _, err := sp.s.dir.WriteFile(metaName(sp.s), data); err != nil {
		return err
	}
	sp.etag = di.ETag

	if sp.local != nil {
		sp.local.Close()
	}
	sp.local, err = workbook.OpenLocal(dest)
	return err
}

func (sp *sharePointStore) grid(_ context.Context, selector string) (*workbook.Grid, error) {
	return sp.local.ReadGrid(selector)
}

func (sp *sharePointStore) apply(ctx context.Context, cs *analyze.ChangeSet) error {
	return sp.applier.ApplySharePoint(ctx, sp.client, sp.item, sp.etag, cs)
}

func (sp *sharePointStore) resnapshot(ctx context.Context) error {
	return sp.download(ctx)
}

func (sp *sharePointStore) close() error {
	if sp.local != nil {
		return sp.local.Close()
	}
	return nil
}

// googleStore reads grids live and keeps the per-sheet baseline the
// drift check compares against.
type googleStore struct {
	client    *gsheets.Client
	docID     string
	applier   *writeback.Applier
	baselines map[string]*workbook.Grid
	sheetIDs  map[string]int64
}

func (g *googleStore) grid(ctx context.Context, selector string) (*workbook.Grid, error) {
	title, sheetID, err := g.client.SheetInfo(ctx, g.docID, selector)
	if err != nil {
		return nil, err
	}
	grid, err := g.client.ReadGrid(ctx, g.docID, title)
	if err != nil {
		return nil, err
	}
	g.baselines[title] = grid
	g.sheetIDs[title] = sheetID
	return grid, nil
}

func (g *googleStore) apply(ctx context.Context, cs *analyze.ChangeSet) error {
	baseline, ok := g.baselines[cs.Sheet]
	if !ok {
		return logx.Errorf("no baseline for sheet %s", cs.Sheet)
	}
	return g.applier.ApplyGoogle(ctx, g.client, g.docID, g.sheetIDs[cs.Sheet], baseline, cs)
}

func (g *googleStore) resnapshot(ctx context.Context) error {
	for title := range g.baselines {
		grid, err := g.client.ReadGrid(ctx, g.docID, title)
		if err != nil {
			return err
		}
		g.baselines[title] = grid
	}
	return nil
}

func (g *googleStore) close() error { return nil }
