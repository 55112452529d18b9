// Package runner drives one refresh: snapshot the workbook, emit scope
// descriptors, dispatch analyzers in order, and route the collected
// changes through writeback with conflict retry. A refresh of one
// (workbook, sheet) is a single synchronous pipeline; recursive
// dependency refreshes of sibling sheets share the run directory and
// timestamp.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetpulse/pkg/analyze"
	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/config"
	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/llm"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/mailer"
	"sheetpulse/pkg/metrics"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/shorturl"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
	"sheetpulse/pkg/writeback"
)

// Runner holds the long-lived clients shared across refreshes.
type Runner struct {
	Cfg       *config.Config
	Creds     config.Credentials
	Jira      analyze.IssueSource
	LLM       analyze.Summarizer
	Shortener analyze.Shortener
	Mailer    analyze.Mailer
	Ledger    *artifacts.Ledger
	Resync    *logx.ResyncLog
	Log       *logx.Logger

	// TableFilter, when set, restricts brief dispatch to briefs whose
	// reference list names the table. It applies to the entry sheet
	// only; recursive dependency refreshes run unfiltered.
	TableFilter string

	// MaxConflictRetries bounds the optimistic-lock retry loop. Zero
	// means retry indefinitely.
	MaxConflictRetries int
	// RetryDelay is the wait between conflict retries.
	RetryDelay time.Duration

	// openStore overrides store construction in tests.
	openStore func(ctx context.Context, s *session) (store, error)
}

// New wires a Runner from config and per-run credentials.
func New(cfg *config.Config, creds config.Credentials, log *logx.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := llm.New(cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Cfg:        cfg,
		Creds:      creds,
		Jira:       jira.NewClient(creds, cfg.Jira),
		LLM:        engine,
		Shortener:  shorturl.NewClient(cfg.ShortenerURL, cfg.Jira.Timeout),
		Mailer:     mailer.New(cfg.Mail),
		Log:        log,
		RetryDelay: cfg.ConflictRetryDelay,
	}, nil
}

// Refresh runs the full pipeline for one workbook reference. An empty
// sheet selects the reference's own fragment, or the first sheet.
func (r *Runner) Refresh(ctx context.Context, ref workbook.Ref, sheet string) error {
	if sheet == "" {
		sheet = ref.Sheet
	}
	timestamp := time.Now().UTC().Format(artifacts.TimestampFormat)
	runID := timestamp + "-" + uuid.NewString()[:8]
	if eng, ok := r.LLM.(*llm.Engine); ok {
		eng.Stamp = timestamp
	}

	dir, err := artifacts.NewDir(r.Cfg.LogsRoot, r.Creds.User, runID)
	if err != nil {
		return err
	}
	log := r.Log.WithRunID(runID)
	if err := log.AttachFile(dir.File("run.log")); err != nil {
		log.Warn("run log unavailable: %v", err)
	}
	if r.Ledger != nil {
		if err := r.Ledger.RecordStart(runID, r.Creds.User, ref.String(), sheet); err != nil {
			log.Warn("ledger start failed: %v", err)
		}
	}
	metrics.RefreshStarted.Inc()
	started := time.Now()

	s := &session{
		r:         r,
		ref:       ref,
		runID:     runID,
		timestamp: timestamp,
		dir:       dir,
		log:       log,
		visited:   map[string]bool{},
		env: &analyze.Env{
			Jira:      r.Jira,
			LLM:       r.LLM,
			Shortener: r.Shortener,
			Mailer:    r.Mailer,
			Dir:       dir,
			Log:       log,
		},
	}

	open := r.openStore
	if open == nil {
		open = openStore
	}
	st, err := open(ctx, s)
	if err != nil {
		r.finish(s, "failed: "+err.Error(), sheet)
		return err
	}
	s.store = st
	defer st.close()

	err = s.refreshSheet(ctx, sheet, r.TableFilter)
	outcome := "ok"
	if err != nil {
		outcome = "failed: " + err.Error()
		metrics.RefreshFailed.Inc()
	}
	metrics.RefreshDuration.Observe(time.Since(started).Seconds())
	r.finish(s, outcome, sheet)

	if cerr := artifacts.CleanupExpired(r.Cfg.LogsRoot, r.Cfg.ArtifactTTL); cerr != nil {
		log.Warn("artifact cleanup failed: %v", cerr)
	}
	return err
}

func (r *Runner) finish(s *session, outcome, sheet string) {
	if r.Ledger != nil {
		if err := r.Ledger.RecordFinish(s.runID, outcome); err != nil {
			s.log.Warn("ledger finish failed: %v", err)
		}
	}
	if r.Resync != nil {
		r.Resync.Record(r.Creds.User, s.runID, s.ref.String(), sheet, outcome)
	}
}

// session is the state of one run, shared with recursive sheet
// refreshes triggered by brief dependencies.
type session struct {
	r         *Runner
	ref       workbook.Ref
	runID     string
	timestamp string
	dir       *artifacts.Dir
	env       *analyze.Env
	store     store
	log       *logx.Logger
	visited   map[string]bool
}

// refreshSheet runs emit, dispatch and writeback for one sheet. Briefs
// are deferred to the end so their upstream tables exist first.
func (s *session) refreshSheet(ctx context.Context, sheet, tableFilter string) error {
	grid, err := s.store.grid(ctx, sheet)
	if err != nil {
		return err
	}
	if s.visited[grid.SheetName] {
		return nil
	}
	s.visited[grid.SheetName] = true

	blocks, err := tags.ReadBlocks(grid, tags.Options{TableFilter: tableFilter})
	if err != nil {
		return err
	}
	descriptors, emitErrs := scope.Emit(blocks, s.ref, s.timestamp)
	for _, e := range emitErrs {
		s.log.Warn("scope emission: %v", e)
	}
	for _, d := range descriptors {
		name, err := d.Save(s.dir)
		if err != nil {
			return err
		}
		s.recordArtifact(name, "scope")
	}

	var quickstarts, middle, briefs []*scope.Descriptor
	for _, d := range descriptors {
		switch d.Kind {
		case tags.KindQuickstart:
			quickstarts = append(quickstarts, d)
		case tags.KindAIBrief:
			briefs = append(briefs, d)
		default:
			middle = append(middle, d)
		}
	}

	merged := analyze.NewChangeSet(grid.SheetName)
	for _, d := range append(quickstarts, middle...) {
		s.dispatch(ctx, d, grid, merged)
	}
	for _, d := range briefs {
		if tableFilter != "" && !refsContain(d.Params.Refs, tableFilter) {
			continue
		}
		if err := s.resolveBriefDeps(ctx, d); err != nil {
			s.log.Warn("brief %s dependency refresh: %v", d.FileInfo.Table, err)
		}
		s.dispatch(ctx, d, grid, merged)
	}

	if merged.Empty() {
		s.log.Info("sheet %s: no changes", grid.SheetName)
		return nil
	}
	return s.applyWithRetry(ctx, merged)
}

// dispatch runs one scope and folds its changes into the sheet set. A
// failed scope is logged and skipped; siblings still run.
func (s *session) dispatch(ctx context.Context, d *scope.Descriptor, grid *workbook.Grid, merged *analyze.ChangeSet) {
	s.log.DebugState(d.FileInfo.ScopeFile, "analyzing")
	cs, err := s.runScope(ctx, d, grid)
	if err != nil {
		metrics.ScopesFailed.WithLabelValues(string(d.Kind)).Inc()
		s.log.DebugState(d.FileInfo.ScopeFile, "fatal", err.Error())
		s.log.Error("scope %s failed: %v", d.FileInfo.ScopeFile, err)
		return
	}
	metrics.ScopesProcessed.WithLabelValues(string(d.Kind)).Inc()
	s.log.DebugState(d.FileInfo.ScopeFile, "done")
	merged.Merge(cs)
}

// runScope invokes the analyzer, handling the two-pass chain protocol:
// chain scopes are dispatched as row scopes, then the originating
// analyzer re-enters and picks their CSVs up.
func (s *session) runScope(ctx context.Context, d *scope.Descriptor, grid *workbook.Grid) (*analyze.ChangeSet, error) {
	res, err := analyze.Run(ctx, s.env, d, grid)
	if err != nil {
		return nil, err
	}
	if len(res.ChainScopes) > 0 {
		for _, chain := range res.ChainScopes {
			if _, err := analyze.Run(ctx, s.env, chain, grid); err != nil {
				s.log.Warn("chain scope %s failed: %v", chain.FileInfo.Table, err)
			}
		}
		res, err = analyze.Run(ctx, s.env, d, grid)
		if err != nil {
			return nil, err
		}
	}
	return res.Changes, nil
}

// applyWithRetry posts the set through writeback, backing off and
// re-snapshotting on optimistic-lock conflicts. The same ChangeSet is
// retried verbatim.
func (s *session) applyWithRetry(ctx context.Context, cs *analyze.ChangeSet) error {
	for attempt := 1; ; attempt++ {
		err := s.store.apply(ctx, cs)
		if err == nil || !errors.Is(err, writeback.ErrConflictRetry) {
			return err
		}
		metrics.WritebackConflicts.Inc()
		if s.r.MaxConflictRetries > 0 && attempt >= s.r.MaxConflictRetries {
			return fmt.Errorf("gave up after %d conflict retries: %w", attempt, err)
		}
		s.log.Warn("writeback conflict on %s, retrying in %s: %v", cs.Sheet, s.r.RetryDelay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.r.RetryDelay):
		}
		if err := s.store.resnapshot(ctx); err != nil {
			return err
		}
	}
}

func (s *session) recordArtifact(name, kind string) {
	if s.r.Ledger == nil {
		return
	}
	if err := s.r.Ledger.RecordArtifact(s.runID, name, kind); err != nil {
		s.log.Warn("ledger artifact record failed: %v", err)
	}
}
