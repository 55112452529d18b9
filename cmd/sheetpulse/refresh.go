package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/config"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/runner"
	"sheetpulse/pkg/workbook"
)

func newRefreshCmd() *cobra.Command {
	var sheet, table string

	cmd := &cobra.Command{
		Use:   "refresh <workbook-ref>",
		Short: "Refresh one workbook's tagged dashboards",
		Long: `Refresh discovers tag blocks on the selected sheet, fills them from
Jira and the configured LLM, and writes the changes back. The reference
may be a local .xlsx path, a SharePoint URL, or gsheet:<documentId>,
each with an optional #Sheet fragment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := workbook.Parse(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			creds := config.CredentialsFromConfig(cfg, runUser(), false)
			log := logx.NewLogger("cli")
			defer log.Close()

			r, err := runner.New(cfg, creds, log)
			if err != nil {
				return err
			}
			r.TableFilter = table
			ledger, err := artifacts.OpenLedger(filepath.Join(cfg.LogsRoot, "sheetpulse.db"))
			if err != nil {
				log.Warn("run ledger unavailable: %v", err)
			} else {
				r.Ledger = ledger
				defer ledger.Close()
			}
			r.Resync = logx.NewResyncLog(filepath.Join(cfg.LogsRoot, "resync.log"))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr := metricsAddr(); addr != "" {
				srv := serveMetrics(addr, log)
				defer shutdownMetrics(srv)
			}

			return r.Refresh(ctx, ref, sheet)
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet selector (default: reference fragment, or first sheet)")
	cmd.Flags().StringVar(&table, "table", "", "only run briefs referencing this table")
	return cmd
}

func serveMetrics(addr string, log *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server: %v", err)
		}
	}()
	log.Info("serving metrics on %s", addr)
	return srv
}

func shutdownMetrics(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Println("metrics shutdown:", err)
	}
}
