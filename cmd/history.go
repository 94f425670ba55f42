package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defenseunicorns/uds-preflight-scan/internal/data/db"
	"github.com/defenseunicorns/uds-preflight-scan/internal/data/model"
	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
	"github.com/defenseunicorns/uds-preflight-scan/internal/report"
	"github.com/defenseunicorns/uds-preflight-scan/internal/sql"
)

const historyTimeLayout = "2006-01-02 15:04:05"

// openHistory connects to the configured history database and migrates it.
func openHistory(ctx context.Context, cfg sql.Config) (*db.GormRunManager, error) {
	connector, err := sql.CreateDBConnector(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}
	return db.NewGormRunManager(conn)
}

func saveHistory(ctx context.Context, cfg sql.Config, run *model.ScanRun) error {
	manager, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error opening history database: %w", err)
	}
	if err := manager.InsertRun(ctx, run); err != nil {
		return err
	}
	log.NewLogger(ctx).Info("Scan history saved", zap.Uint("run", run.ID))
	return nil
}

// newHistoryCmd creates the command that lists previous runs from the history database.
func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit     int
		runID     uint
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous scan runs stored in the history database",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.historyEnabled() {
				return fmt.Errorf("db-path or db-type %w", errRequiredFlagEmpty)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			manager, err := openHistory(ctx, opts.db)
			if err != nil {
				return fmt.Errorf("error opening history database: %w", err)
			}
			out := cmd.OutOrStdout()

			if olderThan > 0 {
				deleted, err := manager.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d runs older than %s\n", deleted, olderThan)
			}

			if runID != 0 {
				run, err := manager.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				printRunDetails(out, run)
				return nil
			}

			runs, err := manager.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Number of runs to list; 0 lists all")
	cmd.Flags().UintVar(&runID, "run", 0, "Show the image and test case results of one run")
	cmd.Flags().DurationVar(&olderThan, "prune-older-than", 0, "Delete runs started longer ago than this before listing, e.g. 720h")
	return cmd
}

func newHistoryTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.Style().Options.DoNotColorBordersAndSeparators = true
	return t
}

func printRuns(out io.Writer, runs []model.ScanRun) {
	t := newHistoryTable(out)
	t.AppendHeader(table.Row{"Run", "Started", "Mode", "Registry", "Namespace", "Images", "Failed", "Duration"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format(historyTimeLayout),
			r.Mode,
			r.FQDN,
			r.Namespace,
			r.ImageCount,
			r.FailedCount,
			report.FormatDuration(r.Elapsed),
		})
	}
	t.Render()
}

func printRunDetails(out io.Writer, run *model.ScanRun) {
	fmt.Fprintf(out, "Run %d started %s on %s (%s mode)\n",
		run.ID, run.StartedAt.Local().Format(historyTimeLayout), run.FQDN, run.Mode)
	t := newHistoryTable(out)
	t.AppendHeader(table.Row{"Image", "Verdict", "Test Case", "Status", "Error"})
	for _, img := range run.Images {
		name := img.Name + ":" + img.Tag
		if len(img.Results) == 0 {
			t.AppendRow(table.Row{name, img.Verdict, "", "", img.Error})
			continue
		}
		for _, res := range img.Results {
			t.AppendRow(table.Row{name, img.Verdict, res.TestCase, res.Status, img.Error}, table.RowConfig{AutoMerge: true})
		}
	}
	t.Render()
}
