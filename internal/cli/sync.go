package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TabSync/internal/batch"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/logging"
)

func (c *cli) syncCommand() *cobra.Command {
	var keyColumn, encoding, sheet string

	cmd := &cobra.Command{
		Use:   "sync <dataset> <file>",
		Short: "Merge one export into a dataset",
		Example: `  tabsync sync Draft ./Draft.csv
  tabsync sync "Rejected / Insufficient" export.xlsx --sheet Rejected`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]

			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			def, err := app.Registry.Lookup(name)
			if err != nil {
				return err
			}

			opts := app.BatchOptions()
			if encoding != "" {
				opts.Encoding = encoding
			}
			opts.Sheet = sheet

			b, err := batch.ReadFile(app.Fs, path, opts)
			if err != nil {
				return err
			}

			cfg := def.Config()
			if keyColumn != "" {
				cfg.KeyColumn = keyColumn
			}

			summary := app.Syncer.Sync(withCLITrigger(cmd.Context()), name, b, cfg)
			if err := c.renderSummaries(cmd.OutOrStdout(), summary, []core.SyncSummary{summary}); err != nil {
				return err
			}
			if summary.Failed() {
				return fmt.Errorf("sync %s: %w", name, summary.Err())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&keyColumn, "key-column", "", "key column for this pass")
	f.StringVar(&encoding, "encoding", "", "CSV encoding, e.g. windows-1252")
	f.StringVar(&sheet, "sheet", "", "workbook sheet to read (default first)")
	return cmd
}

func (c *cli) syncDirCommand() *cobra.Command {
	var archive bool

	cmd := &cobra.Command{
		Use:   "sync-dir [dir]",
		Short: "Sync every export in a drop directory",
		Long: `sync-dir reads each CSV or XLSX file in dir and merges it into the
dataset named by the file, e.g. Draft.csv into Draft. Datasets are synced
one at a time; a failing dataset does not stop the others.

dir defaults to BATCH_DROP_DIR.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := c.cfg.Batch.DropDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no directory given and BATCH_DROP_DIR is not set")
			}

			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			files, err := batch.ScanDir(app.Fs, dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no exports found in %s\n", dir)
				return nil
			}

			runID := uuid.New().String()
			ctx := logging.WithRunID(withCLITrigger(cmd.Context()), runID)
			opts := app.BatchOptions()

			var (
				failed  []core.SyncSummary
				batches []core.DatasetBatch
				synced  []batch.File
			)
			for _, f := range files {
				def, err := app.Registry.Lookup(f.Dataset)
				if err != nil {
					failed = append(failed, core.FailedSummary(f.Dataset, err))
					continue
				}
				b, err := batch.ReadFile(app.Fs, f.Path, opts)
				if err != nil {
					failed = append(failed, core.FailedSummary(f.Dataset, err))
					continue
				}
				batches = append(batches, core.DatasetBatch{Name: f.Dataset, Batch: b, Config: def.Config()})
				synced = append(synced, f)
			}

			results := app.Syncer.SyncAll(ctx, batches)

			// SyncAll returns one summary per batch, in order.
			if archive {
				for i, s := range results {
					if s.Failed() {
						continue
					}
					if _, err := batch.Archive(app.Fs, dir, synced[i]); err != nil {
						logging.FromContext(ctx).Warn("archive failed", "file", synced[i].Path, "error", err)
					}
				}
			}

			result := core.NewRunResult(runID, append(results, failed...))
			if err := c.renderSummaries(cmd.OutOrStdout(), result, result.Results); err != nil {
				return err
			}
			if !result.OK {
				return fmt.Errorf("%d of %d datasets failed", result.Failed, result.Total)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&archive, "archive", false, "move synced files into "+batch.ArchiveDir+"/")
	return cmd
}

// renderSummaries prints data, with summaries as the table form. Warnings
// go to stderr in table mode since structured output already carries them.
func (c *cli) renderSummaries(w io.Writer, data any, summaries []core.SyncSummary) error {
	t := table{headers: []string{"Dataset", "Result", "Source", "New", "Updated", "Skipped", "Audit", "Rows", "Took"}}
	for _, s := range summaries {
		result := string(s.Phase)
		if s.Failed() {
			msg := core.MapError(s.Err())
			result = fmt.Sprintf("failed [%s] %s", msg.Code, msg.Message)
		}
		t.rows = append(t.rows, []string{
			s.Dataset,
			result,
			string(s.Source),
			strconv.Itoa(s.New),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.AuditEntries),
			strconv.Itoa(s.Rows),
			s.Duration.Round(time.Millisecond).String(),
		})
	}

	if err := render(w, c.format, data, t); err != nil {
		return err
	}

	if c.format == FormatTable {
		for _, s := range summaries {
			for _, warning := range s.Warnings {
				fmt.Fprintf(c.opts.Err, "warning: %s: %s\n", s.Dataset, warning)
			}
		}
	}
	return nil
}
