package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TabSync/internal/batch"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/snapshot"
)

// mergeView is the structured output of merge.
type mergeView struct {
	Dataset     string            `json:"dataset" yaml:"dataset"`
	KeyColumn   string            `json:"keyColumn" yaml:"keyColumn"`
	KeyFallback bool              `json:"keyFallback" yaml:"keyFallback"`
	New         int               `json:"new" yaml:"new"`
	Updated     int               `json:"updated" yaml:"updated"`
	Skipped     int               `json:"skipped" yaml:"skipped"`
	Rows        int               `json:"rows" yaml:"rows"`
	Audit       []core.AuditEntry `json:"audit" yaml:"audit"`
	Written     string            `json:"written,omitempty" yaml:"written,omitempty"`
}

func (c *cli) mergeCommand() *cobra.Command {
	var dataset, keyColumn, metadataColumn, out string

	cmd := &cobra.Command{
		Use:   "merge <existing> <batch>",
		Short: "Preview a merge offline",
		Long: `merge reconciles batch into existing exactly as a sync pass would and
prints the counts and the audit entries it would record. Nothing is read
from or written to the store.

existing may be a CSV or XLSX file, or a snapshot JSON file. Use --write
to save the merged dataset as CSV.`,
		Example: `  tabsync merge ~/.tabsync/snapshots/Draft.json Draft.csv
  tabsync merge current.csv export.xlsx --key-column "Candidate ID" --write merged.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := c.opts.Fs
			opts := c.batchOptions()

			existing, err := readExisting(fs, args[0], opts)
			if err != nil {
				return err
			}
			b, err := batch.ReadFile(fs, args[1], opts)
			if err != nil {
				return err
			}

			if dataset == "" {
				dataset = existing.Name
			}
			cfg, err := c.mergeConfig(dataset)
			if err != nil {
				return err
			}
			if keyColumn != "" {
				cfg.KeyColumn = keyColumn
			}
			if metadataColumn != "" {
				cfg.MetadataColumn = metadataColumn
			}

			now := time.Now()
			res := core.Merge(existing, b, cfg, now)
			merged := core.StampMetadata(res.Dataset, cfg.MetadataColumn, now)

			view := mergeView{
				Dataset:     dataset,
				KeyColumn:   res.EffectiveKey,
				KeyFallback: res.KeyFallback,
				New:         res.Summary.New,
				Updated:     res.Summary.Updated,
				Skipped:     res.Summary.Skipped,
				Rows:        merged.Len(),
				Audit:       res.Audit,
			}
			if view.Audit == nil {
				view.Audit = []core.AuditEntry{}
			}

			if out != "" {
				if err := writeMerged(fs, out, merged); err != nil {
					return err
				}
				view.Written = out
			}

			if res.KeyFallback {
				fmt.Fprintf(c.opts.Err, "warning: key column %q not in batch, used %q\n", cfg.KeyColumn, res.EffectiveKey)
			}

			w := cmd.OutOrStdout()
			if c.format != FormatTable {
				return render(w, c.format, view, table{})
			}

			counts := table{
				headers: []string{"Dataset", "Key", "New", "Updated", "Skipped", "Rows"},
				rows: [][]string{{
					dataset,
					res.EffectiveKey,
					strconv.Itoa(view.New),
					strconv.Itoa(view.Updated),
					strconv.Itoa(view.Skipped),
					strconv.Itoa(view.Rows),
				}},
			}
			if err := render(w, FormatTable, nil, counts); err != nil {
				return err
			}
			if len(res.Audit) == 0 {
				return nil
			}
			fmt.Fprintln(w)
			return render(w, FormatTable, nil, auditTable(res.Audit))
		},
	}

	f := cmd.Flags()
	f.StringVar(&dataset, "dataset", "", "dataset whose registry settings apply (default: existing file name)")
	f.StringVar(&keyColumn, "key-column", "", "key column")
	f.StringVar(&metadataColumn, "metadata-column", "", "metadata column to stamp")
	f.StringVar(&out, "write", "", "write the merged dataset to this CSV file")
	return cmd
}

// mergeConfig resolves the settings of dataset: its registry definition
// when known, with the configured defaults underneath.
func (c *cli) mergeConfig(dataset string) (core.SyncConfig, error) {
	cfg := c.cfg.Sync.Defaults()

	registry, err := c.cfg.Sync.Registry(c.opts.Fs)
	if err != nil {
		return cfg, err
	}
	if def, ok := registry.Get(dataset); ok {
		if def.KeyColumn != "" {
			cfg.KeyColumn = def.KeyColumn
		}
		if def.MetadataColumn != "" {
			cfg.MetadataColumn = def.MetadataColumn
		}
	}
	return cfg, nil
}

func (c *cli) batchOptions() batch.Options {
	return batch.Options{
		Encoding: c.cfg.Batch.Encoding,
		MaxSize:  c.cfg.Batch.MaxFileSize,
	}
}

// readExisting loads the baseline of a preview from a snapshot document or
// an export file.
func readExisting(fs afero.Fs, path string, opts batch.Options) (core.Dataset, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		snap, err := snapshot.ReadFile(fs, path)
		if err != nil {
			return core.Dataset{}, err
		}
		return snap.Dataset, nil
	}

	b, err := batch.ReadFile(fs, path, opts)
	if err != nil {
		return core.Dataset{}, err
	}
	return core.NewDataset(batch.DatasetName(path), b.Columns, b.Rows), nil
}

func writeMerged(fs afero.Fs, path string, ds core.Dataset) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := batch.WriteCSV(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func auditTable(entries []core.AuditEntry) table {
	t := table{headers: []string{"Key", "Column", "Old", "New"}}
	for _, e := range entries {
		t.rows = append(t.rows, []string{e.Key, e.Column, e.OldValue, e.NewValue})
	}
	return t
}
