package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/snapshot"
)

var errSnapshotsDisabled = errors.New("snapshots are disabled")

// snapshotView is the structured output of "snapshot <dataset>".
type snapshotView struct {
	Dataset   string     `json:"dataset" yaml:"dataset"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
	Columns   []string   `json:"columns" yaml:"columns"`
	RowCount  int        `json:"rowCount" yaml:"rowCount"`
	Rows      []core.Row `json:"rows,omitempty" yaml:"rows,omitempty"`
}

func (c *cli) snapshotCommand() *cobra.Command {
	var showRows, remove bool

	cmd := &cobra.Command{
		Use:   "snapshot [dataset]",
		Short: "Inspect or delete local snapshots",
		Long: `With no argument, snapshot lists the datasets that have a local
snapshot. With a dataset it shows when the snapshot was taken and its
shape; --rows prints the rows too. --delete removes the snapshot so the
next pass that cannot read the remote starts from an empty baseline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.snapshots()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if remove {
					return fmt.Errorf("--delete needs a dataset")
				}
				names, err := store.List()
				if err != nil {
					return err
				}
				t := table{headers: []string{"Dataset"}}
				for _, n := range names {
					t.rows = append(t.rows, []string{n})
				}
				if names == nil {
					names = []string{}
				}
				return render(cmd.OutOrStdout(), c.format, names, t)
			}

			name := args[0]
			if remove {
				if err := store.Delete(name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "deleted snapshot %q\n", name)
				return nil
			}

			snap, ok, err := store.Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no snapshot for dataset %q", name)
			}

			view := snapshotView{
				Dataset:   name,
				Timestamp: snap.TakenAt,
				Columns:   snap.Dataset.Columns,
				RowCount:  snap.Dataset.Len(),
			}
			if showRows {
				view.Rows = snap.Dataset.Rows
				return render(cmd.OutOrStdout(), c.format, view, rowsTable(snap.Dataset))
			}

			t := table{
				headers: []string{"Dataset", "Taken", "Columns", "Rows"},
				rows: [][]string{{
					name,
					snap.TakenAt.Format(time.RFC3339),
					strconv.Itoa(len(snap.Dataset.Columns)),
					strconv.Itoa(snap.Dataset.Len()),
				}},
			}
			return render(cmd.OutOrStdout(), c.format, view, t)
		},
	}

	cmd.Flags().BoolVar(&showRows, "rows", false, "print every row")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the snapshot")
	return cmd
}

// snapshots opens the snapshot directory without connecting to the store.
func (c *cli) snapshots() (*snapshot.Store, error) {
	if c.cfg.Snapshot.Disabled {
		return nil, errSnapshotsDisabled
	}
	dir, err := snapshot.ExpandDir(c.cfg.Snapshot.Dir)
	if err != nil {
		return nil, err
	}
	return snapshot.New(c.opts.Fs, dir)
}

// rowsTable lays out a dataset with its own header.
func rowsTable(ds core.Dataset) table {
	t := table{headers: ds.Columns}
	for _, r := range ds.Rows {
		t.rows = append(t.rows, r.Values(ds.Columns))
	}
	return t
}
