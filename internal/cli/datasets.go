package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TabSync/internal/core"
)

func (c *cli) datasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the registered datasets with their resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := c.cfg.Sync.Registry(c.opts.Fs)
			if err != nil {
				return err
			}

			defaults := c.cfg.Sync.Defaults()
			defs := registry.All()
			out := make([]core.DatasetDefinition, 0, len(defs))
			t := table{headers: []string{"Dataset", "Group", "Key", "Metadata"}}
			for _, d := range defs {
				if d.KeyColumn == "" {
					d.KeyColumn = defaults.KeyColumn
				}
				if d.MetadataColumn == "" {
					d.MetadataColumn = defaults.MetadataColumn
				}
				out = append(out, d)
				t.rows = append(t.rows, []string{d.Name, d.Group, d.KeyColumn, d.MetadataColumn})
			}
			return render(cmd.OutOrStdout(), c.format, out, t)
		},
	}
}
