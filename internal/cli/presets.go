package cli

import (
	"github.com/spf13/cobra"
)

func newPresetsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the presets from --presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json"); err != nil {
				return err
			}
			presets, err := opts.loadPresets(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				return writeJSON(out, presets)
			}
			if len(presets) == 0 {
				fprintf(out, "No presets found.\n")
				return nil
			}
			fprintf(out, "Presets (%d):\n\n", len(presets))
			for _, p := range presets {
				fprintf(out, "  %-20s %s\n", p.Name, p.Config)
			}
			return nil
		},
	}
}
