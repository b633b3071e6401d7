package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/star/lensgo/internal/scenario"
)

func newArchiveCmd(opts *options) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived runs",
	}

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest archived run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json"); err != nil {
				return err
			}
			archive := scenario.NewArchive(dir, 0)
			rec, err := archive.LoadLatest()
			if err != nil {
				return fmt.Errorf("archive %s: %w", dir, err)
			}
			count, err := archive.Count()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				return writeJSON(out, rec)
			}
			fprintf(out, "Latest of %d archived runs in %s\n", count, dir)
			fprintf(out, "  run:            %s\n", rec.RunID)
			fprintf(out, "  computed at:    %s\n", rec.ComputedAt.Format("2006-01-02 15:04:05 MST"))
			fprintf(out, "  archived at:    %s\n", rec.ArchivedAt.Format("2006-01-02 15:04:05 MST"))
			fprintf(out, "  config:         %s\n", rec.Config)
			fprintf(out, "  magnification:  min %.6f  max %.6f\n", rec.MinMagnification, rec.MaxMagnification)
			fprintf(out, "  peak step:      %d of %d\n", rec.PeakStep, len(rec.Magnifications))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dir, "dir", "/tmp/lensgo/runs", "archive directory")
	cmd.AddCommand(latest)
	return cmd
}
