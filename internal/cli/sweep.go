package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/star/lensgo/internal/simulation"
)

func newSweepCmd(opts *options) *cobra.Command {
	var massRatios []float64
	var workers int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one configuration across several mass ratios",
		Long: `Run the configuration once per mass ratio on a worker pool and report
each run's peak magnification and number of elevated steps.

Example:
  lensctl sweep --period 400 --mass-ratios 0.0001,0.0005,0.001,0.002`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json"); err != nil {
				return err
			}
			if len(massRatios) == 0 {
				return fmt.Errorf("--mass-ratios is required")
			}
			base, err := opts.runConfig(cmd.Context())
			if err != nil {
				return err
			}

			results := simulation.NewRunner(workers, opts.logger).Sweep(cmd.Context(), base, massRatios)
			out := cmd.OutOrStdout()
			if opts.format == "json" {
				return writeJSON(out, results)
			}

			fprintf(out, "%12s %14s %6s %9s  %s\n", "mass ratio", "peak mag", "peak", "elevated", "error")
			for _, r := range results {
				fprintf(out, "%12g %14.6f %6d %9d  %s\n",
					r.Config.MassRatio, r.PeakMagnification, r.PeakStep, r.ElevatedSteps, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&massRatios, "mass-ratios", nil, "comma-separated mass ratios")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "worker goroutines")
	return cmd
}
