package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/star/lensgo/internal/events"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

func newRunCmd(opts *options) *cobra.Command {
	var archiveDir string
	var archiveMax int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute one lightcurve",
		Long: `Compute one lightcurve and print a summary (table), every sample (csv)
or the full run record (json).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json", "csv"); err != nil {
				return err
			}
			cfg, err := opts.runConfig(cmd.Context())
			if err != nil {
				return err
			}

			runner := simulation.NewRunner(1, opts.logger)
			lc, err := runner.Run(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			if archiveDir != "" {
				if err := scenario.NewArchive(archiveDir, archiveMax).Write(lc); err != nil {
					return fmt.Errorf("archive run: %w", err)
				}
				opts.logger.Info("run archived", "dir", archiveDir, "run_id", lc.RunID)
			}

			out := cmd.OutOrStdout()
			switch opts.format {
			case "json":
				return writeJSON(out, scenario.NewRecord(lc))
			case "csv":
				return writeSamplesCSV(out, lc)
			default:
				printSummary(out, lc)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&archiveDir, "archive-dir", "", "also write the run to this archive directory")
	cmd.Flags().IntVar(&archiveMax, "archive-max", 5, "runs to keep in the archive directory")
	return cmd
}

func printSummary(w io.Writer, lc *simulation.Lightcurve) {
	lo, hi := lc.AxisRange()
	elevated := 0
	for _, m := range lc.Magnifications {
		if m > 1 {
			elevated++
		}
	}

	fprintf(w, "Run %s\n", lc.RunID)
	fprintf(w, "  period:          %d steps\n", lc.Config.OrbitalPeriod)
	fprintf(w, "  mass ratio:      %g\n", lc.Config.MassRatio)
	fprintf(w, "  observer angle:  %g°\n", lc.Config.ObserverAngleDeg)
	fprintf(w, "  observer:        (%.3f, %.3f)\n", lc.Scene.Observer.X, lc.Scene.Observer.Y)
	fprintf(w, "  magnification:   min %.6f  max %.6f  ceiling %.6f\n", lc.MinMagnification, lc.MaxMagnification, lc.Ceiling)
	fprintf(w, "  einstein radius: %.4f\n", lc.EinsteinRadius)
	fprintf(w, "  peak step:       %d at (%.3f, %.3f)\n", lc.PeakStep, lc.Positions[lc.PeakStep].X, lc.Positions[lc.PeakStep].Y)
	fprintf(w, "  elevated steps:  %d\n", elevated)
	fprintf(w, "  axis range:      [%.4f, %.4f]\n", lo, hi)
	fprintf(w, "  events:          %d\n", len(events.Detect(lc, events.DefaultThreshold)))
}

func writeSamplesCSV(w io.Writer, lc *simulation.Lightcurve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "x", "y", "magnification"}); err != nil {
		return err
	}
	for _, s := range lc.Samples() {
		p := lc.Positions[s.Step]
		rec := []string{
			strconv.Itoa(s.Step),
			strconv.FormatFloat(p.X, 'f', 6, 64),
			strconv.FormatFloat(p.Y, 'f', 6, 64),
			strconv.FormatFloat(s.Magnification, 'f', 9, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEventsCmd(opts *options) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Detect magnification events in a lightcurve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.checkFormat("table", "json"); err != nil {
				return err
			}
			cfg, err := opts.runConfig(cmd.Context())
			if err != nil {
				return err
			}
			lc, err := simulation.NewRunner(1, opts.logger).Run(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			evs := events.Detect(lc, threshold)
			out := cmd.OutOrStdout()
			if opts.format == "json" {
				if evs == nil {
					evs = []events.Event{}
				}
				return writeJSON(out, evs)
			}

			if len(evs) == 0 {
				fprintf(out, "No events (%s).\n", cfg)
				return nil
			}
			fprintf(out, "Events (%d) for %s:\n\n", len(evs), cfg)
			fprintf(out, "%6s %6s %6s %8s %12s %9s %9s\n", "start", "peak", "end", "steps", "peak mag", "angle", "asym")
			for _, ev := range evs {
				fprintf(out, "%6d %6d %6d %8d %12.6f %9.2f %9.3f\n",
					ev.StartStep, ev.PeakStep, ev.EndStep, ev.DurationSteps, ev.PeakMagnification, ev.PeakAngleDeg, ev.Asymmetry)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", events.DefaultThreshold, "excess over 1.0 that counts as elevated")
	return cmd
}
