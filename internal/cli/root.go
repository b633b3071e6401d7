// Package cli provides the lensctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/lensgo/internal/lensing"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

// Version is set at build time.
var Version = "0.1.0"

// options are the flags shared by every subcommand.
type options struct {
	verbose       bool
	format        string
	period        int
	massRatio     float64
	observerAngle float64
	preset        string
	presetsSource string

	logger *slog.Logger
}

// NewRootCmd builds the lensctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	def := simulation.DefaultConfig()

	root := &cobra.Command{
		Use:   "lensctl",
		Short: "Compute and inspect microlensing lightcurves",
		Long: `lensctl runs the lightcurve model locally: a planet on a circular orbit
around a star, seen by a fixed observer, with the star's magnification
sampled once per orbit step.

Examples:
  lensctl run --period 400 --mass-ratio 0.0001 --observer-angle 90
  lensctl run --format csv > lightcurve.csv
  lensctl events --preset reference --presets presets.yaml
  lensctl sweep --mass-ratios 0.0001,0.0005,0.001,0.002
  lensctl archive latest --dir /tmp/lensgo/runs`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging to stderr")
	pf.StringVarP(&opts.format, "format", "f", "table", "output format: table, json or csv")
	pf.IntVar(&opts.period, "period", def.OrbitalPeriod, "orbital period in steps")
	pf.Float64Var(&opts.massRatio, "mass-ratio", def.MassRatio, "planet/star mass ratio")
	pf.Float64Var(&opts.observerAngle, "observer-angle", def.ObserverAngleDeg, "observer angle in degrees")
	pf.StringVar(&opts.preset, "preset", "", "use a named preset instead of the explicit values")
	pf.StringVar(&opts.presetsSource, "presets", os.Getenv("LENSGO_PRESETS_SOURCE"), "preset file path or URL")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newPresetsCmd(opts))
	root.AddCommand(newArchiveCmd(opts))
	return root
}

// Execute runs lensctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// runConfig resolves the configuration from --preset or the explicit flags.
func (o *options) runConfig(ctx context.Context) (simulation.Config, error) {
	if o.preset == "" {
		cfg := simulation.Config{
			OrbitalPeriod:    o.period,
			MassRatio:        o.massRatio,
			ObserverAngleDeg: o.observerAngle,
		}
		return cfg, cfg.ValidateDomain()
	}

	presets, err := o.loadPresets(ctx)
	if err != nil {
		return simulation.Config{}, err
	}
	for _, p := range presets {
		if p.Name == o.preset {
			return p.Config, nil
		}
	}
	return simulation.Config{}, fmt.Errorf("%w: unknown preset %q", lensing.ErrInvalidConfiguration, o.preset)
}

func (o *options) loadPresets(ctx context.Context) ([]scenario.Preset, error) {
	if o.presetsSource == "" {
		return nil, fmt.Errorf("no preset source: pass --presets or set LENSGO_PRESETS_SOURCE")
	}
	store := scenario.NewStore()
	if _, err := scenario.LoadPresets(ctx, scenario.NewFetcher(o.presetsSource, o.logger), store, o.logger); err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	return store.Presets(), nil
}

func (o *options) checkFormat(allowed ...string) error {
	for _, f := range allowed {
		if o.format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (want one of %v)", o.format, allowed)
}

func fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
