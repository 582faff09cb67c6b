package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"fiberwarp/pkg/config"
	"fiberwarp/pkg/field"
	"fiberwarp/pkg/fieldio"
	"fiberwarp/pkg/fiberio"
	"fiberwarp/pkg/warp"
)

// options collects every command-line flag. The flags are folded into an
// immutable warp.Params before processing starts; nothing re-reads them
// afterwards.
type options struct {
	fiberOutput       string
	hField            string
	displacementField string
	tensorVolume      string
	voxelize          string
	noWarp            bool
	noDataChange      bool
	countFibers       bool
	voxelLabel        int32
	voxelLabelSet     bool
	convention        string
	configPath        string
	verbose           bool
}

// Execute runs the fiberwarp CLI and returns an error if the run fails.
func Execute() error {
	opts := &options{}

	root := &cobra.Command{
		Use:          "fiberwarp <fiber-file>",
		Short:        "fiberwarp transforms DTI fiber bundles through deformation fields",
		Long: `fiberwarp warps tractography fiber bundles through a spatial deformation
field, recomputes per-point tensor statistics (FA, MD, Frobenius norm,
eigenvalues) from a tensor volume, and optionally voxelizes the fiber set
into a label volume.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if opts.verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.voxelLabelSet = cmd.Flags().Changed("voxel-label")
			return run(cmd.Context(), args[0], opts)
		},
	}

	fl := root.Flags()
	fl.StringVarP(&opts.fiberOutput, "fiber-output", "o", "", "output fiber file, warped or updated with new data depending on other options")
	fl.StringVarP(&opts.hField, "h-field", "H", "", "h-field volume for warp and statistics lookup")
	fl.StringVarP(&opts.displacementField, "displacement-field", "D", "", "displacement field volume for warp and statistics lookup")
	fl.BoolVarP(&opts.noWarp, "no-warp", "n", false, "do not warp the geometry, only obtain new statistics")
	fl.StringVarP(&opts.tensorVolume, "tensor-volume", "T", "", "interpolate tensor values from the given volume")
	fl.StringVarP(&opts.voxelize, "voxelize", "V", "", "voxelize fibers into a label volume at this path (requires --tensor-volume for the geometry)")
	fl.BoolVar(&opts.countFibers, "voxelize-count-fibers", false, "count points per voxel instead of writing a fixed label")
	fl.Int32VarP(&opts.voxelLabel, "voxel-label", "l", 1, "label for voxelized fibers")
	fl.BoolVar(&opts.noDataChange, "no-data-change", false, "copy point data through unchanged instead of resampling")
	fl.StringVar(&opts.convention, "convention", "", "coordinate convention: local-index or object-transform")
	fl.StringVar(&opts.configPath, "config", "", "YAML config file with processing defaults")
	fl.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	root.MarkFlagsMutuallyExclusive("h-field", "displacement-field")

	return root.ExecuteContext(context.Background())
}

// run executes one processing pass end to end. All inputs are read
// before processing and all outputs are written only after processing
// succeeds, so a fatal error never leaves partial outputs behind.
func run(ctx context.Context, fiberFile string, opts *options) error {
	logger := loggerFromContext(ctx)

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	params, err := buildParams(cfg, opts)
	if err != nil {
		return err
	}

	if opts.voxelize != "" && opts.tensorVolume == "" {
		return fmt.Errorf("must specify --tensor-volume to copy volume geometry for --voxelize")
	}

	logger.Debug("reading fiber bundle", "path", fiberFile)
	bundle, err := fiberio.Read(fiberFile)
	if err != nil {
		return err
	}
	logger.Info("loaded fiber bundle",
		"fibers", len(bundle.Fibers), "points", bundle.PointCount(),
		"spacing", bundle.Spacing)

	processor := warp.NewProcessor(params, logger)

	if deformation, err := readDeformation(opts, logger); err != nil {
		return err
	} else if deformation != nil {
		processor.SetDeformationField(deformation)
	}

	if opts.tensorVolume != "" {
		logger.Debug("reading tensor volume", "path", opts.tensorVolume)
		tensors, err := fieldio.ReadTensorField(opts.tensorVolume)
		if err != nil {
			return err
		}
		processor.SetTensorField(tensors)
	}

	res, err := processor.Process(bundle)
	if err != nil {
		return err
	}

	return writeOutputs(res, cfg, opts, logger)
}

// readDeformation loads whichever deformation source was requested, or
// nil when the run is geometry-preserving.
func readDeformation(opts *options, logger *charmlog.Logger) (*field.VectorField, error) {
	switch {
	case opts.hField != "":
		logger.Debug("reading h-field", "path", opts.hField)
		return fieldio.ReadDeformationField(opts.hField, fieldio.HField)
	case opts.displacementField != "":
		logger.Debug("reading displacement field", "path", opts.displacementField)
		return fieldio.ReadDeformationField(opts.displacementField, fieldio.Displacement)
	default:
		return nil, nil
	}
}

// writeOutputs serializes the fiber bundle and label volume requested on
// the command line.
func writeOutputs(res *warp.Result, cfg *config.Config, opts *options, logger *charmlog.Logger) error {
	if opts.fiberOutput != "" {
		logger.Info("writing fiber bundle", "path", opts.fiberOutput,
			"fibers", len(res.Bundle.Fibers))
		if err := fiberio.Write(opts.fiberOutput, res.Bundle); err != nil {
			return err
		}
	}

	if opts.voxelize != "" {
		logger.Info("writing label volume", "path", opts.voxelize,
			"skipped", res.VoxelsSkipped)
		if err := fieldio.WriteLabelVolume(opts.voxelize, res.Labels, cfg.Output.CompressVolumes); err != nil {
			return err
		}
	}

	return nil
}

// buildParams folds the YAML config and command-line flags into the
// immutable processing configuration. Flags win over config values.
func buildParams(cfg *config.Config, opts *options) (*warp.Params, error) {
	convName := cfg.Processing.Convention
	if opts.convention != "" {
		convName = opts.convention
	}
	conv, err := parseConvention(convName)
	if err != nil {
		return nil, err
	}

	label := cfg.Voxelize.Label
	if opts.voxelLabelSet {
		label = opts.voxelLabel
	}

	mode := warp.OverwriteLabel
	if opts.countFibers {
		mode = warp.AccumulateCount
	}

	return &warp.Params{
		Convention:   conv,
		NoWarp:       opts.noWarp,
		NoDataChange: opts.noDataChange,
		Voxelize:     opts.voxelize != "",
		WriteMode:    mode,
		VoxelLabel:   label,
		PointRadius:  cfg.Processing.PointRadius,
	}, nil
}

// parseConvention maps a convention name to its enum value.
func parseConvention(name string) (warp.Convention, error) {
	switch name {
	case "local-index":
		return warp.LocalIndex, nil
	case "object-transform", "":
		return warp.ObjectTransform, nil
	default:
		return 0, fmt.Errorf("unknown coordinate convention %q (want local-index or object-transform)", name)
	}
}
