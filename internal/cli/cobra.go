package cli

import (
	"errors"
	"log/slog"

	"panofuse/internal/config"
	"panofuse/internal/logging"
	"panofuse/internal/pipeline"
	"panofuse/internal/storage"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline, backends backendLister) *cobra.Command {
	return newRootCmd(NewRoot(pipe, cfg, log, store, backends))
}

func newRootCmd(root *Root) *cobra.Command {
	var debug, quiet bool

	rootCmd := &cobra.Command{
		Use:   "panofuse",
		Short: "panofuse fuses video frames into panoramas",
		Long: `panofuse registers frames with feature matching and a robust homography,
then blends them onto a growing canvas. It stitches a single video into a
panorama, or two side-by-side streams into one live view with motion boxes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug && quiet {
				return errors.New("--debug and --quiet are mutually exclusive")
			}
			switch {
			case debug:
				logging.SetLevel("debug")
			case quiet:
				logging.SetLevel("error")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "b", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")

	rootCmd.AddCommand(newVideoCmd(root))
	rootCmd.AddCommand(newDualCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// fusionFlags are shared by the sequential commands.
type fusionFlags struct {
	detector    string
	matcher     string
	estimator   string
	knn         int
	ratio       float64
	min         int
	stride      int
	maxWidth    int
	reference   string
	noSpherical bool
	display     bool
	save        bool
	savePath    string
	report      string
}

func (f *fusionFlags) bind(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	fl.StringVar(&f.detector, "detector", cfg.Features.Detector, "Feature detector (harris, sift, orb)")
	fl.StringVar(&f.matcher, "matcher", cfg.Features.Matcher, "Descriptor matcher (bruteforce, flann, bf)")
	fl.StringVar(&f.estimator, "estimator", cfg.Registration.Estimator, "Homography estimator (ransac, opencv)")
	fl.IntVarP(&f.knn, "knn", "k", cfg.Features.KNN, "Nearest neighbours per descriptor")
	fl.Float64VarP(&f.ratio, "lowe", "l", cfg.Features.Ratio, "Lowe ratio test threshold")
	fl.IntVarP(&f.min, "min", "m", cfg.Features.MinCorrespondence, "Minimum correspondences to attempt registration")
	fl.IntVar(&f.stride, "stride", cfg.Sequential.Stride, "Process every Nth frame")
	fl.IntVar(&f.maxWidth, "max-width", cfg.Sequential.MaxWidth, "Downscale frames wider than this (0 disables)")
	fl.StringVar(&f.reference, "reference", cfg.Sequential.ReferencePath, "Reference image (default: first sampled frame)")
	fl.BoolVar(&f.noSpherical, "no-spherical", !cfg.Sequential.Spherical.Enabled, "Skip the spherical pre-warp")
	fl.BoolVarP(&f.display, "display", "d", false, "Show the canvas while fusing")
	fl.BoolVarP(&f.save, "save", "s", false, "Save the final canvas")
	fl.StringVar(&f.savePath, "save_path", cfg.Sequential.SavePath, "Where --save writes the canvas")
	fl.StringVar(&f.report, "report", cfg.Paths.ReportDir, "Write registration and blend plots to this directory")
}

func (f *fusionFlags) options() map[string]any {
	return map[string]any{
		"detector":  f.detector,
		"matcher":   f.matcher,
		"estimator": f.estimator,
		"knn":       f.knn,
		"ratio":     f.ratio,
		"min":       f.min,
		"stride":    f.stride,
		"maxWidth":  f.maxWidth,
		"reference": f.reference,
		"spherical": !f.noSpherical,
		"display":   f.display,
		"save":      f.save,
		"report":    f.report,
		"source":    "cli",
	}
}

func newVideoCmd(root *Root) *cobra.Command {
	var flags fusionFlags

	cmd := &cobra.Command{
		Use:   "video <path>",
		Short: "Fuse the frames of one video into a panorama",
		Long: `Read a video file, camera index or image directory, sample every Nth frame
and blend each onto a canvas anchored at the reference frame.

Examples:
  panofuse video walk.mp4 --save
  panofuse video frames/ --stride 1 --no-spherical --save_path pano.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := pipeline.Job{
				ID:        newID("seq"),
				Type:      pipeline.JobSequential,
				InputPath: args[0],
				Output:    flags.savePath,
				Options:   flags.options(),
			}
			meta, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(meta)
			return err
		},
	}
	flags.bind(cmd, root.cfg)
	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		flags fusionFlags
		idle  string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Fuse frames as they appear in a directory",
		Long: `Watch a directory and fuse every image written to it, in arrival order.
The run ends after the idle timeout passes without a new frame, or on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options()
			opts["idle"] = idle
			job := pipeline.Job{
				ID:        newID("watch"),
				Type:      pipeline.JobWatch,
				InputPath: args[0],
				Output:    flags.savePath,
				Options:   opts,
			}
			meta, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(meta)
			return err
		},
	}
	flags.bind(cmd, root.cfg)
	cmd.Flags().StringVar(&idle, "idle", root.cfg.Sequential.IdleTimeout, "Stop after this long without a new frame")
	return cmd
}

func newDualCmd(root *Root) *cobra.Command {
	var (
		detector       string
		matcher        string
		estimator      string
		width          int
		outputVideo    string
		display        bool
		reuseTransform bool
		noMotion       bool
		noTimestamp    bool
		save           bool
		savePath       string
		report         string
	)

	cmd := &cobra.Command{
		Use:   "dual <left> <right>",
		Short: "Stitch two side-by-side streams into one view",
		Long: `Read two streams in lockstep, register the right frame onto the left one and
write the composite, with motion boxes and a timestamp, to a video.

Examples:
  panofuse dual left.mp4 right.mp4
  panofuse dual 0 1 --display --reuse-transform`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := pipeline.Job{
				ID:        newID("dual"),
				Type:      pipeline.JobDual,
				InputPath: args[0],
				Output:    savePath,
				Options: map[string]any{
					"right":          args[1],
					"detector":       detector,
					"matcher":        matcher,
					"estimator":      estimator,
					"width":          width,
					"outputVideo":    outputVideo,
					"display":        display,
					"reuseTransform": reuseTransform,
					"motion":         !noMotion,
					"timestamp":      !noTimestamp,
					"save":           save,
					"report":         report,
					"source":         "cli",
				},
			}
			meta, err := root.enqueueAndWait(cmd.Context(), job)
			printSummary(meta)
			return err
		},
	}

	cfg := root.cfg
	fl := cmd.Flags()
	fl.StringVar(&detector, "detector", cfg.Features.Detector, "Feature detector (harris, sift, orb)")
	fl.StringVar(&matcher, "matcher", cfg.Features.Matcher, "Descriptor matcher (bruteforce, flann, bf)")
	fl.StringVar(&estimator, "estimator", cfg.Registration.Estimator, "Homography estimator (ransac, opencv)")
	fl.IntVar(&width, "width", cfg.Dual.FrameWidth, "Resize both frames to this width")
	fl.StringVar(&outputVideo, "output-video", cfg.Dual.OutputVideo, "Write composites to this video when ffmpeg is available")
	fl.BoolVarP(&display, "display", "d", false, "Show composites while stitching")
	fl.BoolVar(&reuseTransform, "reuse-transform", cfg.Dual.ReuseTransform, "Register once and reuse the homography")
	fl.BoolVar(&noMotion, "no-motion", !cfg.Motion.Enabled, "Disable motion boxes")
	fl.BoolVar(&noTimestamp, "no-timestamp", !cfg.Dual.Timestamp, "Do not draw the timestamp")
	fl.BoolVarP(&save, "save", "s", false, "Save the last composite")
	fl.StringVar(&savePath, "save_path", cfg.Sequential.SavePath, "Where --save writes the composite")
	fl.StringVar(&report, "report", cfg.Paths.ReportDir, "Write registration and blend plots to this directory")
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	srvCfg := root.cfg.Server

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC health service",
		Long: `Serve run history, job submission, live frame events and the latest preview
over HTTP, and a gRPC health service on a second port.

Examples:
  panofuse serve
  panofuse serve --addr :8081 --grpc-addr ""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root.log.Info("starting server", "addr", srvCfg.Addr, "grpc_addr", srvCfg.GRPCAddr)
			return root.serveFn(cmd.Context(), srvCfg, root.store, root.pipeline, root.log)
		},
	}
	cmd.Flags().StringVar(&srvCfg.Addr, "addr", srvCfg.Addr, "HTTP listen address")
	cmd.Flags().StringVar(&srvCfg.GRPCAddr, "grpc-addr", srvCfg.GRPCAddr, "gRPC health listen address (empty disables)")
	return cmd
}

func newRunsCmd(root *Root) *cobra.Command {
	var (
		limit  int
		frames string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if frames != "" {
				return root.listFrames(frames)
			}
			return root.listRuns(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&frames, "frames", "", "Show the frame events of this run")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return root.configValidate(path)
		},
	})

	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and available backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.cmdVersion()
		},
	}
}

