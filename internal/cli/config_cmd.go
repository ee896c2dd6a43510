package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"text/tabwriter"

	"panofuse/internal/config"
	"panofuse/internal/cvbridge"
)

const version = "v0.3.0-dev"

func (r *Root) configShow() error {
	fmt.Printf("Current configuration:\n")
	cfgPath := os.Getenv(config.EnvConfigPath)
	if cfgPath == "" {
		cfgPath = "(default) ~/.config/panofuse/config.json"
	}
	fmt.Printf("Config file: %s\n", cfgPath)

	c := r.cfg
	fmt.Printf("\nPaths:\n")
	fmt.Printf("  Database: %s\n", c.Paths.DatabasePath)
	fmt.Printf("  Default output: %s\n", c.Paths.DefaultOutput)
	fmt.Printf("  Report directory: %s\n", c.Paths.ReportDir)
	fmt.Printf("\nProcessing:\n")
	fmt.Printf("  Parallel jobs: %d\n", c.Processing.ParallelJobs)
	fmt.Printf("  Kernels: %s\n", c.Processing.Kernels)
	fmt.Printf("  Log level: %s (%s)\n", c.Logging.Level, c.Logging.Format)
	fmt.Printf("\nRegistration:\n")
	fmt.Printf("  Detector: %s (max %d)\n", c.Features.Detector, c.Features.MaxFeatures)
	fmt.Printf("  Matcher: %s, k=%d, ratio=%.2f, min=%d\n", c.Features.Matcher, c.Features.KNN, c.Features.Ratio, c.Features.MinCorrespondence)
	fmt.Printf("  Estimator: %s, threshold=%.1fpx, min inliers=%d\n", c.Registration.Estimator, c.Registration.InlierThreshold, c.Registration.MinInliers)
	fmt.Printf("\nSequential:\n")
	fmt.Printf("  Stride: %d\n", c.Sequential.Stride)
	fmt.Printf("  Max width: %d\n", c.Sequential.MaxWidth)
	fmt.Printf("  Save path: %s\n", c.Sequential.SavePath)
	if sp := c.Sequential.Spherical; sp.Enabled {
		fmt.Printf("  Spherical: f=%.0f pitch=%.0f yaw=%.0f roll=%.0f\n", sp.Focal, sp.Pitch, sp.Yaw, sp.Roll)
	} else {
		fmt.Printf("  Spherical: disabled\n")
	}
	fmt.Printf("\nDual:\n")
	fmt.Printf("  Frame width: %d\n", c.Dual.FrameWidth)
	fmt.Printf("  Output video: %s\n", c.Dual.OutputVideo)
	fmt.Printf("  Reuse transform: %t\n", c.Dual.ReuseTransform)
	fmt.Printf("  Motion boxes: %t (warm-up %d frames)\n", c.Motion.Enabled, c.Motion.WarmupFrames)
	fmt.Printf("\nServer:\n")
	fmt.Printf("  HTTP: %s\n", c.Server.Addr)
	fmt.Printf("  gRPC health: %s\n", c.Server.GRPCAddr)
	fmt.Printf("\nOutput writer: %s (quality %d)\n", c.Output.Writer, c.Output.Quality)
	return nil
}

// configValidate checks path, or the active configuration when path is empty.
func (r *Root) configValidate(path string) error {
	if path == "" {
		if err := r.cfg.Validate(); err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Printf("Configuration valid\n")
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if _, err := config.LoadFile(path); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Printf("%s: valid\n", path)
	return nil
}

func (r *Root) cmdVersion() error {
	fmt.Printf("panofuse %s\n", version)
	fmt.Printf("Built with Go %s\n", runtime.Version())
	if cvbridge.Enabled {
		fmt.Printf("OpenCV backends: enabled\n")
	} else {
		fmt.Printf("OpenCV backends: disabled (build with -tags withcv)\n")
	}
	if r.backends == nil {
		return nil
	}
	names := r.backends.Names()
	kinds := make([]string, 0, len(names))
	for k := range names {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Printf("Available backends:\n")
	for _, kind := range kinds {
		fmt.Printf("  %s: %v\n", kind, names[kind])
	}
	fmt.Printf("  display: %t\n", r.backends.HasDisplay())
	return nil
}

func (r *Root) listRuns(limit int) error {
	if r.store == nil {
		return errors.New("run history unavailable")
	}
	recs, err := r.store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("No runs recorded\n")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVARIANT\tSTATUS\tINPUT\tCREATED")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Variant, rec.Status, rec.InputPath, rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func (r *Root) listFrames(runID string) error {
	if r.store == nil {
		return errors.New("run history unavailable")
	}
	recs, err := r.store.RunFrames(runID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("No frames recorded for %s\n", runID)
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tOUTCOME\tMATCHES\tINLIERS\tBLEND MS\tCANVAS\tREASON")
	for _, f := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.1f\t%dx%d\t%s\n", f.FrameIndex, f.Outcome, f.Matches, f.Inliers, f.BlendMS, f.CanvasWidth, f.CanvasHeight, f.Reason)
	}
	return tw.Flush()
}
