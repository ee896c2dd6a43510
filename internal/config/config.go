package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

const (
	defaultConfigPath = "~/.config/panofuse/config.json"
	defaultParallel   = 2

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "PANOFUSE_CONFIG"
)

// Config holds user-editable settings for the stitcher.
type Config struct {
	Processing   Processing   `json:"processing"`
	Logging      Logging      `json:"logging"`
	Paths        Paths        `json:"paths"`
	Features     Features     `json:"features"`
	Registration Registration `json:"registration"`
	Sequential   Sequential   `json:"sequential"`
	Dual         Dual         `json:"dual"`
	Compositor   Compositor   `json:"compositor"`
	Motion       Motion       `json:"motion"`
	Server       Server       `json:"server"`
	Output       Output       `json:"output"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int    `json:"parallel_jobs" validate:"min=1,max=64"`
	TempDir      string `json:"temp_dir"`
	Kernels      string `json:"kernels" validate:"oneof=auto native opencv"` // warp, blur and motion stages
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" validate:"oneof=debug info warn warning error"`
	Format     string `json:"format" validate:"oneof=text json"`
	FileOutput bool   `json:"file_output"`
	LogDir     string `json:"log_dir"`
	MaxSize    int    `json:"max_size" validate:"min=0"`    // MB before rotation
	MaxBackups int    `json:"max_backups" validate:"min=0"` // rotated files kept
	MaxAge     int    `json:"max_age" validate:"min=0"`     // days
	Compress   bool   `json:"compress"`
}

// Paths configures default locations.
type Paths struct {
	DefaultOutput string `json:"default_output"`
	DatabasePath  string `json:"database_path"`
	ReportDir     string `json:"report_dir"`
}

// Features selects detection and matching.
type Features struct {
	Detector          string  `json:"detector" validate:"required,oneof=auto harris sift orb"`
	Matcher           string  `json:"matcher" validate:"required,oneof=auto bruteforce flann bf"`
	MaxFeatures       int     `json:"max_features" validate:"min=0"`
	KNN               int     `json:"knn" validate:"min=2,max=16"`
	Ratio             float64 `json:"ratio" validate:"gt=0,lte=1"`
	MinCorrespondence int     `json:"min_correspondence" validate:"min=4"`
}

// Registration controls robust homography estimation.
type Registration struct {
	Estimator       string  `json:"estimator" validate:"required,oneof=auto ransac opencv"`
	InlierThreshold float64 `json:"inlier_threshold" validate:"gt=0"`
	MinInliers      int     `json:"min_inliers" validate:"min=4"`
	MaxIterations   int     `json:"max_iterations" validate:"min=1"`
	Confidence      float64 `json:"confidence" validate:"gt=0,lt=1"`
	Seed            int64   `json:"seed"`
}

// Spherical configures the sequential pre-warp. Angles are in degrees.
type Spherical struct {
	Enabled bool    `json:"enabled"`
	Focal   float64 `json:"focal" validate:"gt=0"`
	Pitch   float64 `json:"pitch"`
	Yaw     float64 `json:"yaw"`
	Roll    float64 `json:"roll"`
}

// Sequential configures single-source fusion.
type Sequential struct {
	Stride        int       `json:"stride" validate:"min=1"`
	MaxWidth      int       `json:"max_width" validate:"min=0"`
	ReferencePath string    `json:"reference_path"`
	SavePath      string    `json:"save_path"`
	Spherical     Spherical `json:"spherical"`
	IdleTimeout   string    `json:"idle_timeout"`
}

// Dual configures two-stream stitching.
type Dual struct {
	FrameWidth     int     `json:"frame_width" validate:"min=16"`
	ReuseTransform bool    `json:"reuse_transform"`
	Timestamp      bool    `json:"timestamp"`
	OutputVideo    string  `json:"output_video"`
	VideoFPS       float64 `json:"video_fps" validate:"min=0"`
}

// Compositor tunes blending.
type Compositor struct {
	SeamWidth       int `json:"seam_width" validate:"min=0"`
	MaxCanvasPixels int `json:"max_canvas_pixels" validate:"min=0"`
	MaxWarpPixels   int `json:"max_warp_pixels" validate:"min=0"`
}

// Motion tunes the overlay tracker.
type Motion struct {
	Enabled          bool    `json:"enabled"`
	WarmupFrames     int     `json:"warmup_frames" validate:"min=0"`
	AccumWeight      float64 `json:"accum_weight" validate:"gt=0,lte=1"`
	DeltaThreshold   int     `json:"delta_threshold" validate:"min=0,max=255"`
	MinArea          int     `json:"min_area" validate:"min=0"`
	BlurKernel       int     `json:"blur_kernel" validate:"min=0"`
	DilateIterations int     `json:"dilate_iterations" validate:"min=0"`
}

// Server configures the service surface.
type Server struct {
	Addr     string `json:"addr"`
	GRPCAddr string `json:"grpc_addr"`
}

// Output selects how final images are written.
type Output struct {
	Writer  string `json:"writer" validate:"oneof=native imagick"`
	Quality int    `json:"quality" validate:"min=1,max=100"`
}

// Path returns the config file location honouring PANOFUSE_CONFIG.
func Path() (string, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return expandUser(configPath)
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	expanded, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(expanded)
}

// LoadFile decodes path over the defaults and validates the result. A
// missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
			TempDir:      os.TempDir(),
			Kernels:      "auto",
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Paths: Paths{
			DefaultOutput: "./output",
			DatabasePath:  filepath.Join(os.TempDir(), "panofuse.db"),
			ReportDir:     "",
		},
		Features: Features{
			Detector:          "harris",
			Matcher:           "bruteforce",
			MaxFeatures:       1500,
			KNN:               2,
			Ratio:             0.7,
			MinCorrespondence: 10,
		},
		Registration: Registration{
			Estimator:       "ransac",
			InlierThreshold: 5.0,
			MinInliers:      8,
			MaxIterations:   2000,
			Confidence:      0.995,
			Seed:            1,
		},
		Sequential: Sequential{
			Stride:   4,
			MaxWidth: 720,
			SavePath: "stitched.png",
			Spherical: Spherical{
				Enabled: true,
				Focal:   950,
				Pitch:   0,
				Yaw:     45,
				Roll:    45,
			},
			IdleTimeout: "30s",
		},
		Dual: Dual{
			FrameWidth:  400,
			Timestamp:   true,
			OutputVideo: "stResult.mp4",
		},
		Compositor: Compositor{
			SeamWidth:       16,
			MaxCanvasPixels: 256 << 20,
			MaxWarpPixels:   64 << 20,
		},
		Motion: Motion{
			Enabled:          true,
			WarmupFrames:     32,
			AccumWeight:      0.5,
			DeltaThreshold:   5,
			MinArea:          500,
			BlurKernel:       21,
			DilateIterations: 2,
		},
		Server: Server{
			Addr:     ":8080",
			GRPCAddr: ":9090",
		},
		Output: Output{
			Writer:  "native",
			Quality: 90,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
