package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nvr-ai/go-cec/config"
	"github.com/nvr-ai/go-cec/inference"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/nvr-ai/go-cec/store"
	"github.com/nvr-ai/go-cec/util"
	"gocv.io/x/gocv"
)

const (
	// DefaultOutputDir is the default output directory for annotated images.
	DefaultOutputDir = "detections"
	// DefaultEnvFile is loaded when present.
	DefaultEnvFile = ".env"
)

// InputType represents the type of input being processed.
type InputType int

const (
	// InputImage is a single image.
	InputImage InputType = iota
	// InputPair is an image reconciled against a check image.
	InputPair
	// InputDirectory is every image in a directory.
	InputDirectory
)

// InputConfig holds the input configuration.
type InputConfig struct {
	Type      InputType
	Path      string
	CheckPath string
}

// result is printed as one JSON line per processed image.
type result struct {
	Run     string          `json:"run,omitempty"`
	Image   string          `json:"image"`
	Check   string          `json:"check,omitempty"`
	Objects postprocess.Set `json:"objects"`
	Masks   int             `json:"masks,omitempty"`
	Output  string          `json:"output,omitempty"`
}

func main() {
	var (
		configPath string
		envFile    string
		imagePath  string
		checkPath  string
		dir        string
		classes    string
		outputDir  string
		segment    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a .json, .yaml or .yml configuration file")
	flag.StringVar(&envFile, "env", DefaultEnvFile, "Path to an optional .env file with CEC_* variables")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png, .bmp)")
	flag.StringVar(&checkPath, "check-image", "", "Path to an image of the same scene used to confirm detections")
	flag.StringVar(&dir, "dir", "", "Directory of images to process")
	flag.StringVar(&classes, "classes", "", "Comma separated class names to detect")
	flag.StringVar(&outputDir, "output-dir", DefaultOutputDir, "Output directory for annotated images")
	flag.BoolVar(&segment, "segment", false, "Segment detected objects")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", envFile, err)
	}

	cfg, err := loadConfig(configPath, classes)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := util.NewLogger(cfg.Log, nil)
	if err != nil {
		log.Fatal(err)
	}

	input, err := validateInputFlags(imagePath, checkPath, dir)
	if err != nil {
		logger.Fatal(err)
	}
	if len(cfg.Classes) == 0 {
		logger.Fatal("no classes to detect: use -classes or CEC_CLASSES")
	}

	builder := inference.NewEngineBuilder().
		WithLogger(logger).
		WithONNXDetector(cfg.DetectorConfig()).
		WithDedupe(&cfg.Dedupe).
		WithReconcile(&cfg.Reconcile)
	if segment {
		builder = builder.WithONNXSegmenter(cfg.SegmenterConfig())
	}
	engine, err := builder.Build()
	if err != nil {
		logger.WithError(err).Fatal("failed to build engine")
	}
	defer engine.Close()

	var runs *store.Store
	if cfg.Store.Path != "" {
		runs, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to open store")
		}
		defer runs.Close()
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := &processor{
		engine:    engine,
		store:     runs,
		classes:   cfg.Classes,
		outputDir: outputDir,
		segment:   segment,
		log:       logger,
		out:       json.NewEncoder(os.Stdout),
	}

	switch input.Type {
	case InputImage:
		err = p.processFile(ctx, input.Path, "")
	case InputPair:
		err = p.processFile(ctx, input.Path, input.CheckPath)
	case InputDirectory:
		err = p.processDirectory(ctx, input.Path)
	}
	if err != nil {
		logger.WithError(err).Fatal("processing failed")
	}
}

// loadConfig builds the configuration from defaults, an optional file, the
// environment and the -classes flag, in that order.
func loadConfig(path, classes string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if classes != "" {
		cfg.Classes = config.SplitList(classes)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateInputFlags validates the input flags and returns the input configuration.
func validateInputFlags(imagePath, checkPath, dir string) (*InputConfig, error) {
	if imagePath != "" && dir != "" {
		return nil, fmt.Errorf("cannot specify both -image and -dir")
	}
	if checkPath != "" && imagePath == "" {
		return nil, fmt.Errorf("-check-image requires -image")
	}

	switch {
	case dir != "":
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("directory validation error: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", dir)
		}
		return &InputConfig{Type: InputDirectory, Path: dir}, nil

	case imagePath != "":
		if err := validateFile(imagePath); err != nil {
			return nil, fmt.Errorf("image validation error: %w", err)
		}
		if checkPath == "" {
			return &InputConfig{Type: InputImage, Path: imagePath}, nil
		}
		if err := validateFile(checkPath); err != nil {
			return nil, fmt.Errorf("check image validation error: %w", err)
		}
		return &InputConfig{Type: InputPair, Path: imagePath, CheckPath: checkPath}, nil
	}

	return nil, fmt.Errorf("one of -image or -dir is required")
}

// validateFile checks if the file exists and has a supported extension.
func validateFile(filePath string) error {
	if _, err := os.Stat(filePath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file not found: %s", filePath)
	}
	if !util.IsImageFile(filePath) {
		return fmt.Errorf("unsupported file extension: %s", strings.ToLower(filepath.Ext(filePath)))
	}
	return nil
}

// readImage decodes an image file into a Mat and its image.Image view.
func readImage(path string) (gocv.Mat, image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, nil, fmt.Errorf("error reading image: %s", path)
	}
	img, err := mat.ToImage()
	if err != nil {
		mat.Close()
		return gocv.Mat{}, nil, fmt.Errorf("error converting image %s: %w", path, err)
	}
	return mat, img, nil
}
