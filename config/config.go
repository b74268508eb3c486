// Package config - Configuration for the detection pipeline.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-cec/inference/detectors"
	"github.com/nvr-ai/go-cec/inference/providers"
	"github.com/nvr-ai/go-cec/inference/segmenters"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/nvr-ai/go-cec/util"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CEC_"

// maxFileSize bounds configuration files.
const maxFileSize = 1 << 20

// RuntimeConfig holds ONNX Runtime settings shared by all models.
type RuntimeConfig struct {
	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	providers.Options `yaml:",inline"`
}

// StoreConfig configures persistence of detection runs.
type StoreConfig struct {
	// Path is the sqlite database file. Empty disables the store.
	Path string `json:"path" yaml:"path"`
}

// Config is the root configuration.
type Config struct {
	Runtime   RuntimeConfig               `json:"runtime"   yaml:"runtime"`
	Detector  detectors.Config            `json:"detector"  yaml:"detector"`
	Segmenter segmenters.Config           `json:"segmenter" yaml:"segmenter"`
	Dedupe    postprocess.DedupeConfig    `json:"dedupe"    yaml:"dedupe"`
	Reconcile postprocess.ReconcileConfig `json:"reconcile" yaml:"reconcile"`
	Classes   []string                    `json:"classes"   yaml:"classes"`
	Store     StoreConfig                 `json:"store"     yaml:"store"`
	Log       util.LogConfig              `json:"log"       yaml:"log"`
}

// Default returns the default configuration. Models, classes and the store
// are left unset.
func Default() *Config {
	return &Config{
		Runtime:   RuntimeConfig{Options: providers.DefaultOptions()},
		Detector:  detectors.DefaultConfig(),
		Segmenter: segmenters.DefaultConfig(),
		Dedupe:    *postprocess.DefaultDedupeConfig(),
		Reconcile: *postprocess.DefaultReconcileConfig(),
		Log:       util.DefaultLogConfig(),
	}
}

// Load reads a JSON or YAML file, chosen by extension, over the defaults.
// Fields omitted from the file keep their default values.
//
// Arguments:
//   - path: The file path ending in .json, .yaml or .yml.
//
// Returns:
//   - *Config: The configuration.
//   - error: An error if the file cannot be read or parsed.
//
// @example
// cfg, err := config.Load("cec.yaml")
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if info.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, errors.Errorf("config file must be .json, .yaml or .yml, got %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", cleanPath)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CEC_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	float := func(name string, dst *float64) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, name)
		}
		*dst = f
		return nil
	}

	str("ORT_LIBRARY", &c.Runtime.LibraryPath)
	str("DETECTOR_MODEL", &c.Detector.ModelPath)
	str("SEGMENTER_MODEL", &c.Segmenter.ModelPath)
	str("STORE_PATH", &c.Store.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "DEVICE"); ok {
		device, err := providers.ParseDevice(v)
		if err != nil {
			return errors.Wrapf(err, "%sDEVICE", EnvPrefix)
		}
		c.Runtime.Device = device
	}
	if v, ok := lookup(EnvPrefix + "CLASSES"); ok {
		c.Classes = SplitList(v)
	}
	if v, ok := lookup(EnvPrefix + "RECONCILE_CLASSES"); ok {
		c.Reconcile.Classes = SplitList(v)
	}
	if err := float("DEDUPE_THRESHOLD", &c.Dedupe.OverlapThreshold); err != nil {
		return err
	}
	if err := float("RECONCILE_THRESHOLD", &c.Reconcile.OverlapThreshold); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "DETECTION_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return errors.Wrapf(err, "%sDETECTION_THRESHOLD", EnvPrefix)
		}
		c.Detector.Threshold = float32(f)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if _, err := providers.ParseDevice(string(c.Runtime.Device)); err != nil {
		return errors.Wrap(err, "runtime.device")
	}
	if err := unit("dedupe.overlap_threshold", c.Dedupe.OverlapThreshold); err != nil {
		return err
	}
	if err := unit("reconcile.overlap_threshold", c.Reconcile.OverlapThreshold); err != nil {
		return err
	}
	if err := unit("detector.threshold", float64(c.Detector.Threshold)); err != nil {
		return err
	}
	if err := c.Detector.InputSize.Validate(); err != nil {
		return errors.Wrap(err, "detector.input_size")
	}
	if c.Segmenter.ModelPath != "" {
		if err := c.Segmenter.InputSize.Validate(); err != nil {
			return errors.Wrap(err, "segmenter.input_size")
		}
	}
	for i, name := range c.Classes {
		if strings.TrimSpace(name) == "" {
			return errors.Errorf("classes[%d] is empty", i)
		}
	}
	return nil
}

// DetectorConfig returns the detector configuration with the shared runtime
// settings applied.
func (c *Config) DetectorConfig() detectors.Config {
	d := c.Detector
	if d.LibraryPath == "" {
		d.LibraryPath = c.Runtime.LibraryPath
	}
	d.Runtime = c.Runtime.Options
	return d
}

// SegmenterConfig returns the segmenter configuration with the shared runtime
// settings applied.
func (c *Config) SegmenterConfig() segmenters.Config {
	s := c.Segmenter
	if s.LibraryPath == "" {
		s.LibraryPath = c.Runtime.LibraryPath
	}
	s.Runtime = c.Runtime.Options
	return s
}

// SplitList splits a comma separated list, dropping blank items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return errors.Errorf("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}
