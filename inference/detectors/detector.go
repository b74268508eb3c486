// Package detectors - Open-vocabulary object detectors.
package detectors

import (
	"context"
	"image"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/providers"
	"github.com/nvr-ai/go-cec/models/postprocess"
)

// DefaultThreshold is the minimum score a detection must reach to be reported.
const DefaultThreshold = 0.1

// Detector finds objects of the queried classes in an image.
type Detector interface {
	// Detect runs the model on img for the given class names.
	//
	// Returns the raw output in model input pixel space with labels indexing
	// classes, and the model input size the output refers to.
	Detect(ctx context.Context, img image.Image, classes []string) (*postprocess.Raw, images.Size, error)
}

// Config represents configuration for an ONNX detector.
type Config struct {
	// ModelPath is the path to the exported ONNX model.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	// InputSize is the square model input the image is letterboxed into.
	InputSize images.Size `json:"input_size" yaml:"input_size"`

	// Threshold drops detections scoring below it.
	Threshold float32 `json:"threshold" yaml:"threshold"`

	// Vocabulary lists the class names the model was exported with, in label
	// order. Empty means the model labels already index the queried classes.
	Vocabulary []string `json:"vocabulary" yaml:"vocabulary"`

	// InputName is the name of the pixel input tensor.
	InputName string `json:"input_name" yaml:"input_name"`

	// OutputName is the name of the detections output tensor.
	OutputName string `json:"output_name" yaml:"output_name"`

	// Runtime configures the session.
	Runtime providers.Options `json:"runtime" yaml:"runtime"`
}

// DefaultConfig returns the detector defaults.
//
// Returns:
//   - Config: Default configuration without a model path.
//
// @example
// config := detectors.DefaultConfig()
// config.ModelPath = "owlv2.onnx"
// detector, err := detectors.NewONNXDetector(config, log)
func DefaultConfig() Config {
	return Config{
		InputSize:  images.Size{Width: 960, Height: 960},
		Threshold:  DefaultThreshold,
		InputName:  "pixel_values",
		OutputName: "detections",
		Runtime:    providers.DefaultOptions(),
	}
}
