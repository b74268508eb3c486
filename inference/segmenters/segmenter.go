// Package segmenters - Box prompted instance segmentation.
package segmenters

import (
	"context"
	"image"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/providers"
)

// Segmenter produces one binary mask per box.
type Segmenter interface {
	// Segment returns a mask for each box, in box order. Masks have the size of
	// img and hold 255 inside the object and 0 elsewhere. Zero boxes return an
	// empty result without running the model.
	Segment(ctx context.Context, img image.Image, boxes []images.Box) ([]*image.Gray, error)
}

// Config represents configuration for an ONNX segmenter.
type Config struct {
	// ModelPath is the path to the exported ONNX model. Empty disables
	// segmentation.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	// InputSize is the square model input the image is letterboxed into.
	InputSize images.Size `json:"input_size" yaml:"input_size"`

	// ImageInput is the name of the pixel input tensor.
	ImageInput string `json:"image_input" yaml:"image_input"`

	// BoxesInput is the name of the [1, N, 4] box prompt tensor.
	BoxesInput string `json:"boxes_input" yaml:"boxes_input"`

	// MasksOutput is the name of the [N, H, W] mask logits tensor.
	MasksOutput string `json:"masks_output" yaml:"masks_output"`

	// Runtime configures the session.
	Runtime providers.Options `json:"runtime" yaml:"runtime"`
}

// DefaultConfig returns the segmenter defaults with segmentation disabled.
func DefaultConfig() Config {
	return Config{
		InputSize:   images.Size{Width: 1024, Height: 1024},
		ImageInput:  "pixel_values",
		BoxesInput:  "input_boxes",
		MasksOutput: "pred_masks",
		Runtime:     providers.DefaultOptions(),
	}
}
