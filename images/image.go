// Package images - Image sizes and coordinate transforms between image spaces.
package images

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// ErrInvalidSize is returned when a width or height is not positive.
var ErrInvalidSize = errors.New("invalid image size")

// Size is the pixel dimensions of an image or of a model input.
type Size struct {
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// SizeOf returns the size of an image's bounds.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// Validate reports ErrInvalidSize when either dimension is not positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.Wrapf(ErrInvalidSize, "%dx%d", s.Width, s.Height)
	}
	return nil
}

// Side returns the side of the square that holds the image once padded.
func (s Size) Side() int {
	return max(s.Width, s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LetterboxScale returns the factors that map model input pixels back to
// original image pixels.
//
// Letterbox pads the original image at the right and bottom into a square of
// side max(W, H) and resizes that square to the model input, so both factors
// divide the square's side by the matching input dimension. For a landscape
// image this reduces to W/w horizontally and H/(h*H/W) vertically.
//
// Arguments:
//   - input: The model input size.
//   - original: The original image size.
//
// Returns:
//   - float64: The horizontal scale factor.
//   - float64: The vertical scale factor.
//   - error: ErrInvalidSize when either size is not positive.
//
// @example
// sx, sy, _ := LetterboxScale(Size{960, 960}, Size{1920, 1080}) // 2, 2
func LetterboxScale(input, original Size) (float64, float64, error) {
	if err := input.Validate(); err != nil {
		return 0, 0, errors.Wrap(err, "model input")
	}
	if err := original.Validate(); err != nil {
		return 0, 0, errors.Wrap(err, "original image")
	}
	side := float64(original.Side())
	return side / float64(input.Width), side / float64(input.Height), nil
}
