package segmenters

import (
	"image"

	"github.com/nvr-ai/go-cec/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// ErrMalformedMasks is returned when mask logits do not match their shape.
var ErrMalformedMasks = errors.New("malformed mask output")

// MasksFromLogits thresholds [N, H, W] mask logits at zero and maps each mask
// from the letterboxed model space back onto the original image.
//
// Arguments:
//   - logits: The flat mask logits.
//   - shape: The logits shape; leading dimensions of size 1 are ignored.
//   - original: The original image size.
//
// Returns:
//   - []*image.Gray: N masks of the original size.
//   - error: ErrMalformedMasks for a bad shape.
func MasksFromLogits(logits []float32, shape []int64, original images.Size) ([]*image.Gray, error) {
	for len(shape) > 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 3 {
		return nil, errors.Wrapf(ErrMalformedMasks, "shape %v", shape)
	}
	n, h, w := int(shape[0]), int(shape[1]), int(shape[2])
	if n*h*w != len(logits) {
		return nil, errors.Wrapf(ErrMalformedMasks, "shape %v holds %d values, got %d",
			shape, n*h*w, len(logits))
	}
	if n == 0 {
		return []*image.Gray{}, nil
	}

	backing := make([]float32, len(logits))
	copy(backing, logits)
	t := tensor.New(tensor.WithShape(n, h, w), tensor.WithBacking(backing))
	planes, err := native.Tensor3F32(t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to view mask logits")
	}

	masks := make([]*image.Gray, 0, n)
	for _, plane := range planes {
		mask := image.NewGray(image.Rect(0, 0, w, h))
		for y, row := range plane {
			for x, v := range row {
				if v > 0 {
					mask.Pix[y*mask.Stride+x] = 255
				}
			}
		}
		scaled, err := images.ScaleMask(mask, original)
		if err != nil {
			return nil, err
		}
		masks = append(masks, scaled)
	}
	return masks, nil
}

// promptBoxes maps boxes from original image pixels into model input pixels
// as a flat [N*4] float32 slice.
func promptBoxes(boxes []images.Box, input, original images.Size) ([]float32, error) {
	sx, sy, err := images.LetterboxScale(input, original)
	if err != nil {
		return nil, err
	}
	data := make([]float32, 0, 4*len(boxes))
	for _, b := range boxes {
		data = append(data,
			float32(float64(b.X1)/sx),
			float32(float64(b.Y1)/sy),
			float32(float64(b.X2)/sx),
			float32(float64(b.Y2)/sy),
		)
	}
	return data, nil
}
