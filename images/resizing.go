package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Letterbox pads img at the right and bottom into a square of side max(W, H)
// filled with fill, then resizes the square to the model input size.
//
// Coordinates produced by a model on the letterboxed image map back to the
// original image with LetterboxScale.
//
// Arguments:
//   - img: The original image.
//   - input: The model input size.
//   - fill: The padding color. Nil pads with black.
//
// Returns:
//   - image.Image: The model-sized image.
//   - error: ErrInvalidSize when img or input has no area.
func Letterbox(img image.Image, input Size, fill color.Color) (image.Image, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, "model input")
	}
	original := SizeOf(img)
	if err := original.Validate(); err != nil {
		return nil, errors.Wrap(err, "original image")
	}
	if fill == nil {
		fill = color.Black
	}

	side := original.Side()
	square := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(square, square.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	draw.Draw(square, image.Rect(0, 0, original.Width, original.Height), img, img.Bounds().Min, draw.Src)

	return resize.Resize(uint(input.Width), uint(input.Height), square, resize.Bilinear), nil
}

// ScaleMask maps a binary mask produced on the letterboxed model input back
// onto the original image: the mask is stretched to the padded square with
// nearest-neighbour sampling, so values stay 0 or 255, and the padding is
// cropped away.
//
// Arguments:
//   - mask: The mask in model input space.
//   - original: The original image size.
//
// Returns:
//   - *image.Gray: The mask with the original image's width and height.
//   - error: ErrInvalidSize when original has no area.
func ScaleMask(mask *image.Gray, original Size) (*image.Gray, error) {
	if err := original.Validate(); err != nil {
		return nil, errors.Wrap(err, "original image")
	}
	side := uint(original.Side())
	scaled := resize.Resize(side, side, mask, resize.NearestNeighbor)

	out := image.NewGray(image.Rect(0, 0, original.Width, original.Height))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out, nil
}
