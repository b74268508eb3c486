package images

import (
	"image"
)

// CHW converts an image into planar float32 RGB data in [0, 1], the
// [channels, height, width] layout ONNX vision models take as input.
//
// Arguments:
//   - img: The image, already resized to the model input.
//
// Returns:
//   - []float32: 3*W*H values, red plane first.
func CHW(img image.Image) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	red := data[0:plane]
	green := data[plane : 2*plane]
	blue := data[2*plane:]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return data
}
