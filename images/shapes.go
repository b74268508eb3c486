// Package images - Geometry and image utilities for detection post-processing.
package images

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// Point is a pixel coordinate with a top-left origin, x rightward and y downward.
type Point struct {
	X, Y int
}

// Box is an axis-aligned rectangle given by two corner points, [[X1,Y1],[X2,Y2]],
// in image pixel coordinates.
//
// Boxes built from raw model output are not normalized, so X1 <= X2 and Y1 <= Y2
// are not guaranteed. OverlapProportion treats inverted boxes as non-overlapping.
type Box struct {
	X1, Y1, X2, Y2 int
}

// NewBox creates a box from its two corner points.
//
// Arguments:
//   - p1: The top-left corner.
//   - p2: The bottom-right corner.
//
// Returns:
//   - Box: The box spanning both corners.
func NewBox(p1, p2 Point) Box {
	return Box{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}
}

// Min returns the first corner.
func (b Box) Min() Point { return Point{X: b.X1, Y: b.Y1} }

// Max returns the second corner.
func (b Box) Max() Point { return Point{X: b.X2, Y: b.Y2} }

// Width returns X2-X1. It is negative for an inverted box.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1. It is negative for an inverted box.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area returns Width*Height without normalizing the corners.
func (b Box) Area() int { return b.Width() * b.Height() }

// Center returns the midpoint of the two corners.
//
// Returns:
//   - [2]float64: The center as [x, y].
//
// @example
// Box{X1: 0, Y1: 0, X2: 5, Y2: 10}.Center() // [2.5, 5]
func (b Box) Center() [2]float64 {
	return [2]float64{
		float64(b.X1+b.X2) / 2,
		float64(b.Y1+b.Y2) / 2,
	}
}

// Corners returns the box as the corner pair [[x1,y1],[x2,y2]].
func (b Box) Corners() [2][2]int {
	return [2][2]int{{b.X1, b.Y1}, {b.X2, b.Y2}}
}

// Rectangle converts the box to a canonical image.Rectangle for drawing.
func (b Box) Rectangle() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) String() string {
	return fmt.Sprintf("[[%d, %d], [%d, %d]]", b.X1, b.Y1, b.X2, b.Y2)
}

// MarshalJSON encodes the box as its corner pair.
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Corners())
}

// UnmarshalJSON decodes a corner pair [[x1,y1],[x2,y2]].
func (b *Box) UnmarshalJSON(data []byte) error {
	var corners [][]int
	if err := json.Unmarshal(data, &corners); err != nil {
		return errors.Wrap(err, "box must be a corner pair")
	}
	if len(corners) != 2 || len(corners[0]) != 2 || len(corners[1]) != 2 {
		return errors.Errorf("box must be [[x1,y1],[x2,y2]], got %s", string(data))
	}
	*b = Box{X1: corners[0][0], Y1: corners[0][1], X2: corners[1][0], Y2: corners[1][1]}
	return nil
}

// OverlapProportion returns the intersection-over-union of two boxes, a value
// in [0, 1] measuring how much they cover the same area.
//
// The intersection rectangle takes the larger of the top-left corners and the
// smaller of the bottom-right corners. When its right edge falls left of its
// left edge, or its bottom above its top, the boxes do not overlap and 0 is
// returned without dividing. Touching edges give a zero-area intersection and
// therefore 0.
//
// The union follows inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// A union that is not positive only happens with zero-area (or inverted)
// boxes; the result is then 0, so a degenerate box never overlaps anything,
// not even itself.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float64: The overlap proportion in [0, 1].
//
// Example Usage:
// ```go
//
//	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Box{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	OverlapProportion(a, b) // 25 / (100 + 100 - 25) ≈ 0.1429
//
// ```
func OverlapProportion(a, b Box) float64 {
	xLeft := max(a.X1, b.X1)
	yTop := max(a.Y1, b.Y1)
	xRight := min(a.X2, b.X2)
	yBottom := min(a.Y2, b.Y2)

	if xRight < xLeft || yBottom < yTop {
		return 0.0
	}

	intersection := (xRight - xLeft) * (yBottom - yTop)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0.0
	}

	overlap := float64(intersection) / float64(union)
	if overlap < 0 {
		return 0.0
	}
	if overlap > 1 {
		return 1.0
	}
	return overlap
}
