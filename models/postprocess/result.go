// Package postprocess - Consolidation of raw detector output into detection sets.
package postprocess

import (
	"encoding/json"
	"fmt"

	"github.com/nvr-ai/go-cec/images"
)

// Object is a single detected object in original image coordinates.
//
// Objects are values: sets hold copies, so filtering one set never changes
// another.
type Object struct {
	// The class name from the detection query.
	ClassName string
	// The index of ClassName in the query's class list.
	ClassID int
	// The confidence score in [0, 1], rounded to 3 decimals.
	Confidence float32
	// The bounding box.
	Box images.Box
}

// Center returns the midpoint of the object's box.
func (o Object) Center() [2]float64 {
	return o.Box.Center()
}

func (o Object) String() string {
	return fmt.Sprintf("%s %d with confidence %.3f at location %s",
		o.ClassName, o.ClassID, o.Confidence, o.Box)
}

type objectJSON struct {
	ClassName  string     `json:"class"`
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
	Box        images.Box `json:"box"`
	Center     [2]float64 `json:"center"`
}

// MarshalJSON encodes the object with its derived center.
func (o Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(objectJSON{
		ClassName:  o.ClassName,
		ClassID:    o.ClassID,
		Confidence: o.Confidence,
		Box:        o.Box,
		Center:     o.Center(),
	})
}

// UnmarshalJSON decodes an object. The center is derived from the box, so an
// encoded center is ignored.
func (o *Object) UnmarshalJSON(data []byte) error {
	var v objectJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Object{ClassName: v.ClassName, ClassID: v.ClassID, Confidence: v.Confidence, Box: v.Box}
	return nil
}

// Set is an ordered detection set. Order follows the raw model output and is
// only used for stable indexing while filtering.
type Set []Object

// Classes returns the distinct class names in first-appearance order.
func (s Set) Classes() []string {
	seen := make(map[string]struct{}, len(s))
	var names []string
	for _, o := range s {
		if _, ok := seen[o.ClassName]; ok {
			continue
		}
		seen[o.ClassName] = struct{}{}
		names = append(names, o.ClassName)
	}
	return names
}

// Boxes returns the boxes of every object, in order.
func (s Set) Boxes() []images.Box {
	boxes := make([]images.Box, len(s))
	for i, o := range s {
		boxes[i] = o.Box
	}
	return boxes
}

// compact returns the objects whose retained flag is set, in order.
func compact(s Set, retained []bool) Set {
	out := make(Set, 0, len(s))
	for i, o := range s {
		if retained[i] {
			out = append(out, o)
		}
	}
	return out
}

// Raw is the output of a detection model for one image, in model input pixel
// space. Boxes[i], Scores[i] and Labels[i] describe the same detection.
type Raw struct {
	// Boxes as [x1, y1, x2, y2].
	Boxes [][4]float32
	// Scores in [0, 1].
	Scores []float32
	// Labels index the class list the model was queried with.
	Labels []int
}

// Len returns the number of detections.
func (r *Raw) Len() int {
	return len(r.Boxes)
}

// Frame relates model input space to the original image.
type Frame struct {
	// Input is the model input size the raw boxes are expressed in.
	Input images.Size
	// Original is the size of the image the detections are reported in.
	Original images.Size
}
