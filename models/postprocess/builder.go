package postprocess

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrMalformedOutput is returned when raw output slices disagree in length.
var ErrMalformedOutput = errors.New("malformed model output")

// Builder converts raw model output into detection sets in original image
// coordinates.
type Builder struct {
	classes *models.ClassSet
	log     logrus.FieldLogger
}

// NewBuilder creates a builder for detections queried with classes.
//
// Arguments:
//   - classes: The class list the model was queried with.
//   - log: Receives one debug line per detection. Nil uses the standard logger.
//
// Returns:
//   - *Builder: The builder.
func NewBuilder(classes *models.ClassSet, log logrus.FieldLogger) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{classes: classes, log: log}
}

// Build converts every raw detection, in order, into an Object:
//   - coordinates are rounded to 2 decimals,
//   - scaled from model input space with images.LetterboxScale,
//   - truncated to integer pixels,
//   - labelled with the class name at the raw label index,
//   - scored with the confidence rounded to 3 decimals.
//
// Arguments:
//   - raw: The model output in model input pixel space.
//   - frame: The model input and original image sizes.
//
// Returns:
//   - Set: One object per raw detection, in raw order.
//   - error: ErrMalformedOutput, models.ErrUnknownClass for a label outside
//     the class list, or images.ErrInvalidSize for a bad frame.
//
// @example
//
//	set, err := postprocess.NewBuilder(classes, log).Build(raw, postprocess.Frame{
//	    Input:    images.Size{Width: 960, Height: 960},
//	    Original: images.Size{Width: 1920, Height: 1080},
//	})
func (b *Builder) Build(raw *Raw, frame Frame) (Set, error) {
	if b.classes == nil {
		return nil, errors.New("builder has no class set")
	}
	if raw == nil {
		return Set{}, nil
	}
	n := raw.Len()
	if len(raw.Scores) != n || len(raw.Labels) != n {
		return nil, errors.Wrapf(ErrMalformedOutput, "%d boxes, %d scores, %d labels",
			n, len(raw.Scores), len(raw.Labels))
	}

	sx, sy, err := images.LetterboxScale(frame.Input, frame.Original)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute letterbox scale")
	}

	set := make(Set, 0, n)
	for i := 0; i < n; i++ {
		name, err := b.classes.Name(raw.Labels[i])
		if err != nil {
			return nil, errors.Wrapf(err, "detection %d", i)
		}

		coords := raw.Boxes[i]
		obj := Object{
			ClassName:  name,
			ClassID:    raw.Labels[i],
			Confidence: roundConfidence(raw.Scores[i]),
			Box: images.Box{
				X1: scaleCoord(coords[0], sx),
				Y1: scaleCoord(coords[1], sy),
				X2: scaleCoord(coords[2], sx),
				Y2: scaleCoord(coords[3], sy),
			},
		}
		b.log.WithFields(logrus.Fields{
			"class":      obj.ClassName,
			"class_id":   obj.ClassID,
			"confidence": obj.Confidence,
			"box":        obj.Box.String(),
		}).Debug("detected object")

		set = append(set, obj)
	}
	return set, nil
}

// scaleCoord rounds v to 2 decimals, scales it and truncates toward zero.
func scaleCoord(v float32, scale float64) int {
	rounded := math.RoundToEven(float64(v)*100) / 100
	return int(rounded * scale)
}

func roundConfidence(score float32) float32 {
	return math32.Round(score*1000) / 1000
}
