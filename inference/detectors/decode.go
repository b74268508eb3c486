package detectors

import (
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// rowSize is the number of values per detection: x1, y1, x2, y2, score, label.
const rowSize = 6

// DecodeRows converts a flat detections output of rows
// [x1, y1, x2, y2, score, label] into raw detections, dropping rows that
// score below threshold. Row order is preserved.
//
// Arguments:
//   - output: The flat model output.
//   - threshold: The minimum score.
//
// Returns:
//   - *postprocess.Raw: The kept rows.
//   - error: postprocess.ErrMalformedOutput when output is not whole rows or a
//     label is negative.
func DecodeRows(output []float32, threshold float32) (*postprocess.Raw, error) {
	if len(output)%rowSize != 0 {
		return nil, errors.Wrapf(postprocess.ErrMalformedOutput,
			"%d values is not a multiple of %d", len(output), rowSize)
	}
	raw := &postprocess.Raw{}
	if len(output) == 0 {
		return raw, nil
	}

	backing := make([]float32, len(output))
	copy(backing, output)
	t := tensor.New(tensor.WithShape(len(output)/rowSize, rowSize), tensor.WithBacking(backing))
	rows, err := native.MatrixF32(t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to view detections")
	}

	for i, row := range rows {
		score := row[4]
		if score < threshold {
			continue
		}
		if row[5] < 0 {
			return nil, errors.Wrapf(postprocess.ErrMalformedOutput, "row %d has label %v", i, row[5])
		}
		raw.Boxes = append(raw.Boxes, [4]float32{row[0], row[1], row[2], row[3]})
		raw.Scores = append(raw.Scores, score)
		raw.Labels = append(raw.Labels, int(row[5]))
	}
	return raw, nil
}

// Remap rewrites labels from vocabulary indices into indices of classes and
// drops detections of classes that were not queried. An empty vocabulary
// returns raw unchanged.
//
// Arguments:
//   - raw: The decoded output with vocabulary labels.
//   - vocabulary: The model's label names.
//   - classes: The queried class names.
//
// Returns:
//   - *postprocess.Raw: Detections labelled by query index.
//   - error: postprocess.ErrMalformedOutput for a label outside vocabulary.
func Remap(raw *postprocess.Raw, vocabulary, classes []string) (*postprocess.Raw, error) {
	if len(vocabulary) == 0 || raw == nil {
		return raw, nil
	}

	query := make(map[string]int, len(classes))
	for i, name := range classes {
		if _, ok := query[name]; !ok {
			query[name] = i
		}
	}

	out := &postprocess.Raw{}
	for i, label := range raw.Labels {
		if label >= len(vocabulary) {
			return nil, errors.Wrapf(postprocess.ErrMalformedOutput,
				"label %d outside vocabulary of %d", label, len(vocabulary))
		}
		idx, ok := query[vocabulary[label]]
		if !ok {
			continue
		}
		out.Boxes = append(out.Boxes, raw.Boxes[i])
		out.Scores = append(out.Scores, raw.Scores[i])
		out.Labels = append(out.Labels, idx)
	}
	return out, nil
}
