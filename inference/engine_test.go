package inference

import (
	"context"
	"image"
	"testing"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/segmenters"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDetector returns canned output per image width.
type fakeDetector struct {
	outputs map[int]*postprocess.Raw
	input   images.Size
	err     error
	queries [][]string
}

func (f *fakeDetector) Detect(
	_ context.Context,
	img image.Image,
	classes []string,
) (*postprocess.Raw, images.Size, error) {
	f.queries = append(f.queries, classes)
	if f.err != nil {
		return nil, images.Size{}, f.err
	}
	return f.outputs[img.Bounds().Dx()], f.input, nil
}

type fakeSegmenter struct {
	calls int
	boxes []images.Box
}

func (f *fakeSegmenter) Segment(_ context.Context, img image.Image, boxes []images.Box) ([]*image.Gray, error) {
	f.calls++
	f.boxes = boxes
	masks := make([]*image.Gray, len(boxes))
	for i := range boxes {
		masks[i] = image.NewGray(img.Bounds())
	}
	return masks, nil
}

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(t *testing.T, detector *fakeDetector) *Engine {
	t.Helper()
	log, _ := test.NewNullLogger()
	engine, err := NewEngineBuilder().
		WithLogger(log).
		WithDetector(detector).
		Build()
	require.NoError(t, err)
	return engine
}

func blank(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestEngine_Detect(t *testing.T) {
	detector := &fakeDetector{
		input: images.Size{Width: 100, Height: 100},
		outputs: map[int]*postprocess.Raw{
			200: {
				Boxes: [][4]float32{
					{0, 0, 50, 50},
					{0.5, 0.5, 50, 50}, // duplicate of the first, lower score
					{60, 0, 80, 20},
				},
				Scores: []float32{0.9, 0.6, 0.5},
				Labels: []int{0, 0, 1},
			},
		},
	}
	engine := newTestEngine(t, detector)

	set, err := engine.Detect(context.Background(), blank(200, 100), []string{"person", "chair"})
	require.NoError(t, err)

	assert.Equal(t, postprocess.Set{
		{ClassName: "person", ClassID: 0, Confidence: 0.9, Box: images.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}},
		{ClassName: "chair", ClassID: 1, Confidence: 0.5, Box: images.Box{X1: 120, Y1: 0, X2: 160, Y2: 40}},
	}, set)
	assert.Equal(t, [][]string{{"person", "chair"}}, detector.queries)
}

func TestEngine_DetectErrors(t *testing.T) {
	boom := errors.New("boom")
	engine := newTestEngine(t, &fakeDetector{err: boom, input: images.Size{Width: 10, Height: 10}})

	_, err := engine.Detect(context.Background(), blank(10, 10), []string{"person"})
	assert.ErrorIs(t, err, boom)

	_, err = engine.Detect(context.Background(), blank(10, 10), nil)
	assert.Error(t, err)

	_, err = engine.Detect(context.Background(), blank(10, 10), []string{"a", "a"})
	assert.Error(t, err)
}

func TestEngine_DetectPair(t *testing.T) {
	detector := &fakeDetector{
		input: images.Size{Width: 100, Height: 100},
		outputs: map[int]*postprocess.Raw{
			// main: two chairs
			100: {
				Boxes:  [][4]float32{{0, 0, 10, 10}, {50, 50, 60, 60}},
				Scores: []float32{0.9, 0.8},
				Labels: []int{0, 0},
			},
			// check: only the first chair is confirmed
			101: {
				Boxes:  [][4]float32{{0, 0, 10, 9}},
				Scores: []float32{0.7},
				Labels: []int{0},
			},
		},
	}
	engine := newTestEngine(t, detector)

	set, err := engine.DetectPair(context.Background(), blank(100, 100), blank(101, 101), []string{"chair"})
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, images.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, set[0].Box)
}

func TestEngine_SegmentUnavailable(t *testing.T) {
	engine := newTestEngine(t, &fakeDetector{})
	assert.False(t, engine.SegmentationAvailable())

	set := postprocess.Set{{ClassName: "person", Box: images.Box{X2: 5, Y2: 5}}}
	_, err := engine.Segment(context.Background(), blank(10, 10), set)
	assert.ErrorIs(t, err, segmenters.ErrNotConfigured)

	var cfgErr *segmenters.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestEngine_SegmentMissingWeights(t *testing.T) {
	log, hook := test.NewNullLogger()
	cfg := segmenters.DefaultConfig()
	cfg.ModelPath = "missing.onnx"
	cfg.LibraryPath = "missing.so"

	engine, err := NewEngineBuilder().
		WithLogger(log).
		WithDetector(&fakeDetector{}).
		WithONNXSegmenter(cfg).
		Build()
	require.NoError(t, err, "a segmenter configuration problem must not fail the build")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "segmentation unavailable", hook.LastEntry().Message)

	_, err = engine.Segment(context.Background(), blank(10, 10), postprocess.Set{{ClassName: "a"}})
	assert.ErrorIs(t, err, segmenters.ErrNotInstalled)
}

func TestEngine_Segment(t *testing.T) {
	segmenter := &fakeSegmenter{}
	log, _ := test.NewNullLogger()
	engine := NewEngineBuilder().
		WithLogger(log).
		WithDetector(&fakeDetector{}).
		WithSegmenter(segmenter).
		MustBuild()
	require.True(t, engine.SegmentationAvailable())

	masks, err := engine.Segment(context.Background(), blank(10, 10), postprocess.Set{})
	require.NoError(t, err)
	assert.Empty(t, masks)
	assert.Equal(t, 0, segmenter.calls, "empty input must not reach the model")

	set := postprocess.Set{
		{ClassName: "a", Box: images.Box{X1: 1, Y1: 1, X2: 4, Y2: 4}},
		{ClassName: "b", Box: images.Box{X1: 5, Y1: 5, X2: 9, Y2: 9}},
	}
	masks, err = engine.Segment(context.Background(), blank(10, 10), set)
	require.NoError(t, err)
	assert.Len(t, masks, 2)
	assert.Equal(t, set.Boxes(), segmenter.boxes)
}

func TestEngineBuilder_Errors(t *testing.T) {
	_, err := NewEngineBuilder().Build()
	assert.Error(t, err)

	assert.Panics(t, func() { NewEngineBuilder().MustBuild() })
}

func TestEngine_Close(t *testing.T) {
	closer := &fakeCloser{}
	b := NewEngineBuilder().WithDetector(&fakeDetector{})
	b.closers = append(b.closers, closer)
	engine := b.MustBuild()

	require.NoError(t, engine.Close())
	assert.True(t, closer.closed)
	assert.NoError(t, engine.Close())
}
