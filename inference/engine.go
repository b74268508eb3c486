// Package inference - Detection engine composing detection, post-processing
// and segmentation.
package inference

import (
	"context"
	"image"
	"io"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/detectors"
	"github.com/nvr-ai/go-cec/inference/segmenters"
	"github.com/nvr-ai/go-cec/models"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EngineBuilder builds an Engine with a fluent API.
type EngineBuilder struct {
	detector     detectors.Detector
	segmenter    segmenters.Segmenter
	segmenterErr error
	dedupe       *postprocess.DedupeConfig
	reconcile    *postprocess.ReconcileConfig
	log          logrus.FieldLogger
	closers      []io.Closer
	err          error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		dedupe:    postprocess.DefaultDedupeConfig(),
		reconcile: postprocess.DefaultReconcileConfig(),
		log:       logrus.StandardLogger(),
	}
}

// WithLogger sets the logger used by the engine and the models it loads.
func (b *EngineBuilder) WithLogger(log logrus.FieldLogger) *EngineBuilder {
	if log != nil {
		b.log = log
	}
	return b
}

// WithDetector sets the detector for the engine.
//
// Arguments:
//   - detector: The detector to use.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(detector detectors.Detector) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.detector = detector
	return b
}

// WithONNXDetector loads an ONNX detector from cfg.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithONNXDetector(cfg detectors.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	detector, err := detectors.NewONNXDetector(cfg, b.log)
	if err != nil {
		b.err = errors.Wrap(err, "failed to load detector")
		return b
	}
	b.closers = append(b.closers, detector)
	b.detector = detector
	return b
}

// WithSegmenter sets the segmenter for the engine.
func (b *EngineBuilder) WithSegmenter(segmenter segmenters.Segmenter) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.segmenter = segmenter
	b.segmenterErr = nil
	return b
}

// WithONNXSegmenter loads an ONNX segmenter from cfg. A configuration problem
// (no model, runtime or weights missing) leaves the engine without
// segmentation and is reported by Engine.Segment; other errors fail the build.
//
// Arguments:
//   - cfg: The segmenter configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithONNXSegmenter(cfg segmenters.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	segmenter, err := segmenters.NewONNXSegmenter(cfg, b.log)
	if err != nil {
		var cfgErr *segmenters.ConfigurationError
		if !errors.As(err, &cfgErr) {
			b.err = errors.Wrap(err, "failed to load segmenter")
			return b
		}
		b.log.WithError(err).Warn("segmentation unavailable")
		b.segmenter = nil
		b.segmenterErr = cfgErr
		return b
	}
	b.closers = append(b.closers, segmenter)
	b.segmenter = segmenter
	b.segmenterErr = nil
	return b
}

// WithDedupe sets the duplicate removal configuration.
func (b *EngineBuilder) WithDedupe(cfg *postprocess.DedupeConfig) *EngineBuilder {
	if cfg != nil {
		b.dedupe = cfg
	}
	return b
}

// WithReconcile sets the cross-set reconciliation configuration.
func (b *EngineBuilder) WithReconcile(cfg *postprocess.ReconcileConfig) *EngineBuilder {
	if cfg != nil {
		b.reconcile = cfg
	}
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine.
//
// Returns:
//   - *Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		b.closeAll()
		return nil, b.err
	}
	if b.detector == nil {
		b.closeAll()
		return nil, errors.New("detector not configured")
	}

	segmenterErr := b.segmenterErr
	if b.segmenter == nil && segmenterErr == nil {
		segmenterErr = &segmenters.ConfigurationError{
			Component: "segmentation model",
			Reason:    segmenters.ReasonNotConfigured,
		}
	}

	return &Engine{
		detector:     b.detector,
		segmenter:    b.segmenter,
		segmenterErr: segmenterErr,
		dedupe:       b.dedupe,
		reconcile:    b.reconcile,
		log:          b.log,
		closers:      b.closers,
	}, nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

func (b *EngineBuilder) closeAll() {
	for _, c := range b.closers {
		_ = c.Close()
	}
	b.closers = nil
}

// Engine detects objects, removes duplicates, reconciles detection sets and
// segments detected objects.
type Engine struct {
	detector     detectors.Detector
	segmenter    segmenters.Segmenter
	segmenterErr error
	dedupe       *postprocess.DedupeConfig
	reconcile    *postprocess.ReconcileConfig
	log          logrus.FieldLogger
	closers      []io.Closer
}

// Detect finds objects of the given classes in img and removes duplicates.
//
// Arguments:
//   - ctx: The context for the detection.
//   - img: The image to detect objects in.
//   - classes: The class names to query.
//
// Returns:
//   - postprocess.Set: The deduplicated objects in original image pixels.
//   - error: The error if any.
//
// @example
// set, err := engine.Detect(ctx, img, []string{"person", "chair"})
func (e *Engine) Detect(ctx context.Context, img image.Image, classes []string) (postprocess.Set, error) {
	set, err := e.detect(ctx, img, classes)
	if err != nil {
		return nil, err
	}
	deduped := postprocess.Dedupe(set, e.dedupe)
	e.log.WithFields(logrus.Fields{
		"detected": len(set),
		"kept":     len(deduped),
	}).Info("deduplicated detections")
	return deduped, nil
}

// DetectPair detects the given classes in two images of the same scene and
// keeps the objects of main confirmed by check.
//
// Arguments:
//   - ctx: The context for the detections.
//   - main: The image whose objects are reported.
//   - check: The independent image used as evidence.
//   - classes: The class names to query.
//
// Returns:
//   - postprocess.Set: The confirmed objects of main.
//   - error: The error if any.
func (e *Engine) DetectPair(
	ctx context.Context,
	main, check image.Image,
	classes []string,
) (postprocess.Set, error) {
	mainSet, err := e.Detect(ctx, main, classes)
	if err != nil {
		return nil, errors.Wrap(err, "main image")
	}
	checkSet, err := e.Detect(ctx, check, classes)
	if err != nil {
		return nil, errors.Wrap(err, "check image")
	}
	return e.Reconcile(mainSet, checkSet), nil
}

// Reconcile keeps the objects of main confirmed by check using the engine's
// reconciliation configuration.
func (e *Engine) Reconcile(main, check postprocess.Set) postprocess.Set {
	kept, matches := postprocess.ReconcileWithMatches(main, check, e.reconcile)
	e.log.WithFields(logrus.Fields{
		"main":    len(main),
		"check":   len(check),
		"matches": len(matches),
		"kept":    len(kept),
	}).Info("reconciled detections")
	return kept
}

// Segment returns one mask per object of set, in set order.
//
// Arguments:
//   - ctx: The context for the segmentation.
//   - img: The image the set was detected in.
//   - set: The objects to segment.
//
// Returns:
//   - []*image.Gray: The masks, sized like img.
//   - error: A *segmenters.ConfigurationError when segmentation is
//     unavailable, or the segmenter's error.
func (e *Engine) Segment(ctx context.Context, img image.Image, set postprocess.Set) ([]*image.Gray, error) {
	if e.segmenter == nil {
		return nil, e.segmenterErr
	}
	if len(set) == 0 {
		return []*image.Gray{}, nil
	}
	masks, err := e.segmenter.Segment(ctx, img, set.Boxes())
	if err != nil {
		return nil, errors.Wrap(err, "segmentation failed")
	}
	return masks, nil
}

// SegmentationAvailable reports whether Segment can run.
func (e *Engine) SegmentationAvailable() bool {
	return e.segmenter != nil
}

// Close releases the models loaded by the builder.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

func (e *Engine) detect(ctx context.Context, img image.Image, classes []string) (postprocess.Set, error) {
	classSet, err := models.NewClassSet(classes...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid classes")
	}
	raw, input, err := e.detector.Detect(ctx, img, classSet.Names())
	if err != nil {
		return nil, errors.Wrap(err, "detection failed")
	}
	return postprocess.NewBuilder(classSet, e.log).Build(raw, postprocess.Frame{
		Input:    input,
		Original: images.SizeOf(img),
	})
}
