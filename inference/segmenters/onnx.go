package segmenters

import (
	"context"
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/providers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXSegmenter runs a box prompted segmentation model with ONNX Runtime.
type ONNXSegmenter struct {
	config  Config
	session *ort.DynamicAdvancedSession
	log     logrus.FieldLogger
	mu      sync.Mutex
}

// NewONNXSegmenter loads the segmentation model in config.ModelPath.
//
// Arguments:
//   - config: The segmenter configuration.
//   - log: The logger. Nil uses the standard logger.
//
// Returns:
//   - *ONNXSegmenter: The loaded segmenter.
//   - error: A *ConfigurationError when no model is configured, the runtime
//     library is missing or the model file does not exist.
func NewONNXSegmenter(config Config, log logrus.FieldLogger) (*ONNXSegmenter, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := Check(config); err != nil {
		return nil, err
	}
	if err := config.InputSize.Validate(); err != nil {
		return nil, errors.Wrap(err, "segmenter input size")
	}
	if err := providers.Initialize(config.LibraryPath); err != nil {
		return nil, &ConfigurationError{
			Component: "onnxruntime",
			Reason:    ReasonNotInstalled,
			Path:      config.LibraryPath,
			Err:       err,
		}
	}

	options, err := providers.NewSessionOptions(config.Runtime)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{config.ImageInput, config.BoxesInput},
		[]string{config.MasksOutput},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load segmentation model %s", config.ModelPath)
	}

	log.WithField("model", config.ModelPath).Info("segmenter loaded")
	return &ONNXSegmenter{config: config, session: session, log: log}, nil
}

// Check reports whether config can produce a segmenter without loading it.
//
// Arguments:
//   - config: The segmenter configuration.
//
// Returns:
//   - error: A *ConfigurationError, or nil when the runtime library and the
//     model file are both present.
func Check(config Config) error {
	if config.ModelPath == "" {
		return &ConfigurationError{Component: "segmentation model", Reason: ReasonNotConfigured}
	}
	if err := providers.CheckLibrary(config.LibraryPath); err != nil {
		return &ConfigurationError{
			Component: "onnxruntime",
			Reason:    ReasonNotInstalled,
			Path:      config.LibraryPath,
			Err:       err,
		}
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return &ConfigurationError{
			Component: "segmentation model",
			Reason:    ReasonWeightsNotFound,
			Path:      config.ModelPath,
			Err:       err,
		}
	}
	return nil
}

// Segment prompts the model with every box at once.
func (s *ONNXSegmenter) Segment(
	ctx context.Context,
	img image.Image,
	boxes []images.Box,
) ([]*image.Gray, error) {
	if len(boxes) == 0 {
		return []*image.Gray{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	original := images.SizeOf(img)
	size := s.config.InputSize
	input, err := images.Letterbox(img, size, color.Black)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	prompts, err := promptBoxes(boxes, size, original)
	if err != nil {
		return nil, err
	}

	pixels, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size.Height), int64(size.Width)),
		images.CHW(input),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer pixels.Destroy()

	prompt, err := ort.NewTensor(ort.NewShape(1, int64(len(boxes)), 4), prompts)
	if err != nil {
		return nil, errors.Wrap(err, "error creating boxes tensor")
	}
	defer prompt.Destroy()

	outputs := []ort.Value{nil}
	s.mu.Lock()
	err = s.session.Run([]ort.Value{pixels, prompt}, outputs)
	s.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to run segmentation")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Wrapf(ErrMalformedMasks, "unexpected output type %T", outputs[0])
	}
	masks, err := MasksFromLogits(out.GetData(), out.GetShape(), original)
	if err != nil {
		return nil, err
	}
	if len(masks) != len(boxes) {
		return nil, errors.Wrapf(ErrMalformedMasks, "%d masks for %d boxes", len(masks), len(boxes))
	}

	s.log.WithField("masks", len(masks)).Debug("segmented objects")
	return masks, nil
}

// Close releases the session.
func (s *ONNXSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
