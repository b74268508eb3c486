package detectors

import (
	"context"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/inference/providers"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrNoClasses is returned when Detect is called without any class query.
var ErrNoClasses = errors.New("no classes to detect")

// padding is the letterbox fill, matching the mean pixel of common detector
// training pipelines.
var padding = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// ONNXDetector runs an exported detection model with ONNX Runtime.
type ONNXDetector struct {
	config  Config
	session *ort.DynamicAdvancedSession
	log     logrus.FieldLogger
	mu      sync.Mutex
}

// NewONNXDetector loads the model in config.ModelPath.
//
// Arguments:
//   - config: The detector configuration.
//   - log: The logger. Nil uses the standard logger.
//
// Returns:
//   - *ONNXDetector: The loaded detector.
//   - error: providers.ErrLibraryNotFound when the runtime is missing, or a
//     load error.
func NewONNXDetector(config Config, log logrus.FieldLogger) (*ONNXDetector, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := config.InputSize.Validate(); err != nil {
		return nil, errors.Wrap(err, "detector input size")
	}
	if err := providers.Initialize(config.LibraryPath); err != nil {
		return nil, err
	}

	options, err := providers.NewSessionOptions(config.Runtime)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load detector model %s", config.ModelPath)
	}

	log.WithFields(logrus.Fields{
		"model":  config.ModelPath,
		"input":  config.InputSize.String(),
		"device": providers.Select(config.Runtime.Device, runtime.GOOS, runtime.GOARCH),
	}).Info("detector loaded")

	return &ONNXDetector{config: config, session: session, log: log}, nil
}

// Detect letterboxes img into the model input, runs the model and decodes
// rows scoring at least the configured threshold.
func (d *ONNXDetector) Detect(
	ctx context.Context,
	img image.Image,
	classes []string,
) (*postprocess.Raw, images.Size, error) {
	if err := ctx.Err(); err != nil {
		return nil, images.Size{}, err
	}
	if len(classes) == 0 {
		return nil, images.Size{}, ErrNoClasses
	}

	input, err := images.Letterbox(img, d.config.InputSize, padding)
	if err != nil {
		return nil, images.Size{}, errors.Wrap(err, "failed to prepare input")
	}
	size := d.config.InputSize
	pixels, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size.Height), int64(size.Width)),
		images.CHW(input),
	)
	if err != nil {
		return nil, images.Size{}, errors.Wrap(err, "error creating input tensor")
	}
	defer pixels.Destroy()

	outputs := []ort.Value{nil}
	d.mu.Lock()
	err = d.session.Run([]ort.Value{pixels}, outputs)
	d.mu.Unlock()
	if err != nil {
		return nil, images.Size{}, errors.Wrap(err, "failed to run inference")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, images.Size{}, errors.Wrapf(postprocess.ErrMalformedOutput,
			"unexpected output type %T", outputs[0])
	}

	raw, err := DecodeRows(out.GetData(), d.config.Threshold)
	if err != nil {
		return nil, images.Size{}, err
	}
	raw, err = Remap(raw, d.config.Vocabulary, classes)
	if err != nil {
		return nil, images.Size{}, err
	}
	d.log.WithField("detections", raw.Len()).Debug("decoded model output")
	return raw, size, nil
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	return err
}
