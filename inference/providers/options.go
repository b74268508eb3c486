package providers

import (
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Options configures ONNX Runtime sessions.
type Options struct {
	// Device is the requested execution device.
	Device Device `json:"device" yaml:"device"`

	// DeviceID selects the GPU for CUDA.
	DeviceID int `json:"device_id" yaml:"device_id"`

	// IntraOpNumThreads sets threads for parallelizing ops. Zero lets the
	// runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
}

// DefaultOptions returns options that pick the device automatically.
func DefaultOptions() Options {
	return Options{
		Device:            DeviceAuto,
		IntraOpNumThreads: max(1, runtime.NumCPU()/2),
		InterOpNumThreads: max(1, runtime.NumCPU()/4),
	}
}

// NewSessionOptions creates session options with the execution provider for
// the selected device appended. The caller must Destroy the result.
//
// Arguments:
//   - opts: The session configuration.
//
// Returns:
//   - *ort.SessionOptions: Configured session options.
//   - error: Configuration error if any.
//
// @example
// options, err := providers.NewSessionOptions(providers.DefaultOptions())
//
//	if err != nil {
//	    return err
//	}
//
// defer options.Destroy()
func NewSessionOptions(opts Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "failed to set graph optimization level")
	}
	if opts.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpNumThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to set intra op threads")
		}
	}
	if opts.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(opts.InterOpNumThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to set inter op threads")
		}
	}

	device := Select(opts.Device, runtime.GOOS, runtime.GOARCH)
	if err := Append(options, device, opts.DeviceID); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// Append adds the execution provider for device to options. DeviceCPU needs
// no provider.
//
// Arguments:
//   - options: The session options to modify.
//   - device: A concrete device, see Select.
//   - deviceID: The GPU index for CUDA.
//
// Returns:
//   - error: An error if the provider cannot be enabled.
func Append(options *ort.SessionOptions, device Device, deviceID int) error {
	switch device {
	case DeviceCPU:
		return nil

	case DeviceCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "failed to create CUDA provider options")
		}
		defer cuda.Destroy()

		if err := cuda.Update(map[string]string{
			"device_id": strconv.Itoa(deviceID),
		}); err != nil {
			return errors.Wrap(err, "failed to configure CUDA provider")
		}
		return errors.Wrap(options.AppendExecutionProviderCUDA(cuda), "failed to enable CUDA")

	case DeviceCoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "failed to enable CoreML")

	case DeviceOpenVINO:
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}), "failed to enable OpenVINO")

	default:
		return errors.Wrapf(ErrUnsupportedDevice, "%q", device)
	}
}
