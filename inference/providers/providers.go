// Package providers - ONNX Runtime execution providers and environment setup.
package providers

import (
	"strings"

	"github.com/pkg/errors"
)

// Device represents the hardware an ONNX session executes on.
type Device string

const (
	// DeviceAuto picks the best device available for the platform.
	DeviceAuto Device = "auto"

	// DeviceCPU uses the default CPU execution provider.
	DeviceCPU Device = "cpu"

	// DeviceCUDA uses NVIDIA CUDA for GPU acceleration.
	DeviceCUDA Device = "cuda"

	// DeviceCoreML uses Apple CoreML for macOS acceleration.
	DeviceCoreML Device = "coreml"

	// DeviceOpenVINO uses Intel OpenVINO for inference optimization.
	DeviceOpenVINO Device = "openvino"
)

// ErrUnsupportedDevice is returned for device names that are not recognised.
var ErrUnsupportedDevice = errors.New("unsupported device")

// ParseDevice converts a configuration value into a Device. The empty string
// is DeviceAuto.
//
// Arguments:
//   - name: The device name, case insensitive.
//
// Returns:
//   - Device: The parsed device.
//   - error: ErrUnsupportedDevice for unknown names.
func ParseDevice(name string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(name))); d {
	case "":
		return DeviceAuto, nil
	case DeviceAuto, DeviceCPU, DeviceCUDA, DeviceCoreML, DeviceOpenVINO:
		return d, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedDevice, "%q", name)
	}
}

// Select resolves DeviceAuto into a concrete device for the platform. Apple
// Silicon gets CoreML, everything else the CPU. CUDA and OpenVINO depend on
// native libraries the runtime cannot probe for, so they are only used when
// requested explicitly. Concrete devices are returned unchanged.
//
// Arguments:
//   - device: The requested device.
//   - goos: The target operating system, usually runtime.GOOS.
//   - goarch: The target architecture, usually runtime.GOARCH.
//
// Returns:
//   - Device: The device to configure.
func Select(device Device, goos, goarch string) Device {
	if device != DeviceAuto && device != "" {
		return device
	}
	if goos == "darwin" && goarch == "arm64" {
		return DeviceCoreML
	}
	return DeviceCPU
}
