package providers

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrLibraryNotFound is returned when the ONNX Runtime shared library is not
// present on disk.
var ErrLibraryNotFound = errors.New("onnxruntime shared library not found")

var initMu sync.Mutex

// SharedLibPath returns the conventional location of the ONNX Runtime shared
// library for a platform below dir.
//
// Arguments:
//   - dir: The directory holding the native libraries.
//   - goos: The target operating system.
//   - goarch: The target architecture.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(dir, goos, goarch string) string {
	var name string
	switch goos {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "libonnxruntime.dylib"
	default:
		if goarch == "arm64" {
			name = "onnxruntime_arm64.so"
		} else {
			name = "onnxruntime.so"
		}
	}
	return filepath.Join(dir, name)
}

// Initialize loads the ONNX Runtime shared library and prepares the process
// wide environment. Repeated calls after a successful initialization are
// no-ops.
//
// Arguments:
//   - libPath: The path to the shared library.
//
// Returns:
//   - error: ErrLibraryNotFound when libPath does not exist, or the runtime
//     initialization error.
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if err := CheckLibrary(libPath); err != nil {
		return err
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// CheckLibrary verifies that libPath names an existing file.
//
// Arguments:
//   - libPath: The path to the shared library.
//
// Returns:
//   - error: ErrLibraryNotFound if the file is missing.
func CheckLibrary(libPath string) error {
	if libPath == "" {
		return errors.Wrap(ErrLibraryNotFound, "no library path configured")
	}
	info, err := os.Stat(libPath)
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrLibraryNotFound, "%s", libPath)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", libPath)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrLibraryNotFound, "%s is a directory", libPath)
	}
	return nil
}
