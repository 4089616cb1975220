// Optional native matmul acceleration via a dynamically loaded shared
// library (purego-based dlopen + RegisterLibFunc, sync.Once init, graceful
// not-found fallback). No such library ships with this module; the pure-Go
// path in kernels.go is always correct and is what runs when the library
// can't be found.
package kernels

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	nativeOnce    sync.Once
	nativeErr     error
	nativeHandle  uintptr
	nativeMatmulF func(a, b, c unsafe.Pointer, m, k, n int32)
)

// ErrNativeKernelsUnavailable is returned by EnableNativeKernels when the
// accelerated library cannot be located; callers should treat this as
// informational, not fatal, and keep using the pure-Go kernels.
var ErrNativeKernelsUnavailable = errors.New("native kernel library not found")

// EnableNativeKernels attempts to dlopen an optional accelerated matmul
// library and bind its symbols. It is safe to call multiple times; only the
// first call does work. Returns ErrNativeKernelsUnavailable (wrapped) when
// no library is present, which is the expected outcome in this environment.
func EnableNativeKernels() error {
	nativeOnce.Do(func() {
		libPath, err := findNativeLibrary()
		if err != nil {
			nativeErr = fmt.Errorf("%w: %v", ErrNativeKernelsUnavailable, err)
			return
		}
		handle, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			nativeErr = fmt.Errorf("%w: %v", ErrNativeKernelsUnavailable, err)
			return
		}
		nativeHandle = handle
		purego.RegisterLibFunc(&nativeMatmulF, nativeHandle, "fabric_matmul_f32")
	})
	return nativeErr
}

// NativeKernelsAvailable reports whether EnableNativeKernels has succeeded.
func NativeKernelsAvailable() bool {
	return nativeHandle != 0 && nativeErr == nil
}

func findNativeLibrary() (string, error) {
	name := nativeLibName()
	dirs := []string{"/usr/lib", "/usr/local/lib"}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	for _, envKey := range []string{"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH"} {
		if val := os.Getenv(envKey); val != "" {
			dirs = append(dirs, strings.Split(val, ":")...)
		}
	}

	checked := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		checked = append(checked, candidate)
	}
	return "", fmt.Errorf("library %q not found, checked: %s", name, strings.Join(checked, ", "))
}

// tryNativeMatmul invokes the loaded native matmul symbol on contiguous
// row-major buffers, recovering from any panic raised by the foreign call so
// a bad native library can never take down the process.
func tryNativeMatmul(a, b, c []float32, m, k, n int) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	nativeMatmulF(unsafe.Pointer(&a[0]), unsafe.Pointer(&b[0]), unsafe.Pointer(&c[0]), int32(m), int32(k), int32(n))
	return true
}

func nativeLibName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libfabric_kernels.dylib"
	case "windows":
		return "fabric_kernels.dll"
	default:
		return "libfabric_kernels.so"
	}
}
