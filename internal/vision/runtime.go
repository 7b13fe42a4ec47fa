// Package vision provides ONNX Runtime backed face and object models.
//
// Models are loaded lazily, once per process, on first use. ONNX sessions are
// bound to fixed input/output tensors, so each model serialises inference
// behind its own mutex.
package vision

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrDisabled is returned by backends when vision is turned off.
var ErrDisabled = errors.New("vision backend disabled")

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment initialises the ONNX Runtime shared library exactly once.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath = defaultLibraryPath()
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("init onnx runtime (%s): %w", libPath, err)
			return
		}
		slog.Info("onnx runtime initialised", "library", libPath)
	})
	return envErr
}

// Shutdown releases the ONNX Runtime environment. Call once at process exit.
func Shutdown() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("destroy onnx runtime", "error", err)
		}
	}
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func sessionOptions(threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	return opts, nil
}

// lazy loads a model on first use and remembers the outcome, including a
// failed load.
type lazy[T any] struct {
	mu    sync.Mutex
	done  bool
	load  func() (T, error)
	value T
	err   error
}

func (l *lazy[T]) get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.value, l.err = l.load()
		l.done = true
	}
	return l.value, l.err
}

// loaded returns the value only if a load already succeeded.
func (l *lazy[T]) loaded() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.done && l.err == nil
}
