// Package pipeline defines the generation capability the daemon drives and
// the diffusion worker backend that provides it.
package pipeline

import (
	"context"
	"errors"
	"image"
)

// ErrStepCallbackUnsupported is returned by Generate when the backend cannot
// report per-step progress. Callers retry without a callback.
var ErrStepCallbackUnsupported = errors.New("pipeline: step callback not supported")

// ErrUnsupported is returned by Optimizer methods the backend does not implement.
var ErrUnsupported = errors.New("pipeline: operation not supported")

// Params are the per-call generation parameters.
type Params struct {
	Prompt        string
	Width         int
	Height        int
	Steps         int
	GuidanceScale float64
	Seed          int64
}

// StepFunc is invoked once per inference step; step is 0-indexed. Returning
// an error aborts the generation with that error.
type StepFunc func(step, total int) error

// Pipeline is a loaded generation capability.
type Pipeline interface {
	// Generate runs one inference. onStep may be nil.
	Generate(ctx context.Context, p Params, onStep StepFunc) (image.Image, error)
	Close() error
}

// Optimizer exposes the memory optimizations a loaded pipeline can apply.
type Optimizer interface {
	EnableAttentionSlicing(ctx context.Context, size string) error
	ResetDeviceMap(ctx context.Context) error
	EnableSequentialCPUOffload(ctx context.Context) error
}

// LoadOptions are applied while the weights are loaded.
type LoadOptions struct {
	DeviceMap     string
	OffloadFolder string
	DType         string
	LowCPUMemory  bool
}

// Loader creates pipelines from model folders.
type Loader interface {
	Load(ctx context.Context, modelPath string, opts LoadOptions) (Pipeline, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelPath string, opts LoadOptions) (Pipeline, error)

func (f LoaderFunc) Load(ctx context.Context, modelPath string, opts LoadOptions) (Pipeline, error) {
	return f(ctx, modelPath, opts)
}
