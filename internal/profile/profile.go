// Package profile holds the resource profile policy: which load options and
// post-load memory optimizations a profile implies.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/wenc23/zimagetool/internal/pipeline"
)

// Profile is a named strategy trading throughput for peak memory.
type Profile int

const (
	// Balanced spreads weights across devices by capacity.
	Balanced Profile = iota
	// MinimalFootprint offloads weight segments to host memory between calls.
	MinimalFootprint
)

func (p Profile) String() string {
	switch p {
	case Balanced:
		return "balanced"
	case MinimalFootprint:
		return "minimal"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// Parse accepts the wire names plus the legacy console names.
func Parse(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "balanced", "basic", "default":
		return Balanced, nil
	case "minimal", "minimal-footprint", "minimal_footprint", "low_vram", "low-vram", "offload":
		return MinimalFootprint, nil
	}
	return Balanced, fmt.Errorf("unknown optimization mode %q", s)
}

// ParseOr returns def when s is empty.
func ParseOr(s string, def Profile) (Profile, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return Parse(s)
}

// LoadOptions returns the load-time options for p.
func (p Profile) LoadOptions(offloadDir string) pipeline.LoadOptions {
	if p == MinimalFootprint {
		return pipeline.LoadOptions{OffloadFolder: offloadDir, LowCPUMemory: true}
	}
	return pipeline.LoadOptions{DeviceMap: "balanced", LowCPUMemory: true}
}

// Step is one post-load optimization.
type Step int

const (
	ResetDeviceMap Step = iota
	AttentionSlicingMax
	SequentialCPUOffload
)

func (s Step) String() string {
	switch s {
	case ResetDeviceMap:
		return "reset_device_map"
	case AttentionSlicingMax:
		return "attention_slicing(max)"
	case SequentialCPUOffload:
		return "sequential_cpu_offload"
	default:
		return "unknown"
	}
}

// Plan lists the optimizations for p in application order.
func Plan(p Profile) []Step {
	if p == MinimalFootprint {
		return []Step{ResetDeviceMap, AttentionSlicingMax, SequentialCPUOffload}
	}
	return []Step{AttentionSlicingMax}
}

// Applied reports the outcome of Apply.
type Applied struct {
	Requested Profile
	Effective Profile
	Degraded  bool
	Steps     []Step
	Note      string
}

// Apply runs Plan(p) against opt. A failing minimal-footprint plan falls
// back to the balanced plan and is reported as degraded; a failing balanced
// plan is returned as an error.
func Apply(ctx context.Context, p Profile, opt pipeline.Optimizer) (Applied, error) {
	res := Applied{Requested: p, Effective: p}
	if opt == nil {
		res.Note = "pipeline exposes no memory optimizations"
		return res, nil
	}
	done, err := run(ctx, Plan(p), opt)
	res.Steps = done
	if err == nil {
		return res, nil
	}
	if p != MinimalFootprint {
		return res, fmt.Errorf("apply %s: %w", p, err)
	}
	fallback, ferr := run(ctx, Plan(Balanced), opt)
	if ferr != nil {
		return res, fmt.Errorf("apply %s fallback after %v: %w", Balanced, err, ferr)
	}
	res.Steps = fallback
	res.Effective = Balanced
	res.Degraded = true
	res.Note = fmt.Sprintf("offload setup failed (%v); running with balanced optimizations", err)
	return res, nil
}

func run(ctx context.Context, steps []Step, opt pipeline.Optimizer) ([]Step, error) {
	var done []Step
	for _, s := range steps {
		var err error
		switch s {
		case ResetDeviceMap:
			err = opt.ResetDeviceMap(ctx)
		case AttentionSlicingMax:
			err = opt.EnableAttentionSlicing(ctx, "max")
		case SequentialCPUOffload:
			err = opt.EnableSequentialCPUOffload(ctx)
		}
		if err != nil {
			return done, fmt.Errorf("%s: %w", s, err)
		}
		done = append(done, s)
	}
	return done, nil
}

// IsHighResolution reports sizes beyond roughly 2K.
func IsHighResolution(w, h int) bool {
	return w > 2048 || h > 2048 || w*h > 2048*1080
}

// Advise returns a warning for high-resolution work under Balanced, or "".
func Advise(p Profile, w, h int) string {
	if p == Balanced && IsHighResolution(w, h) {
		return fmt.Sprintf("%dx%d is high resolution; the minimal profile lowers peak memory", w, h)
	}
	return ""
}
