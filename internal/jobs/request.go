package jobs

import (
	"fmt"
	"strings"

	"github.com/wenc23/zimagetool/internal/profile"
	"github.com/wenc23/zimagetool/internal/rewrite"
)

// Parameter bounds.
const (
	MinSize  = 256
	MaxSize  = 4096
	MinSteps = 1
	MaxSteps = 50
)

// Request is one generation request. Zero numeric fields are unbound.
type Request struct {
	Prompt        string          `json:"prompt"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	Steps         int             `json:"steps"`
	Filename      string          `json:"filename"`
	Profile       profile.Profile `json:"-"`
	Rewrite       bool            `json:"rewrite"`
	Hints         rewrite.Hints   `json:"hints"`
	GuidanceScale float64         `json:"guidance_scale"`
	Seed          int64           `json:"seed,omitempty"`
}

// Validate checks the prompt and every bound numeric field.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return newError(KindInvalidRequest, "prompt must not be empty")
	}
	if err := checkRange("width", r.Width, MinSize, MaxSize); err != nil {
		return err
	}
	if err := checkRange("height", r.Height, MinSize, MaxSize); err != nil {
		return err
	}
	return checkRange("steps", r.Steps, MinSteps, MaxSteps)
}

// checkBound fails for numeric parameters nobody resolved.
func (r Request) checkBound() error {
	for _, f := range []struct {
		name string
		v    int
	}{{"width", r.Width}, {"height", r.Height}, {"steps", r.Steps}} {
		if f.v == 0 {
			return newError(KindInvalidParameters, f.name+" is not set")
		}
	}
	return nil
}

func checkRange(name string, v, lo, hi int) error {
	if v == 0 {
		return nil
	}
	if v < lo || v > hi {
		return newError(KindInvalidRequest, fmt.Sprintf("%s must be between %d and %d, got %d", name, lo, hi, v))
	}
	return nil
}
