package rewrite

import "strings"

// Hints are optional descriptive fields folded into a rewritten prompt.
type Hints struct {
	Style       string
	Character   string
	Pose        string
	Background  string
	Clothing    string
	Lighting    string
	Composition string
	Details     string
}

type labeled struct {
	label string
	value string
}

// fields returns the non-empty hints in a fixed order.
func (h Hints) fields() []labeled {
	all := []labeled{
		{"style", h.Style},
		{"subject", h.Character},
		{"pose", h.Pose},
		{"setting", h.Background},
		{"attire", h.Clothing},
		{"lighting", h.Lighting},
		{"composition", h.Composition},
		{"details", h.Details},
	}
	out := all[:0]
	for _, f := range all {
		if v := strings.TrimSpace(f.value); v != "" {
			out = append(out, labeled{f.label, v})
		}
	}
	return out
}

// Empty reports whether no hint is set.
func (h Hints) Empty() bool { return len(h.fields()) == 0 }
