package rewrite

import (
	"fmt"
	"strings"
)

// Local combines the prompt and hints deterministically. It is the fallback
// when no backend answers.
func Local(prompt string, h Hints) string {
	var parts []string
	if p := strings.TrimSpace(prompt); p != "" {
		parts = append(parts, p)
	}
	for _, f := range h.fields() {
		parts = append(parts, f.label+": "+f.value)
	}
	return strings.Join(parts, ", ")
}

// SystemPrompt instructs a chat model to expand the user's prompt.
func SystemPrompt(h Hints) string {
	var b strings.Builder
	b.WriteString("You are an expert prompt writer for a text-to-image diffusion model. ")
	b.WriteString("Rewrite the user's idea into one detailed English image prompt. ")
	b.WriteString("Describe subject, setting, lighting, composition and style concretely. ")
	b.WriteString("Answer with the prompt only, without quotes or commentary.")
	if fs := h.fields(); len(fs) > 0 {
		b.WriteString("\n\nRespect these requirements:\n")
		for _, f := range fs {
			fmt.Fprintf(&b, "- %s: %s\n", f.label, f.value)
		}
	}
	return b.String()
}

// UserPrompt wraps the raw prompt for the chat request.
func UserPrompt(prompt string) string {
	return "Optimize the following prompt: " + strings.TrimSpace(prompt)
}

// clean strips wrapping quotes and whitespace some models add.
func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Prompt:")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
