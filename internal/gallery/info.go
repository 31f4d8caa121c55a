package gallery

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Metadata file keys.
const (
	KeyName    = "name"
	KeyPrompt  = "prompt"
	KeySize    = "size"
	KeySteps   = "steps"
	KeyProfile = "profile"
	KeyElapsed = "elapsed"
	KeyCreated = "created"
)

func writeInfo(path string, m Metadata) error {
	var b strings.Builder
	line := func(k, v string) {
		// one value per line
		v = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(v)
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	line(KeyName, m.Filename)
	line(KeyPrompt, m.Prompt)
	line(KeySize, fmt.Sprintf("%dx%d", m.Width, m.Height))
	line(KeySteps, fmt.Sprint(m.Steps))
	line(KeyProfile, m.Profile)
	line(KeyElapsed, fmt.Sprintf("%.2fs", m.Elapsed.Seconds()))
	line(KeyCreated, m.CreatedAt.Format(createdLayout))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ParseInfo reads colon-delimited key: value lines. Lines without a colon
// are skipped; only the first colon splits.
func ParseInfo(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, sc.Err()
}
