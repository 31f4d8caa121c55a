package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/wenc23/zimagetool/internal/client"
	"github.com/wenc23/zimagetool/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

func okLine(w io.Writer, format string, args ...any) {
	okColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func warnLine(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, "! "+format+"\n", args...)
}

// errorLine renders err for the terminal, including the server's hint.
func errorLine(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		s := errColor.Sprintf("error: %s", apiErr.Message) + dimColor.Sprintf(" [%s]", apiErr.Kind)
		if apiErr.Hint != "" {
			s += "\n" + warnColor.Sprint("hint: ") + apiErr.Hint
		}
		return s
	}
	return errColor.Sprintf("error: %v", err)
}

func stateColor(state string) *color.Color {
	switch state {
	case "loaded", "succeeded":
		return okColor
	case "loading", "running", "pending":
		return warnColor
	case "failed":
		return errColor
	}
	return dimColor
}

func printStatus(w io.Writer, st types.StatusResponse) {
	fmt.Fprintf(w, "state:    %s\n", stateColor(st.State).Sprint(st.State))
	if st.Profile != "" {
		p := st.Profile
		if st.Degraded {
			p += warnColor.Sprint(" (degraded)")
		}
		fmt.Fprintf(w, "profile:  %s\n", p)
	}
	if st.ModelPath != "" {
		fmt.Fprintf(w, "model:    %s\n", st.ModelPath)
	}
	if st.LoadSeconds > 0 {
		fmt.Fprintf(w, "load:     %.2fs\n", st.LoadSeconds)
	}
	fmt.Fprintf(w, "jobs:     %d active\n", st.ActiveJobs)
	if st.LastError != "" {
		fmt.Fprintf(w, "last err: %s\n", errColor.Sprint(st.LastError))
	}
}

func printProgress(w io.Writer, p types.ProgressResponse) {
	bar := progressBar(p.Progress, 20)
	fmt.Fprintf(w, "%s %3d%% %s %s\n", bar, p.Progress, stateColor(p.Status).Sprint(p.Status), dimColor.Sprint(p.Stage))
}

func progressBar(pct, width int) string {
	pct = max(0, min(100, pct))
	n := pct * width / 100
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", width-n) + "]"
}

func printJobResult(w io.Writer, c *client.Client, p types.ProgressResponse) {
	switch p.Status {
	case "succeeded":
		okLine(w, "saved %s in %.1fs", c.URL(p.ImageURL), p.ElapsedSeconds)
		if p.Prompt != "" {
			fmt.Fprintf(w, "  prompt: %s\n", dimColor.Sprint(p.Prompt))
		}
	case "failed":
		fmt.Fprintln(w, errColor.Sprintf("job failed: %s", p.Message)+dimColor.Sprintf(" [%s]", p.Error))
		if p.Hint != "" {
			fmt.Fprintln(w, warnColor.Sprint("hint: ")+p.Hint)
		}
	default:
		printProgress(w, p)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func printGallery(w io.Writer, items []types.GalleryItem) {
	table := newTable(w, "FOLDER", "FILE", "SIZE", "STEPS", "CREATED", "PROMPT")
	for _, it := range items {
		table.Append([]string{
			it.Folder, it.Name, it.Info["size"], it.Info["steps"], it.Info["created"], truncate(it.Info["prompt"], 48),
		})
	}
	table.Render()
}

func printJobs(w io.Writer, jobs []types.ProgressResponse) {
	table := newTable(w, "ID", "STATUS", "PROGRESS", "STAGE")
	for _, j := range jobs {
		table.Append([]string{j.TaskID, j.Status, fmt.Sprintf("%d%%", j.Progress), j.Stage})
	}
	table.Render()
}

func printModels(w io.Writer, models []types.Model) {
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	table := newTable(w, "ID", "PIPELINE", "PATH", "")
	for _, m := range models {
		def := ""
		if m.Default {
			def = "default"
		}
		table.Append([]string{m.ID, m.Pipeline, m.Path, def})
	}
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
