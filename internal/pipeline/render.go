package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
)

// Renderer writes build results to disk and prints a terminal summary
type Renderer struct {
	out io.Writer
}

// NewRenderer prints summaries to out; nil means stderr
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stderr
	}
	return &Renderer{out: out}
}

// RenderJSON writes the result as indented JSON
func (r *Renderer) RenderJSON(result *model.BuildResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes a human-readable audit of the result
func (r *Renderer) RenderMarkdown(result *model.BuildResult, path string) error {
	return writeFile(path, []byte(Markdown(result)))
}

// Markdown renders fields, audit, rejections and gates as a document
func Markdown(result *model.BuildResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Build %s\n\n", result.RequestID)
	if result.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n\n", result.SourceURL)
	}

	fmt.Fprintf(&b, "## Gates\n\n")
	fmt.Fprintf(&b, "- Coverage: %.1f%% (%d/%d)\n", result.Coverage.Pct*100, result.Coverage.Present, result.Coverage.Total)
	fmt.Fprintf(&b, "- Resolve gate: %s\n", gateLine(result.ResolveGate))
	if result.PublishGate != nil {
		fmt.Fprintf(&b, "- Publish gate: %s\n", gateLine(*result.PublishGate))
	}
	b.WriteString("\n")

	if len(result.Coverage.Categories) > 0 {
		b.WriteString("| Category | Present | Total | Coverage |\n|---|---|---|---|\n")
		for _, c := range result.Coverage.Categories {
			fmt.Fprintf(&b, "| %s | %d | %d | %.0f%% |\n", c.Category, c.Present, c.Total, c.Pct*100)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Fields\n\n| Key | Value | Source |\n|---|---|---|\n")
	for _, k := range result.Fields.Keys() {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", k, cell(result.Fields[k]), result.Provenance[k])
	}

	b.WriteString("\n## Audit\n\n| Key | Strategy | OK | Confidence | Reason |\n|---|---|---|---|---|\n")
	for _, a := range result.Audit {
		ok := "no"
		if a.OK {
			ok = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %s |\n", a.Key, a.StrategyUsed, ok, a.Confidence, a.Reason)
	}

	if len(result.Rejections) > 0 {
		b.WriteString("\n## Rejections\n\n")
		for _, r := range result.Rejections {
			fmt.Fprintf(&b, "- `%s`: %s (%s)\n", r.Key, r.Reason, cell(r.Value))
		}
	}
	if len(result.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "- `%s`: %s\n", w.Key, w.Reason)
		}
	}
	if len(result.Stages) > 0 {
		b.WriteString("\n## LLM stages\n\n")
		for _, s := range result.Stages {
			status := "ok"
			switch {
			case s.Skipped:
				status = "skipped"
			case !s.OK:
				status = "failed"
			}
			fmt.Fprintf(&b, "- %s: %s %s\n", s.Stage, status, s.Reason)
		}
	}
	return b.String()
}

// RenderSummary prints a short result summary
func (r *Renderer) RenderSummary(result *model.BuildResult) {
	_, _ = fmt.Fprintf(r.out, "\n  Request:   %s\n", result.RequestID)
	if result.SourceURL != "" {
		_, _ = fmt.Fprintf(r.out, "  Source:    %s\n", result.SourceURL)
	}
	_, _ = fmt.Fprintf(r.out, "  Fields:    %d\n", len(result.Fields))
	_, _ = fmt.Fprintf(r.out, "  Coverage:  %.1f%%\n", result.Coverage.Pct*100)
	_, _ = fmt.Fprintf(r.out, "  Resolve:   %s\n", gateLine(result.ResolveGate))
	if result.PublishGate != nil {
		_, _ = fmt.Fprintf(r.out, "  Publish:   %s\n", gateLine(*result.PublishGate))
	}
	if n := len(result.Rejections); n > 0 {
		_, _ = fmt.Fprintf(r.out, "  Rejected:  %d\n", n)
	}
	_, _ = fmt.Fprintln(r.out)
}

func gateLine(g model.GateDecision) string {
	if g.Pass {
		return "pass"
	}
	line := "fail (" + string(g.Reason) + ")"
	if len(g.Missing) > 0 {
		line += " missing: " + strings.Join(g.Missing, ", ")
	}
	return line
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return truncate(strings.ReplaceAll(s, "\n", " "), 80)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
