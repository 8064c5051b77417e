package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"nimp/internal/knowledge"
	"nimp/internal/pipeline"
)

// renderReport formats a run report as markdown.
func renderReport(r *pipeline.Report) string {
	var sb strings.Builder
	sb.WriteString("# nimp report\n\n")
	if len(r.Libraries) > 0 {
		sb.WriteString("Libraries: " + strings.Join(r.Libraries, ", ") + "\n\n")
	}

	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Procedures | %d |\n", r.Attempted)
	fmt.Fprintf(&sb, "| Synthesis failures | %d |\n", r.SynthesisFailures)
	fmt.Fprintf(&sb, "| Removed by repair | %d |\n", r.Removed)
	fmt.Fprintf(&sb, "| Compiled | %d |\n", r.Compiled)
	if r.Repaired {
		fmt.Fprintf(&sb, "| Compiler runs | %d |\n", r.Iterations)
	}
	fmt.Fprintf(&sb, "| Staging file | `%s` |\n\n", r.StagingPath)

	switch {
	case r.Success:
		fmt.Fprintf(&sb, "**Successfully compiled %d/%d procs**\n", r.Compiled, r.Attempted)
	case r.Repaired:
		fmt.Fprintf(&sb, "**Compilation failed with %d/%d procs left**\n", r.Compiled, r.Attempted)
	default:
		fmt.Fprintf(&sb, "**Generated %d/%d procs (not compiled)**\n", r.Compiled, r.Attempted)
	}

	if len(r.Removals) > 0 {
		sb.WriteString("\n## Removed calls\n\n")
		for _, rm := range r.Removals {
			fmt.Fprintf(&sb, "- `%s` (line %d): %s\n", rm.Proc, rm.Line, firstLine(rm.Diagnostic))
		}
	}
	return sb.String()
}

// renderKnowledge formats the knowledge base as a markdown table.
func renderKnowledge(b *knowledge.Base) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Knowledge base (%d entries)\n\n", b.Len())
	sb.WriteString("| Name | Classification |\n|---|---|\n")
	for _, e := range b.Entries() {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", e.Name, escapeCell(e.Classification.String()))
	}
	return sb.String()
}

// renderCheck formats a consistency check report as markdown.
func renderCheck(r *knowledge.Report) string {
	var sb strings.Builder
	sb.WriteString("# Knowledge check\n\n")
	if r.OK() {
		fmt.Fprintf(&sb, "No problems found in %d facts.\n", r.Facts)
		return sb.String()
	}
	if len(r.Cycles) > 0 {
		sb.WriteString("## Redirect cycles\n\n")
		for _, n := range r.Cycles {
			fmt.Fprintf(&sb, "- `%s`\n", n)
		}
		sb.WriteString("\n")
	}
	if len(r.Dangling) > 0 {
		sb.WriteString("## Dangling redirects\n\n")
		for _, e := range r.Dangling {
			fmt.Fprintf(&sb, "- `%s` -> `%s`\n", e.From, e.To)
		}
		sb.WriteString("\n")
	}
	if len(r.Conflicts) > 0 {
		sb.WriteString("## Conflicting classifications\n\n")
		for _, n := range r.Conflicts {
			fmt.Fprintf(&sb, "- `%s`\n", n)
		}
	}
	return sb.String()
}

// printMarkdown writes md to w, styled unless --plain is set.
func printMarkdown(w io.Writer, md string) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := renderer.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
