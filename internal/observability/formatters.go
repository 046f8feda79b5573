// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/daily-brief/internal/ranking"
	"github.com/jonathan/daily-brief/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintExpansion outputs the subtopics and keywords of a topic expansion.
func (p *Printer) PrintExpansion(exp types.TopicExpansion) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", exp.Topic)
	if exp.Fallback {
		sb.WriteString("Mode:  fallback\n")
	}
	sb.WriteString("\n")
	for _, s := range exp.Subtopics {
		fmt.Fprintf(&sb, "  • %s\n", s.Name)
		if len(s.Keywords) > 0 {
			fmt.Fprintf(&sb, "      %s\n", strings.Join(s.Keywords, ", "))
		}
	}
	p.printBox("TOPIC EXPANSION", sb.String())
}

// PrintScored outputs the top accepted and rejected items with the reasons
// behind their scores.
func (p *Printer) PrintScored(scored []types.ScoredItem) {
	if len(scored) == 0 {
		return
	}

	var accepted, rejected []types.ScoredItem
	for _, s := range scored {
		if s.Accepted {
			accepted = append(accepted, s)
		} else {
			rejected = append(rejected, s)
		}
	}
	slices.SortStableFunc(rejected, func(a, b types.ScoredItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Accepted: %d   Rejected: %d\n\n", len(accepted), len(rejected))
	writeItems(&sb, "Accepted", accepted)
	writeItems(&sb, "Rejected", rejected)
	p.printBox("RELEVANCE SCORING", sb.String())
}

func writeItems(sb *strings.Builder, label string, items []types.ScoredItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		it := items[i]
		fmt.Fprintf(sb, "  %d. [%.2f] %s\n", i+1, it.Score, it.Item.Title)
		detail := ranking.Explain(it.Factors)
		if it.Reason != "" {
			detail = "(" + it.Reason + ") " + detail
		}
		fmt.Fprintf(sb, "     %s\n", detail)
	}
	if len(items) > maxItemsToShow {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-maxItemsToShow)
	}
	sb.WriteString("\n")
}

// PrintTrace outputs the stage table and metrics of a run.
func (p *Printer) PrintTrace(t types.RunTrace) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:   %s\n", t.RunID)
	fmt.Fprintf(&sb, "User:  %s\n", t.UserID)
	fmt.Fprintf(&sb, "Topic: %s\n", t.Topic)
	fmt.Fprintf(&sb, "State: %s\n", t.State)
	if t.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", t.Error)
	}
	sb.WriteString("\n")

	for _, st := range t.Stages {
		flags := ""
		if st.Degraded {
			flags += " degraded"
		}
		if st.CapabilityCalls > 0 {
			flags += fmt.Sprintf(" llm=%d", st.CapabilityCalls)
		}
		fmt.Fprintf(&sb, "  %-22s %4d → %-4d %8s%s\n",
			st.Stage, st.CountIn, st.CountOut, st.EndedAt.Sub(st.StartedAt).Round(time.Millisecond), flags)
		for i, e := range st.Errors {
			if i == maxItemsToShow {
				fmt.Fprintf(&sb, "      ... and %d more errors\n", len(st.Errors)-maxItemsToShow)
				break
			}
			fmt.Fprintf(&sb, "      ! %s\n", e)
		}
	}

	m := t.Metrics
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Sources: %d attempted, %d failed\n", m.SourcesAttempted, m.SourcesFailed)
	fmt.Fprintf(&sb, "Items:   %d fetched, %d malformed, %d accepted, %d rejected\n",
		m.ItemsFetched, m.ItemsMalformed, m.ItemsAccepted, m.ItemsRejected)
	fmt.Fprintf(&sb, "LLM:     %d calls, %d degraded stages\n", m.CapabilityCalls, m.DegradedStages)
	p.printBox("RUN TRACE", sb.String())
}

// PrintProfile outputs a preference profile.
func (p *Printer) PrintProfile(profile types.Profile) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User:         %s (v%d)\n", profile.UserID, profile.Version)
	fmt.Fprintf(&sb, "Persona:      %s\n", profile.Persona)
	fmt.Fprintf(&sb, "Tone:         %s\n", profile.Tone)
	fmt.Fprintf(&sb, "Technicality: %s\n", profile.Technicality)
	fmt.Fprintf(&sb, "Length:       %s\n", profile.Length)

	if len(profile.RecentTopics) > 0 {
		sb.WriteString("\nRecent topics:\n")
		count := min(len(profile.RecentTopics), maxItemsToShow)
		for _, topic := range profile.RecentTopics[:count] {
			fmt.Fprintf(&sb, "  • %s\n", topic)
		}
		if len(profile.RecentTopics) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(profile.RecentTopics)-maxItemsToShow)
		}
	}

	writeWeights(&sb, "Traits", profile.Traits)
	writeWeights(&sb, "Source bias", profile.SourceBias)
	p.printBox("PREFERENCE PROFILE", sb.String())
}

func writeWeights(sb *strings.Builder, label string, weights map[string]float64) {
	if len(weights) == 0 {
		return
	}
	names := make([]string, 0, len(weights))
	for k := range weights {
		names = append(names, k)
	}
	slices.SortFunc(names, func(a, b string) int {
		if weights[a] != weights[b] {
			if weights[a] > weights[b] {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	fmt.Fprintf(sb, "\n%s:\n", label)
	count := min(len(names), maxItemsToShow)
	for _, name := range names[:count] {
		fmt.Fprintf(sb, "  • %-30s %.2f\n", name, weights[name])
	}
	if len(names) > maxItemsToShow {
		fmt.Fprintf(sb, "  ... and %d more\n", len(names)-maxItemsToShow)
	}
}
