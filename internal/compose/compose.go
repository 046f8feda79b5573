// Package compose renders synthesized sections into the final brief text.
package compose

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/daily-brief/internal/ranking"
	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

const truncationMarker = "[...]"

type toneTemplate struct {
	heading string
	intro   string
	empty   string
	points  string
	sources string
}

var tones = map[types.Tone]toneTemplate{
	types.ToneNeutral: {
		heading: "Daily brief: %s",
		intro:   "Recent developments in %s, grouped by theme.",
		empty:   "No items met the relevance threshold today.",
		points:  "Key points",
		sources: "Sources",
	},
	types.ToneCasual: {
		heading: "Your %s catch-up",
		intro:   "Here's the quick rundown on %s.",
		empty:   "Quiet day, nothing worth your time came up.",
		points:  "The gist",
		sources: "Where it's from",
	},
	types.ToneFormal: {
		heading: "Research brief: %s",
		intro:   "This brief summarizes recent developments concerning %s.",
		empty:   "No items satisfied the relevance criteria for this period.",
		points:  "Principal findings",
		sources: "References",
	},
	types.ToneEnthusiastic: {
		heading: "What's new in %s!",
		intro:   "Lots happening in %s today. Let's dig in!",
		empty:   "Nothing new today, but stay tuned!",
		points:  "Highlights",
		sources: "Read more",
	},
}

// Input is everything composition depends on.
type Input struct {
	RunID       string
	Topic       string
	Sections    []types.BriefSection
	Snapshot    types.Profile
	GeneratedAt time.Time
}

// Compose renders the brief. The text depends only on the sections and the
// snapshot; the returned Brief owns copies of both.
func Compose(in Input) types.Brief {
	snapshot := in.Snapshot.Clone()
	snapshot.ApplyDefaults()

	sections := make([]types.BriefSection, len(in.Sections))
	for i, s := range in.Sections {
		sections[i] = cloneSection(s)
	}

	text := Render(in.Topic, sections, snapshot)
	return types.Brief{
		RunID:       in.RunID,
		Topic:       in.Topic,
		GeneratedAt: in.GeneratedAt.UTC(),
		Sections:    sections,
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		Snapshot:    snapshot,
	}
}

// Render produces the markdown text of a brief.
func Render(topic string, sections []types.BriefSection, p types.Profile) string {
	tpl, ok := tones[p.Tone]
	if !ok {
		tpl = tones[types.ToneNeutral]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# "+tpl.heading+"\n\n", topic)
	fmt.Fprintf(&b, tpl.intro+"\n", topic)

	if len(sections) == 0 {
		b.WriteString("\n" + tpl.empty + "\n")
		return b.String()
	}

	share := max(1, p.Length.Words()/len(sections))
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Theme)
		b.WriteString(fitNarrative(s, share))
		b.WriteString("\n")

		if points := keyPoints(s.KeyPoints, p.Length); len(points) > 0 {
			fmt.Fprintf(&b, "\n**%s**\n\n", tpl.points)
			for _, kp := range points {
				b.WriteString("- " + kp + "\n")
			}
		}

		fmt.Fprintf(&b, "\n**%s**\n\n", tpl.sources)
		for i, c := range s.Citations {
			b.WriteString(citationLine(c, itemAt(s.Items, i), p.Technicality))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// fitNarrative caps a narrative at its word share. Prose is cut at a sentence
// boundary; templated bullet lists lose whole lines.
func fitNarrative(s types.BriefSection, words int) string {
	if s.Degraded || strings.HasPrefix(s.Narrative, "- ") {
		return fitLines(s.Narrative, words)
	}
	cut, truncated := textutil.TruncateWords(s.Narrative, words)
	if !truncated {
		return s.Narrative
	}
	cut = strings.TrimSuffix(cut, " ...")
	return cut + " " + truncationMarker
}

func fitLines(text string, words int) string {
	lines := strings.Split(text, "\n")
	used := 0
	for i, line := range lines {
		n := len(strings.Fields(line))
		if i > 0 && used+n > words {
			return strings.Join(lines[:i], "\n") + "\n- " + truncationMarker
		}
		used += n
	}
	return text
}

// keyPoints sets narrative density: short briefs carry none, medium up to
// three, long all of them.
func keyPoints(points []string, length types.Length) []string {
	switch length {
	case types.LengthShort:
		return nil
	case types.LengthMedium:
		return points[:min(3, len(points))]
	default:
		return points
	}
}

func citationLine(c types.Citation, item *types.ScoredItem, tech types.Technicality) string {
	line := fmt.Sprintf("%d. [%s](%s)", c.Number, c.Title, c.URL)
	if tech == types.TechnicalityLow {
		return line
	}
	if c.Source != "" {
		line += " (" + c.Source + ")"
	}
	if tech == types.TechnicalityHigh {
		line += fmt.Sprintf(" - score %.2f", c.Score)
		if item != nil {
			line += "; " + ranking.FormatFactors(item.Factors)
		}
	}
	return line
}

func itemAt(items []types.ScoredItem, i int) *types.ScoredItem {
	if i < len(items) {
		return &items[i]
	}
	return nil
}

func cloneSection(s types.BriefSection) types.BriefSection {
	out := s
	out.Items = slices.Clone(s.Items)
	out.KeyPoints = slices.Clone(s.KeyPoints)
	out.Citations = slices.Clone(s.Citations)
	return out
}
