package synthesis

import (
	"strconv"
	"strings"

	"github.com/jonathan/daily-brief/internal/ranking"
	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

const maxKeyPoints = 5

// Theme is a group of accepted items sharing a subtopic.
type Theme struct {
	Label string
	Items []types.ScoredItem
}

// Group clusters accepted items by best-matching subtopic. Themes follow the
// expansion's subtopic order; labels outside the expansion come after, in
// first-seen order. Items keep their input order and empty themes are omitted.
func Group(accepted []types.ScoredItem, expansion types.TopicExpansion) []Theme {
	known := make(map[string]bool, len(expansion.Subtopics))
	for _, sub := range expansion.Subtopics {
		known[sub.Name] = true
	}

	byLabel := make(map[string]*Theme)
	var extra []string
	for _, item := range accepted {
		label, _ := ranking.BestSubtopic(item.Item, expansion)
		if label == "" {
			label = expansion.Topic
		}
		th, ok := byLabel[label]
		if !ok {
			th = &Theme{Label: label}
			byLabel[label] = th
			if !known[label] {
				extra = append(extra, label)
			}
		}
		th.Items = append(th.Items, item)
	}

	var themes []Theme
	for _, sub := range expansion.Subtopics {
		if th, ok := byLabel[sub.Name]; ok && len(th.Items) > 0 {
			themes = append(themes, *th)
			delete(byLabel, sub.Name)
		}
	}
	for _, label := range extra {
		if th, ok := byLabel[label]; ok && len(th.Items) > 0 {
			themes = append(themes, *th)
		}
	}
	return themes
}

// Citations numbers a theme's items in order.
func Citations(items []types.ScoredItem) []types.Citation {
	out := make([]types.Citation, len(items))
	for i, it := range items {
		out[i] = types.Citation{
			Number: i + 1,
			Title:  it.Item.Title,
			URL:    it.Item.URL,
			Source: it.Item.Source,
			Score:  it.Score,
		}
	}
	return out
}

// KeyPoints are the first sentences of the item bodies, falling back to
// titles, deduplicated and capped.
func KeyPoints(items []types.ScoredItem) []string {
	var out []string
	seen := make(map[string]bool)
	for _, it := range items {
		point := textutil.FirstSentence(it.Item.Body)
		if len(strings.Fields(point)) < 4 {
			point = it.Item.Title
		}
		point, _ = textutil.TruncateWords(point, 30)
		key := strings.ToLower(point)
		if point == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, point)
		if len(out) == maxKeyPoints {
			break
		}
	}
	return out
}

// FallbackNarrative is the templated narrative: one bullet per item with its
// title, source and citation number.
func FallbackNarrative(items []types.ScoredItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it.Item.Title)
		if it.Item.Source != "" {
			b.WriteString(" (")
			b.WriteString(it.Item.Source)
			b.WriteString(")")
		}
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]")
	}
	return b.String()
}
