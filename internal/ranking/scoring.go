// Package ranking scores fetched items against the user profile and the
// expanded topic, and decides which items reach synthesis.
package ranking

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

// Match weights for a keyword found in the title versus only in the body.
const (
	titleMatchWeight = 1.0
	bodyMatchWeight  = 0.75
)

// Technicality targets on the [0,1] complexity scale.
var technicalityTarget = map[types.Technicality]float64{
	types.TechnicalityLow:    0.2,
	types.TechnicalityMedium: 0.5,
	types.TechnicalityHigh:   0.8,
}

// Persona adjustments to the technicality target.
var personaShift = map[string]float64{
	"engineer":   0.1,
	"developer":  0.1,
	"researcher": 0.1,
	"scientist":  0.1,
	"executive":  -0.1,
	"student":    -0.1,
	"beginner":   -0.1,
}

// computeTopicMatch scores keyword overlap of an item against one keyword set.
// Each keyword contributes 1 if it appears in the title, 0.75 if only in the
// body, and the sum is divided by the number of keywords.
func computeTopicMatch(titleStems, bodyStems []string, keywords []string) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}

	total := 0.0
	var matched []string
	for _, kw := range keywords {
		switch {
		case textutil.ContainsPhrase(titleStems, kw):
			total += titleMatchWeight
			matched = append(matched, kw)
		case textutil.ContainsPhrase(bodyStems, kw):
			total += bodyMatchWeight
			matched = append(matched, kw)
		}
	}
	return total / float64(len(keywords)), matched
}

// computeRecency is 0.5^(age/halfLife). Items dated after the reference time
// score 1 and undated items score the configured neutral value.
func computeRecency(published *time.Time, reference time.Time, halfLife time.Duration, unknown float64) float64 {
	if published == nil || published.IsZero() {
		return unknown
	}
	age := reference.Sub(*published)
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// computePersonaFit compares the item's complexity with the reader's target.
func computePersonaFit(item types.RawItem, profile types.Profile) float64 {
	target, ok := technicalityTarget[profile.Technicality]
	if !ok {
		target = technicalityTarget[types.TechnicalityMedium]
	}
	target = clamp01(target + personaShift[strings.ToLower(profile.Persona)])
	return clamp01(1 - math.Abs(complexity(item.Title+" "+item.Body)-target))
}

// complexity is a [0,1] estimate of how technical a text reads, from mean
// word length, the share of long words and the share of technical markers
// (digits, acronyms, mixed-case identifiers). Empty text is 0.5.
func complexity(text string) float64 {
	words := textutil.Words(text)
	if len(words) == 0 {
		return 0.5
	}

	letters, long, technical := 0, 0, 0
	for _, w := range words {
		n := len([]rune(w))
		letters += n
		if n >= 9 {
			long++
		}
		if isTechnicalMarker(w) {
			technical++
		}
	}
	n := float64(len(words))
	avgLen := float64(letters) / n

	lengthScore := clamp01((avgLen - 3.5) / 4)
	longScore := clamp01(float64(long) / n * 4)
	techScore := clamp01(float64(technical) / n * 5)
	return clamp01(0.4*lengthScore + 0.3*longScore + 0.3*techScore)
}

func isTechnicalMarker(w string) bool {
	upper, lower, digit := 0, 0, 0
	for _, r := range w {
		switch {
		case unicode.IsDigit(r):
			digit++
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	switch {
	case digit > 0:
		return true
	case upper >= 2 && lower == 0:
		return true // acronym
	case upper >= 2 && lower > 0:
		return true // camelCase or PostgreSQL-style names
	default:
		return false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
