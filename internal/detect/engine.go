// Package detect implements keyword detection on student transcript streams.
// It scans per-speaker batches of transcript entries against a keyword
// taxonomy and emits one detection per speaker whose speech triggered a
// match, carrying urgency, topic, matched keywords, and a context snippet.
//
// Detection never fails on input data: malformed or empty text simply
// contributes no matches. Only student speech is analyzed; false-positive
// phrases suppress keyword matching for the entire entry they appear in.
//
// The Engine is read-only after construction and safe for concurrent use.
package detect

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/taxonomy"
	"github.com/classmesh/handraise/internal/transcript"
)

// snippetMaxLen bounds the rendered context snippet, ellipsis included.
const snippetMaxLen = 300

// snippetEntries is how many of the speaker's most recent entries feed the
// context snippet.
const snippetEntries = 3

// Detection is a computed help signal for one speaker's recent speech.
type Detection struct {
	// SpeakerID identifies the student the detection is about.
	SpeakerID string

	// SpeakerName is the student's display name.
	SpeakerName string

	// Urgency is the severity derived from the accumulated score and
	// distinct keyword count.
	Urgency alert.Urgency

	// Topic is a short guess at what the student is struggling with.
	Topic string

	// Keywords lists the matched phrases, deduplicated in order of first
	// occurrence.
	Keywords []string

	// SourceIDs lists the IDs of the transcript entries that contributed
	// matches, deduplicated.
	SourceIDs []string

	// ContextSnippet renders the speaker's last few entries, at most 300
	// characters.
	ContextSnippet string

	// Score is the accumulated urgency weight, retained for diagnostics.
	Score int
}

// Engine scans transcript batches against a keyword taxonomy.
type Engine struct {
	tax *taxonomy.Taxonomy

	// categories is a deterministic scan order over the taxonomy's
	// category set, so keyword first-occurrence order is stable.
	categories []taxonomy.Category

	// lowered phrase caches, computed once at construction.
	phrases        map[taxonomy.Category][]loweredPhrase
	falsePositives []string
}

// loweredPhrase pairs a phrase as configured with its lower-cased form used
// for matching.
type loweredPhrase struct {
	literal string
	lower   string
}

// NewEngine creates an Engine over tax. The taxonomy must not be mutated
// afterwards.
func NewEngine(tax *taxonomy.Taxonomy) *Engine {
	e := &Engine{
		tax:        tax,
		categories: slices.Sorted(maps.Keys(tax.Categories)),
		phrases:    make(map[taxonomy.Category][]loweredPhrase, len(tax.Categories)),
	}
	for cat, phrases := range tax.Categories {
		lp := make([]loweredPhrase, 0, len(phrases))
		for _, p := range phrases {
			lp = append(lp, loweredPhrase{literal: p, lower: strings.ToLower(p)})
		}
		e.phrases[cat] = lp
	}
	for _, p := range tax.FalsePositives {
		e.falsePositives = append(e.falsePositives, strings.ToLower(p))
	}
	return e
}

// Analyze scans a batch of transcript entries for one session, already
// filtered by the caller, and returns zero or more detections — one per
// distinct student speaker that triggered a match, in order of each
// speaker's first appearance in the batch.
func (e *Engine) Analyze(entries []transcript.Entry) []Detection {
	groups, order := groupBySpeaker(entries)

	var detections []Detection
	for _, speakerID := range order {
		group := groups[speakerID]

		// Only student speech is analyzed. The role of the group's first
		// entry stands for the whole group; a speaker cannot switch roles
		// within one batch.
		if group[0].SpeakerRole == transcript.RoleInstructor {
			continue
		}

		if d, ok := e.analyzeSpeaker(group); ok {
			detections = append(detections, d)
		}
	}
	return detections
}

// analyzeSpeaker scans one speaker's entries. ok is false when no keyword
// matched.
func (e *Engine) analyzeSpeaker(group []transcript.Entry) (Detection, bool) {
	var (
		keywords   []string
		keywordSet = make(map[string]struct{})
		sourceIDs  []string
		sourceSet  = make(map[string]struct{})
		score      int
	)

	for _, entry := range group {
		lower := strings.ToLower(entry.Text)
		if lower == "" {
			continue
		}

		// False positives take priority: one suppressing phrase skips the
		// whole entry before any keyword scan.
		if containsAny(lower, e.falsePositives) {
			continue
		}

		for _, cat := range e.categories {
			for _, p := range e.phrases[cat] {
				if !strings.Contains(lower, p.lower) {
					continue
				}
				score += e.tax.Weight(cat)
				if _, seen := keywordSet[p.lower]; !seen {
					keywordSet[p.lower] = struct{}{}
					keywords = append(keywords, p.literal)
				}
				if _, seen := sourceSet[entry.ID]; !seen {
					sourceSet[entry.ID] = struct{}{}
					sourceIDs = append(sourceIDs, entry.ID)
				}
			}
		}
	}

	if len(keywords) == 0 {
		return Detection{}, false
	}

	return Detection{
		SpeakerID:      group[0].SpeakerID,
		SpeakerName:    group[0].SpeakerName,
		Urgency:        e.urgency(score, len(keywords)),
		Topic:          extractTopic(group, keywords),
		Keywords:       keywords,
		SourceIDs:      sourceIDs,
		ContextSnippet: contextSnippet(group),
		Score:          score,
	}, true
}

// urgency maps an accumulated score and distinct keyword count to a level
// using the taxonomy's cut-points.
func (e *Engine) urgency(score, count int) alert.Urgency {
	th := e.tax.Thresholds
	switch {
	case score >= th.HighScore || count >= th.HighCount:
		return alert.UrgencyHigh
	case score >= th.MediumScore || count >= th.MediumCount:
		return alert.UrgencyMedium
	default:
		return alert.UrgencyLow
	}
}

// groupBySpeaker partitions entries by speaker ID, preserving arrival order
// within each group and recording the order of first appearance.
func groupBySpeaker(entries []transcript.Entry) (map[string][]transcript.Entry, []string) {
	groups := make(map[string][]transcript.Entry)
	var order []string
	for _, e := range entries {
		if _, seen := groups[e.SpeakerID]; !seen {
			order = append(order, e.SpeakerID)
		}
		groups[e.SpeakerID] = append(groups[e.SpeakerID], e)
	}
	return groups, order
}

// containsAny reports whether text contains any of the lower-cased phrases.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// contextSnippet renders the speaker's last few entries as
// `Name: "text"` segments joined by spaces, truncated to 300 characters
// with a trailing ellipsis when longer.
func contextSnippet(group []transcript.Entry) string {
	start := len(group) - snippetEntries
	if start < 0 {
		start = 0
	}

	parts := make([]string, 0, snippetEntries)
	for _, e := range group[start:] {
		parts = append(parts, fmt.Sprintf("%s: \"%s\"", e.SpeakerName, e.Text))
	}
	snippet := strings.Join(parts, " ")

	runes := []rune(snippet)
	if len(runes) > snippetMaxLen {
		snippet = string(runes[:snippetMaxLen-3]) + "..."
	}
	return snippet
}
