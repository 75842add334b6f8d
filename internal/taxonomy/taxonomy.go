// Package taxonomy defines the keyword configuration driving help detection:
// categorized phrase lists, false-positive phrases that suppress matching,
// per-category urgency weights, and the score/count cut-points that map an
// accumulated score to an urgency level.
//
// A built-in default taxonomy ships with the binary ([Default]); deployments
// can override or extend it with a YAML file loaded via [Load]. The taxonomy
// is read-only after construction and safe for concurrent use.
package taxonomy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"
)

// Category labels a phrase list. Categories double as the keys of the weight
// table, so a phrase list and its weight can never drift apart.
type Category string

const (
	// CategoryDirect holds explicit requests for help.
	CategoryDirect Category = "direct"

	// CategoryConfusion holds statements of not understanding the material.
	CategoryConfusion Category = "confusion"

	// CategoryFrustration holds statements of giving up or distress.
	CategoryFrustration Category = "frustration"

	// CategoryQuestions holds low-signal question openers.
	CategoryQuestions Category = "questions"
)

// defaultWeight is applied to any category without an entry in the weight
// table.
const defaultWeight = 1

// Thresholds holds the urgency cut-points. A speaker's accumulated score and
// distinct keyword count are compared against these: high wins when either
// the high cut-point is reached, then medium, otherwise the result is low.
type Thresholds struct {
	// HighScore is the minimum accumulated weight for high urgency.
	HighScore int `yaml:"high_score"`

	// HighCount is the minimum distinct keyword count for high urgency.
	HighCount int `yaml:"high_count"`

	// MediumScore is the minimum accumulated weight for medium urgency.
	MediumScore int `yaml:"medium_score"`

	// MediumCount is the minimum distinct keyword count for medium urgency.
	MediumCount int `yaml:"medium_count"`
}

// Taxonomy is the full keyword configuration consumed by the detection
// engine. Construct one with [Default] or [Load]; do not mutate it after
// handing it to a detector.
type Taxonomy struct {
	// Categories maps each category to its phrase list. Phrases are matched
	// case-insensitively as substrings of transcript text.
	Categories map[Category][]string `yaml:"categories"`

	// FalsePositives lists phrases that suppress keyword matching for an
	// entire transcript entry when present. Checked before any category scan.
	FalsePositives []string `yaml:"false_positives"`

	// Weights maps a category to the urgency weight added per match.
	// Categories absent from this map weigh 1.
	Weights map[Category]int `yaml:"weights"`

	// Thresholds holds the urgency cut-points.
	Thresholds Thresholds `yaml:"thresholds"`
}

// Default returns the built-in taxonomy. The returned value is a fresh copy
// that the caller may adjust before validation.
func Default() *Taxonomy {
	return &Taxonomy{
		Categories: map[Category][]string{
			CategoryDirect: {
				"I need help",
				"can you help",
				"help me",
				"I'm stuck",
				"can someone explain",
				"I have a question",
			},
			CategoryConfusion: {
				"I don't understand",
				"I'm confused",
				"doesn't make sense",
				"I'm lost",
				"what does this mean",
				"not following",
			},
			CategoryFrustration: {
				"this is impossible",
				"I give up",
				"so frustrating",
				"I can't do this",
				"this is too hard",
				"why isn't this working",
			},
			CategoryQuestions: {
				"how do I",
				"how do you",
				"what happens if",
				"is there a way",
			},
		},
		FalsePositives: []string{
			"I understand now",
			"makes sense now",
			"that helps",
			"figured it out",
			"got it now",
			"never mind",
			"oh I see",
			"not confused anymore",
		},
		Weights: map[Category]int{
			CategoryDirect:      3,
			CategoryConfusion:   2,
			CategoryFrustration: 4,
			CategoryQuestions:   1,
		},
		Thresholds: Thresholds{
			HighScore:   3,
			HighCount:   3,
			MediumScore: 2,
			MediumCount: 2,
		},
	}
}

// Weight returns the urgency weight for category, falling back to 1 for
// categories without a configured weight.
func (t *Taxonomy) Weight(c Category) int {
	if w, ok := t.Weights[c]; ok {
		return w
	}
	return defaultWeight
}

// nearDuplicateThreshold is the Jaro-Winkler similarity above which two
// distinct phrases are reported as near-duplicates during validation.
const nearDuplicateThreshold = 0.95

// Validate checks the taxonomy for configuration mistakes. It returns a
// joined error listing all hard failures found: empty phrases, duplicate
// phrases within a category, non-positive thresholds.
//
// Near-duplicate phrases across the whole taxonomy (Jaro-Winkler similarity
// above 0.95) are logged as warnings rather than rejected — they usually
// indicate a typo'd copy of an existing phrase, but may be intentional.
func (t *Taxonomy) Validate() error {
	var errs []error

	var all []located

	for cat, phrases := range t.Categories {
		if len(phrases) == 0 {
			errs = append(errs, fmt.Errorf("taxonomy: category %q has no phrases", cat))
		}
		seen := make(map[string]struct{}, len(phrases))
		for i, p := range phrases {
			lower := strings.ToLower(strings.TrimSpace(p))
			if lower == "" {
				errs = append(errs, fmt.Errorf("taxonomy: category %q phrase %d is empty", cat, i))
				continue
			}
			if _, dup := seen[lower]; dup {
				errs = append(errs, fmt.Errorf("taxonomy: category %q phrase %q is a duplicate", cat, p))
			}
			seen[lower] = struct{}{}
			all = append(all, located{phrase: lower, where: string(cat)})
		}
	}

	for i, p := range t.FalsePositives {
		lower := strings.ToLower(strings.TrimSpace(p))
		if lower == "" {
			errs = append(errs, fmt.Errorf("taxonomy: false_positives phrase %d is empty", i))
			continue
		}
		all = append(all, located{phrase: lower, where: "false_positives"})
	}

	if t.Thresholds.HighScore <= 0 || t.Thresholds.HighCount <= 0 ||
		t.Thresholds.MediumScore <= 0 || t.Thresholds.MediumCount <= 0 {
		errs = append(errs, errors.New("taxonomy: all thresholds must be positive"))
	}
	if t.Thresholds.MediumScore > t.Thresholds.HighScore {
		errs = append(errs, fmt.Errorf("taxonomy: medium_score %d exceeds high_score %d",
			t.Thresholds.MediumScore, t.Thresholds.HighScore))
	}

	warnNearDuplicates(all)

	return errors.Join(errs...)
}

// located pairs a normalized phrase with the list it came from, for
// near-duplicate reporting.
type located struct {
	phrase string
	where  string
}

// warnNearDuplicates logs a warning for every pair of distinct phrases whose
// Jaro-Winkler similarity exceeds nearDuplicateThreshold.
func warnNearDuplicates(all []located) {
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.phrase == b.phrase {
				// Exact duplicates across lists are legitimate (a phrase may be
				// both a category keyword and appear in a larger false positive).
				continue
			}
			if matchr.JaroWinkler(a.phrase, b.phrase, false) >= nearDuplicateThreshold {
				slog.Warn("taxonomy: near-duplicate phrases",
					"phrase_a", a.phrase, "list_a", a.where,
					"phrase_b", b.phrase, "list_b", b.where,
				)
			}
		}
	}
}
