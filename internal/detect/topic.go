package detect

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/classmesh/handraise/internal/transcript"
)

// quotedRe captures the first double-quoted substring in a text.
var quotedRe = regexp.MustCompile(`"([^"]+)"`)

// topicStopWords are excluded by the last-entry topic rule. They carry no
// subject information on their own.
var topicStopWords = map[string]struct{}{
	"this": {}, "that": {}, "what": {}, "how": {}, "why": {},
	"when": {}, "where": {}, "the": {}, "a": {}, "an": {},
	"is": {}, "are": {}, "was": {}, "were": {},
}

// topicFallback is used when no extraction rule yields a result.
const topicFallback = "current concept"

// wordTrimCutset strips surrounding punctuation before a word is inspected.
const wordTrimCutset = ".,!?;:'\"()[]"

// extractTopic guesses what the speaker is struggling with. Rules are tried
// in order against the concatenation of the speaker's entry texts; the
// first rule producing a non-empty result wins:
//
//  1. The first double-quoted substring ("I don't get \"recursion\"").
//  2. The first capitalized word longer than 3 characters that is not fully
//     uppercase (skips acronyms like HTML).
//  3. From the speaker's last entry only: the first word longer than 4
//     characters that is neither a stop-word nor a fragment of a matched
//     keyword.
//  4. The literal "current concept".
func extractTopic(group []transcript.Entry, keywords []string) string {
	texts := make([]string, 0, len(group))
	for _, e := range group {
		texts = append(texts, e.Text)
	}
	combined := strings.Join(texts, " ")

	if m := quotedRe.FindStringSubmatch(combined); m != nil {
		return m[1]
	}

	if t := firstCapitalizedWord(combined); t != "" {
		return t
	}

	if t := lastEntryContentWord(group[len(group)-1].Text, keywords); t != "" {
		return t
	}

	return topicFallback
}

// firstCapitalizedWord returns the first word of text that starts with an
// uppercase letter, is not fully uppercase, and is longer than 3 characters.
func firstCapitalizedWord(text string) string {
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, wordTrimCutset)
		if len(w) <= 3 {
			continue
		}
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			continue
		}
		if w == strings.ToUpper(w) {
			continue
		}
		return w
	}
	return ""
}

// lastEntryContentWord returns the first word of text longer than 4
// characters that is not a stop-word and not a fragment of any matched
// keyword.
func lastEntryContentWord(text string, keywords []string) string {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lowered = append(lowered, strings.ToLower(k))
	}

	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, wordTrimCutset)
		if len(w) <= 4 {
			continue
		}
		wl := strings.ToLower(w)
		if _, stop := topicStopWords[wl]; stop {
			continue
		}
		if isKeywordFragment(wl, lowered) {
			continue
		}
		return w
	}
	return ""
}

// isKeywordFragment reports whether word appears inside any matched keyword.
func isKeywordFragment(word string, loweredKeywords []string) bool {
	for _, k := range loweredKeywords {
		if strings.Contains(k, word) {
			return true
		}
	}
	return false
}
