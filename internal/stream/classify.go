// Package stream consumes newline-framed responses from the assistant
// backend, separating generated content from leaked progress chatter.
package stream

import (
	"strings"
	"unicode"
)

// Frame classification outcomes.
type Class int

const (
	// ClassContent is generated text that belongs in the response.
	ClassContent Class = iota
	// ClassStatus is a short progress announcement to discard.
	ClassStatus
	// ClassEnd is the explicit end-of-stream marker.
	ClassEnd
	// ClassError is the explicit error marker.
	ClassError
)

// maxStatusLen bounds how long a line can be and still count as a status
// phrase. Real content occasionally starts with the same words; length keeps
// a sentence from being mistaken for a progress note.
const maxStatusLen = 48

// minContentLen is the length past which a line is considered content-shaped
// regardless of other signals.
const minContentLen = 40

// endMarkers and errorMarkers are matched exactly after trimming.
var endMarkers = []string{"[END]", "[DONE]", "__END__"}

var errorMarkers = []string{"[ERROR]", "__ERROR__"}

// statusPrefixes is the fixed vocabulary of progress announcements observed
// from the backends. Emoji prefixes come first because the workers decorate
// their progress lines with them.
var statusPrefixes = []string{
	"🔍", "⏳", "🤖", "💭", "⚙️",
	"starting",
	"started",
	"using model",
	"loading",
	"processing",
	"analyzing",
	"thinking",
	"generating",
	"initializing",
	"connecting",
	"working on it",
}

// Classifier decides whether a stream line is content, status noise, or a
// terminal marker.
type Classifier struct {
	// RTL marks the requested output language as right-to-left script.
	// Short lines without any RTL characters are then almost always leaked
	// status text from the worker, not content.
	RTL bool
}

// Classify applies the acceptance heuristic in order: terminal markers,
// known status phrases, content-shaped checks, then accept by default.
// Dropping real content is worse than rendering a stray status line, so
// ambiguity resolves toward content.
func (c Classifier) Classify(line string) Class {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ClassStatus
	}

	for _, m := range endMarkers {
		if trimmed == m {
			return ClassEnd
		}
	}
	for _, m := range errorMarkers {
		if trimmed == m {
			return ClassError
		}
	}

	if c.isStatusPhrase(trimmed) {
		return ClassStatus
	}

	if c.isContentShaped(trimmed) {
		return ClassContent
	}

	if c.RTL && !containsRTL(trimmed) && len([]rune(trimmed)) < minContentLen {
		// Wrong script for the requested output language.
		return ClassStatus
	}

	return ClassContent
}

func (c Classifier) isStatusPhrase(line string) bool {
	if len([]rune(line)) > maxStatusLen {
		return false
	}
	lower := strings.ToLower(line)
	for _, prefix := range statusPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (c Classifier) isContentShaped(line string) bool {
	if len([]rune(line)) >= minContentLen {
		return true
	}
	if strings.ContainsAny(line, ".!?;:。؟") {
		return true
	}
	if c.RTL && containsRTL(line) {
		return true
	}
	r := []rune(line)[0]
	return unicode.IsUpper(r)
}

func containsRTL(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) || unicode.Is(unicode.Hebrew, r) {
			return true
		}
	}
	return false
}
