// Package highlight annotates email text with markers around terms that
// drove a classification and around low-trust sender addresses.
//
// The output is HTML: the email text is escaped and the markers are the only
// markup. Highlighting works on the original email text. Feeding highlighted
// output back in treats the earlier markers as plain text.
package highlight

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/senderlist"
)

// CSS classes of the inserted markers
const (
	ClassSuspicious = "phish-suspicious"
	ClassLegitimate = "phish-legit"
	ClassSender     = "sender-meta"
)

const (
	openSuspicious = `<mark class="` + ClassSuspicious + `">`
	openLegitimate = `<mark class="` + ClassLegitimate + `">`
	closeMark      = `</mark>`
	openSender     = `<span class="` + ClassSender + `">`
	closeSender    = `</span>`
)

var (
	// markerPattern matches the markers this package inserts. Escaped email
	// text never contains a literal '<', so only real markers match.
	markerPattern = regexp.MustCompile(`<mark class="(?:` + ClassSuspicious + `|` + ClassLegitimate + `)">|</mark>|<span class="` + ClassSender + `">|</span>`)
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// span is a byte range of the original text wrapped by one marker
type span struct {
	start, end  int
	open, close string
}

// spans holds non-overlapping marker ranges
type spans []span

// claim adds the range unless it overlaps one already taken
func (s *spans) claim(start, end int, open, close string) bool {
	for _, t := range *s {
		if start < t.end && t.start < end {
			return false
		}
	}
	*s = append(*s, span{start: start, end: end, open: open, close: close})
	return true
}

// render escapes text and inserts the markers
func (s spans) render(text string) string {
	sort.Slice(s, func(i, j int) bool { return s[i].start < s[j].start })

	var b strings.Builder
	b.Grow(len(text) + len(s)*32)
	prev := 0
	for _, sp := range s {
		b.WriteString(html.EscapeString(text[prev:sp.start]))
		b.WriteString(sp.open)
		b.WriteString(html.EscapeString(text[sp.start:sp.end]))
		b.WriteString(sp.close)
		prev = sp.end
	}
	b.WriteString(html.EscapeString(text[prev:]))
	return b.String()
}

// Highlighter wraps matched terms and suspicious senders with markers. The
// visible text is never changed: Strip on the output returns the input.
type Highlighter struct {
	senders *senderlist.Checker
}

// New creates a highlighter. A nil checker disables sender marking.
func New(senders *senderlist.Checker) *Highlighter {
	return &Highlighter{senders: senders}
}

// Highlight marks whole-word, case-insensitive occurrences of each
// contribution term: positive weights as suspicious and negative weights as
// legitimate-leaning. A suspicious sender address is marked first.
func (h *Highlighter) Highlight(text string, contributions []core.Contribution, sender string) string {
	marks := h.senderSpans(text, sender)

	open := make(map[string]string, len(contributions))
	for _, c := range contributions {
		switch {
		case c.Weight > 0:
			open[strings.ToLower(c.Term)] = openSuspicious
		case c.Weight < 0:
			open[strings.ToLower(c.Term)] = openLegitimate
		}
	}

	if len(open) > 0 {
		for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
			if o, ok := open[strings.ToLower(text[loc[0]:loc[1]])]; ok {
				marks.claim(loc[0], loc[1], o, closeMark)
			}
		}
	}
	return marks.render(text)
}

// HighlightGlobal marks case-insensitive substring occurrences of the
// model-wide phishing terms, longest first, all with the suspicious marker.
// Predictions use Highlight; this variant serves renderers that show the
// model's global bias on an arbitrary text.
func (h *Highlighter) HighlightGlobal(text string, terms []core.Contribution, sender string) string {
	marks := h.senderSpans(text, sender)

	phrases := make([]string, 0, len(terms))
	for _, t := range terms {
		if t.Term != "" {
			phrases = append(phrases, t.Term)
		}
	}
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })

	for _, phrase := range phrases {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			marks.claim(loc[0], loc[1], openSuspicious, closeMark)
		}
	}
	return marks.render(text)
}

// Strip removes every marker and returns the original text. Nothing in the
// prediction path calls it; it is kept for consumers of highlighted_text that
// need the plain email back.
func Strip(text string) string {
	return html.UnescapeString(markerPattern.ReplaceAllString(text, ""))
}

// senderSpans finds the sender address when the checker flags it. A missing
// sender is flagged but has no text to wrap.
func (h *Highlighter) senderSpans(text, sender string) spans {
	var marks spans
	if h.senders == nil || sender == "" || sender == "unknown" {
		return marks
	}
	if _, ok := h.senders.IsSuspicious(sender); !ok {
		return marks
	}

	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(sender))
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if addressBoundary(text, loc[0], loc[1]) {
			marks.claim(loc[0], loc[1], openSender, closeSender)
		}
	}
	return marks
}

// addressBoundary reports whether text[start:end] is a whole address and not
// part of a longer one. A trailing dot ending a sentence is a boundary.
func addressBoundary(text string, start, end int) bool {
	if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isAddressRune(r) {
		return false
	}
	if end == len(text) {
		return true
	}
	r, size := utf8.DecodeRuneInString(text[end:])
	if r == '.' {
		next, _ := utf8.DecodeRuneInString(text[end+size:])
		return end+size == len(text) || !isAddressRune(next)
	}
	return !isAddressRune(r)
}

func isAddressRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune("._%+-@", r)
}
