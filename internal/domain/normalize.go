package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxOutlineDigits bounds a leading numbering token ("1", "14", "3.0").
// Longer digit runs such as years are treated as part of the title.
const maxOutlineDigits = 3

// headingMarker starts the disambiguation heading written by the deduplicator.
const headingMarker = "## "

// genericPrefixes are leading words that carry no identity in a title.
var genericPrefixes = map[string]struct{}{
	"course":       {},
	"module":       {},
	"chapter":      {},
	"lesson":       {},
	"faq":          {},
	"faqs":         {},
	"part":         {},
	"section":      {},
	"unit":         {},
	"topic":        {},
	"introduction": {},
	"intro":        {},
}

// NormalizeTitle canonicalizes a chapter or lesson title for comparison:
//   - Unicode NFKC, lower case
//   - apostrophes removed, other punctuation and symbols become spaces
//   - whitespace collapsed
//   - leading outline numbering ("1.4 ", "3.0 ", "2) ", "1.4a ") removed
//
// NormalizeTitle(NormalizeTitle(x)) == NormalizeTitle(x).
func NormalizeTitle(text string) string {
	return strings.Join(titleTokens(text), " ")
}

// CleanTitle is NormalizeTitle with generic leading words ("Module 3",
// "FAQ", "Chapter") removed. A title made only of generic words is returned
// in its normalized form.
func CleanTitle(text string) string {
	tokens := titleTokens(text)
	i := 0
	for i < len(tokens)-1 {
		if _, ok := genericPrefixes[tokens[i]]; !ok {
			break
		}
		i++
		for i < len(tokens)-1 && isOutlineNumber(tokens[i]) {
			i++
		}
	}
	return strings.Join(tokens[i:], " ")
}

// Tokenize splits a normalized title into its words.
func Tokenize(text string) []string {
	return titleTokens(text)
}

func titleTokens(text string) []string {
	text = norm.NFKC.String(strings.ToLower(norm.NFKC.String(text)))

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case isApostrophe(r):
			// "don't" -> "dont"
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if n := outlineLen(tokens); n < len(tokens) {
		return tokens[n:]
	}
	// Nothing but numbering: keep it, it is the title.
	return tokens
}

// outlineLen returns how many leading tokens are outline numbering. A
// lettered label such as "4a" only counts after a number ("1.4a"), so a
// title that starts with one keeps it and normalizing stays idempotent.
func outlineLen(tokens []string) int {
	n := 0
	for n < len(tokens) {
		switch {
		case isOutlineNumber(tokens[n]):
			n++
		case n > 0 && isOutlineLabel(tokens[n]):
			return n + 1
		default:
			return n
		}
	}
	return n
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', '‘', '`', 'ʼ':
		return true
	}
	return false
}

func isOutlineNumber(tok string) bool {
	if tok == "" || utf8.RuneCountInString(tok) > maxOutlineDigits {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isOutlineLabel reports whether tok is a short number with one letter
// suffix, as in "4a".
func isOutlineLabel(tok string) bool {
	r, size := utf8.DecodeLastRuneInString(tok)
	if size == len(tok) || !unicode.IsLetter(r) {
		return false
	}
	return isOutlineNumber(tok[:len(tok)-size])
}

// NormalizeContent prepares lesson content for comparison: NFC, line
// endings unified, whitespace runs collapsed to one space, trimmed. Case is
// preserved.
func NormalizeContent(content string) string {
	content = norm.NFC.String(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Join(strings.Fields(content), " ")
}

// ContentLength returns the rune count of the trimmed content.
func ContentLength(content string) int {
	return utf8.RuneCountInString(strings.TrimSpace(content))
}

// DisambiguationHeading renders the heading prepended to a lesson whose
// content duplicates another lesson. Qualifiers are appended in parentheses.
func DisambiguationHeading(title string, qualifiers ...string) string {
	h := headingMarker + strings.TrimSpace(title)
	if len(qualifiers) > 0 {
		h += " (" + strings.Join(qualifiers, ", ") + ")"
	}
	return h + "\n\n"
}

// StripDisambiguation removes a leading disambiguation heading for title,
// if one is present.
func StripDisambiguation(content, title string) string {
	want := NormalizeTitle(title)
	if want == "" {
		return content
	}
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, headingMarker) {
		return content
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	if !strings.HasPrefix(NormalizeTitle(line), want) {
		return content
	}
	return strings.TrimLeft(rest, " \t\r\n")
}

// SameContent reports whether persisted content is equivalent to source
// content. Formatting noise and a disambiguation heading for title are
// ignored.
func SameContent(persisted, source, title string) bool {
	src := NormalizeContent(source)
	if NormalizeContent(persisted) == src {
		return true
	}
	stripped := StripDisambiguation(persisted, title)
	return stripped != persisted && NormalizeContent(stripped) == src
}
