// Package textfix cleans up text pulled out of spreadsheet exports.
//
// Files saved by office tools routinely carry HTML entities, typographic
// quotes, mixed line endings and stray control characters. Fix applies every
// step in a fixed order; the individual steps are exported for callers that
// only want some of them.
package textfix

import (
	"html"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fix applies UnescapeHTML, UncurlQuotes, FixLineBreaks and
// RemoveControlChars, then normalises to NFC.
func Fix(s string) string {
	if s == "" {
		return s
	}
	s = UnescapeHTML(s)
	s = UncurlQuotes(s)
	s = FixLineBreaks(s)
	s = RemoveControlChars(s)
	return norm.NFC.String(s)
}

// UnescapeHTML decodes entities such as "&gt;" and "&#8212;". Text that
// contains a literal '<' is assumed to be markup and left alone.
func UnescapeHTML(s string) string {
	if !strings.Contains(s, "&") || strings.Contains(s, "<") {
		return s
	}
	return html.UnescapeString(s)
}

var quoteReplacer = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'",
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`,
)

// UncurlQuotes replaces typographic single and double quotes with ASCII ones.
func UncurlQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var lineBreakReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u2028", "\n",
	"\u2029", "\n",
	"\u0085", "\n",
)

// FixLineBreaks converts CRLF, CR, NEL and the Unicode line and paragraph
// separators to LF.
func FixLineBreaks(s string) string {
	return lineBreakReplacer.Replace(s)
}

// RemoveControlChars drops C0 controls other than tab, LF, FF and CR, plus
// DEL, byte order marks and interlinear annotation marks.
func RemoveControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\f', r == '\r':
			return r
		case r < 0x20, r == 0x7f:
			return -1
		case r == '\ufeff', r >= '\ufff9' && r <= '\ufffb':
			return -1
		}
		return r
	}, s)
}
