// Package chunking turns extracted text into sentence units, size-bounded
// overlapping windows, and evenly spread samples of those windows.
package chunking

import (
	"regexp"
	"strings"
	"unicode"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Segment splits text into trimmed, non-empty sentence-like units in order.
// A blank line always ends a unit. Inside a paragraph a unit ends after a run
// of terminal punctuation that is followed by whitespace and a token starting
// with an uppercase letter; "3.5 kg" and "e.g. the" stay whole.
func Segment(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	out := []string{}
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		out = append(out, splitParagraph(para)...)
	}
	return out
}

func splitParagraph(para string) []string {
	runes := []rune(para)
	n := len(runes)
	var out []string
	start := 0
	for i := 0; i < n; i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i
		for j < n && (isTerminal(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j >= n || !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		k := j
		for k < n && unicode.IsSpace(runes[k]) {
			k++
		}
		if k < n && unicode.IsUpper(runes[k]) {
			if unit := strings.TrimSpace(string(runes[start:j])); unit != "" {
				out = append(out, unit)
			}
			start = k
		}
		i = k - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '’', '”':
		return true
	}
	return false
}
