// Package script holds the text-segmentation heuristics of the generation
// pipeline: paragraph splitting for segments, pause-markup expansion and
// character-budget chunking for speech synthesis.
//
// The splitters are heuristic, not semantic. Known edge cases: whitespace-only
// paragraphs are dropped, abbreviations ending in a period count as sentence
// boundaries, and non-Latin scripts without [.!?] punctuation fall back to
// hard cuts at the budget.
package script

import (
	"regexp"
	"strings"
)

var (
	paragraphRe = regexp.MustCompile(`\n{2,}`)
	pauseRe     = regexp.MustCompile(`<#(\d+(\.\d{1,2})?)#>`)
)

// SplitParagraphs splits a script into segment texts on blank-line
// boundaries (two or more consecutive newlines). Chunks are trimmed and
// whitespace-only chunks are dropped.
func SplitParagraphs(text string) []string {
	parts := paragraphRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// NormalizeForSpeech prepares a script for synthesis: paragraph breaks
// collapse to single newlines and every pause token of the form <#N#> or
// <#N.NN#> is isolated onto its own line, so it is never merged into spoken
// text nor split across chunk boundaries.
func NormalizeForSpeech(text string) string {
	text = paragraphRe.ReplaceAllString(text, "\n")
	return pauseRe.ReplaceAllString(text, "\n<#$1#>\n")
}

// ChunkText splits text into chunks of at most max bytes, preferring to cut
// after sentence-ending punctuation or a newline, falling back to a hard cut
// at the budget. Concatenating the returned chunks reproduces the input
// byte for byte.
func ChunkText(text string, max int) []string {
	if max <= 0 || text == "" {
		return nil
	}

	var chunks []string
	for len(text) > max {
		cut := lastBoundary(text[:max])
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// lastBoundary returns the index just past the last sentence boundary in s:
// a '.', '!' or '?' followed by whitespace (the whitespace run is kept with
// the preceding chunk), or a newline. Returns 0 when s has no boundary.
func lastBoundary(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == '\n' {
			return i + 1
		}
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 == len(s) {
			// Punctuation at the exact budget edge: cannot tell whether a
			// space follows, take the cut anyway.
			return i + 1
		}
		if isSpace(s[i+1]) {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			return j
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
