// Package captions assembles word-level transcription timestamps into a
// WebVTT subtitle document.
package captions

import (
	"fmt"
	"strings"

	"github.com/storyforge/api/internal/model"
)

// maxLineChars is the cue line budget: a word that would push the line past
// it starts a new cue.
const maxLineChars = 40

// Build produces a WebVTT document from an ordered word list. A cue line is
// flushed when the speaker changes, when the next word would overflow the
// line budget, and at the last word. Words with a speaker index are wrapped
// in a voice span. Zero words yield a header-only document.
func Build(words []model.Word) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	var line []string
	var lineLen int
	var start, end int
	var speaker *int

	flush := func() {
		if len(line) == 0 {
			return
		}
		text := strings.Join(line, " ")
		b.WriteString(FormatTimestamp(start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(end))
		b.WriteString("\n")
		if speaker != nil {
			fmt.Fprintf(&b, "<v Speaker %d>%s</v>\n\n", *speaker, text)
		} else {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
		line = nil
		lineLen = 0
	}

	for _, w := range words {
		if len(line) > 0 && (!sameSpeaker(speaker, w.Speaker) || lineLen+1+len(w.Text) > maxLineChars) {
			flush()
		}
		if len(line) == 0 {
			start = w.Start
			speaker = w.Speaker
			lineLen = len(w.Text)
		} else {
			lineLen += 1 + len(w.Text)
		}
		line = append(line, w.Text)
		end = w.End
	}
	flush()

	return b.String()
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FormatTimestamp renders a millisecond offset as HH:MM:SS.mmm,
// zero-padded.
func FormatTimestamp(ms int) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
