package script

import (
	"strings"
	"testing"
)

func TestSplitParagraphs_TwoParagraphs(t *testing.T) {
	got := SplitParagraphs("Hello world.\n\nSecond paragraph.")

	if len(got) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %q", len(got), got)
	}
	if got[0] != "Hello world." {
		t.Errorf("paragraph 0: got %q", got[0])
	}
	if got[1] != "Second paragraph." {
		t.Errorf("paragraph 1: got %q", got[1])
	}
}

func TestSplitParagraphs_DropsWhitespaceOnlyChunks(t *testing.T) {
	got := SplitParagraphs("First.\n\n   \n\nSecond.\n\n\n\nThird.\n\n")

	if len(got) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %q", len(got), got)
	}
	want := []string{"First.", "Second.", "Third."}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitParagraphs_Empty(t *testing.T) {
	if got := SplitParagraphs(""); len(got) != 0 {
		t.Errorf("expected no paragraphs, got %q", got)
	}
	if got := SplitParagraphs("  \n\n \n\n"); len(got) != 0 {
		t.Errorf("expected no paragraphs for whitespace input, got %q", got)
	}
}

func TestNormalizeForSpeech_IsolatesPauseMarkup(t *testing.T) {
	got := NormalizeForSpeech("Line one.<#2.5#>Line two.")
	want := "Line one.\n<#2.5#>\nLine two."

	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeForSpeech_CollapsesParagraphBreaks(t *testing.T) {
	got := NormalizeForSpeech("One.\n\nTwo.\n\n\nThree.")
	want := "One.\nTwo.\nThree."

	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeForSpeech_IntegerPause(t *testing.T) {
	got := NormalizeForSpeech("Wait.<#3#>Go.")
	want := "Wait.\n<#3#>\nGo."

	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("A short sentence.", 500)
	if len(chunks) != 1 || chunks[0] != "A short sentence." {
		t.Errorf("got %q", chunks)
	}
}

func TestChunkText_PrefersSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence is a bit longer than that."
	chunks := ChunkText(text, 30)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %q", chunks)
	}
	if chunks[0] != "First sentence here. " {
		t.Errorf("chunk 0: got %q", chunks[0])
	}
}

func TestChunkText_HardCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("a", 1200)
	chunks := ChunkText(text, 500)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 500 || len(chunks[1]) != 500 || len(chunks[2]) != 200 {
		t.Errorf("chunk lengths: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkText_RespectsBudget(t *testing.T) {
	text := strings.Repeat("One sentence. Another one! A question? ", 60)
	for _, c := range ChunkText(text, 500) {
		if len(c) > 500 {
			t.Errorf("chunk exceeds budget: %d bytes", len(c))
		}
	}
}

// Concatenating the chunks must reproduce the input byte for byte, so a
// deterministic synthesizer produces identical audio whether the script is
// synthesized whole or chunk by chunk.
func TestChunkText_ConcatenationIsLossless(t *testing.T) {
	inputs := []string{
		"Hello world. This is a test! Does it work? Yes.",
		strings.Repeat("A fairly ordinary sentence of middling length. ", 40),
		"No punctuation at all " + strings.Repeat("word ", 200),
		NormalizeForSpeech("Intro.<#1.5#>After the pause.\n\nNew paragraph."),
	}

	for _, in := range inputs {
		var rebuilt strings.Builder
		for _, c := range ChunkText(in, 100) {
			rebuilt.WriteString(c)
		}
		if rebuilt.String() != in {
			t.Errorf("chunking lost bytes for input %.40q...", in)
		}
	}
}

func TestChunkText_PauseTokenNotSplit(t *testing.T) {
	text := NormalizeForSpeech("First part of the narration ends here.<#2#>And then it continues with more words.")
	for _, c := range ChunkText(text, 45) {
		if strings.Contains(c, "<#") && !strings.Contains(c, "#>") {
			t.Errorf("pause token split across chunks: %q", c)
		}
	}
}
