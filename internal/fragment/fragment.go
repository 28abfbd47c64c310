// Package fragment splits transcription text into delivery-sized chunks.
package fragment

import (
	"strings"
	"unicode/utf8"
)

// Split cuts text into in-order chunks of at most max bytes, never bisecting
// a UTF-8 rune: a cut that would land inside a multi-byte rune is moved back
// to the rune's start. Concatenating the chunks reproduces text exactly and
// every chunk is valid UTF-8 whenever the input is. Empty or whitespace-only
// input yields no chunks; the caller is expected to send its
// empty-transcription notice instead.
func Split(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chunks := make([]string, 0, (len(text)+max-1)/max)
	for start := 0; start < len(text); {
		end := start + max
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := end
		for cut > start && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == start {
			// A single rune wider than max: emit it whole rather than
			// corrupt it.
			_, size := utf8.DecodeRuneInString(text[start:])
			cut = start + size
		}

		chunks = append(chunks, text[start:cut])
		start = cut
	}
	return chunks
}
