package transcribe

import (
	"strings"

	"example.com/soundsright/internal/types"
)

// AlignLyrics replaces recognized words with the provided lyrics word by
// word, keeping the recognized timestamps. Alignment stops when the lyrics
// run out; trailing recognized words are dropped from the aligned output.
func AlignLyrics(lyrics string, segments []types.Segment) []types.Segment {
	if lyrics == "" {
		return segments
	}
	words := strings.Fields(lyrics)

	aligned := make([]types.Segment, 0, len(segments))
	next := 0
	for _, segment := range segments {
		var replaced []types.Word
		for _, w := range segment.Words {
			if next >= len(words) {
				break
			}
			replaced = append(replaced, types.Word{
				Word:  words[next],
				Start: w.Start,
				End:   w.End,
			})
			next++
		}

		texts := make([]string, len(replaced))
		for i, w := range replaced {
			texts[i] = w.Word
		}
		aligned = append(aligned, types.Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  strings.Join(texts, " "),
			Words: replaced,
		})
	}
	return aligned
}
