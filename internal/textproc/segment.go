package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunk is the synthesis engine's input ceiling in characters.
const DefaultMaxChunk = 5000

type span struct{ start, end int }

// sentenceSpans returns byte ranges of sentences. A sentence ends after '.',
// '!' or '?' when followed by whitespace; the separating whitespace belongs
// to neither neighbour.
func sentenceSpans(text string) []span {
	var spans []span
	i := skipSpace(text, 0)
	start := i
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i >= len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(next) {
			continue
		}
		spans = append(spans, span{start, i})
		i = skipSpace(text, i)
		start = i
	}
	end := len(strings.TrimRightFunc(text, unicode.IsSpace))
	if start < end {
		spans = append(spans, span{start, end})
	}
	return spans
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// Sentences splits text at sentence boundaries.
func Sentences(text string) []string {
	spans := sentenceSpans(text)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, text[s.start:s.end])
	}
	return out
}

// Segment packs whole sentences into chunks of at most max characters.
// Whitespace between sentences inside a chunk is kept as-is. A sentence longer
// than max becomes its own chunk instead of being cut.
func Segment(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxChunk
	}
	spans := sentenceSpans(text)
	if len(spans) == 0 {
		return nil
	}

	var chunks []string
	cur := spans[0]
	for _, s := range spans[1:] {
		if utf8.RuneCountInString(text[cur.start:s.end]) > max {
			chunks = append(chunks, text[cur.start:cur.end])
			cur = s
			continue
		}
		cur.end = s.end
	}
	return append(chunks, text[cur.start:cur.end])
}
