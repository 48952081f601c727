// Package textproc turns extracted article text into speakable, chunked input
// for the speech engine.
package textproc

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reExtraNewlines = regexp.MustCompile(`\n{3,}`)
	reWhitespace    = regexp.MustCompile(`\s+`)
	reTitleAbbrev   = regexp.MustCompile(`\b(Mr|Mrs|Ms|Dr|Prof|Sr|Jr)(\s)`)
	reSentenceEnd   = regexp.MustCompile(`([.!?])\s+`)
)

// Normalize applies the speech rules in order: paragraph collapse, whitespace
// collapse, title-abbreviation periods, and a paragraph break after every
// sentence terminator. The output is deterministic for a given input.
func Normalize(text string) string {
	out := reExtraNewlines.ReplaceAllString(text, "\n\n")
	out = reWhitespace.ReplaceAllString(out, " ")
	out = reTitleAbbrev.ReplaceAllString(out, "$1.$2")
	out = reSentenceEnd.ReplaceAllString(out, "$1\n\n")
	return strings.TrimSpace(out)
}

// SecondsPerWord is the speaking-rate estimate used for episode durations.
const SecondsPerWord = 0.4

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateDurationSeconds approximates spoken length from the word count.
// Any non-empty text is at least one second long.
func EstimateDurationSeconds(text string) int {
	words := WordCount(text)
	if words == 0 {
		return 0
	}
	secs := int(math.Round(float64(words) * SecondsPerWord))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// FallbackTitle derives a title from the first sentence, capped at max runes.
func FallbackTitle(text string, max int) string {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return ""
	}
	title := strings.TrimSpace(reWhitespace.ReplaceAllString(sentences[0], " "))
	if max > 0 && utf8.RuneCountInString(title) > max {
		r := []rune(title)
		title = strings.TrimSpace(string(r[:max-1])) + "…"
	}
	return title
}
