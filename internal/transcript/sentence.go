package transcript

import (
	"strings"
	"unicode/utf8"
)

// closers are ignored when they follow terminal punctuation.
const closers = "\"')]}»”’"

// splitSentences groups words into sentences ending at a word whose
// punctuated form ends in '.', '?' or '!' (ignoring trailing closing quotes
// or brackets). Words without any terminal punctuation form one sentence.
// Blank words are skipped, so no sentence is empty.
func splitSentences(words []Word) []Sentence {
	out := make([]Sentence, 0)
	var (
		buf   []string
		start float64
		end   float64
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, Sentence{Text: strings.Join(buf, " "), Start: start, End: end})
		buf = nil
	}
	for _, w := range words {
		tok := strings.TrimSpace(w.PunctuatedWord)
		if tok == "" {
			continue
		}
		if len(buf) == 0 {
			start = w.Start
		}
		buf = append(buf, tok)
		end = w.End
		if endsSentence(tok) {
			flush()
		}
	}
	flush()
	return out
}

func endsSentence(tok string) bool {
	tok = strings.TrimRight(tok, closers)
	r, _ := utf8.DecodeLastRuneInString(tok)
	return r == '.' || r == '?' || r == '!'
}

// cleanSentences drops blank upstream sentences and trims the rest.
func cleanSentences(src []Sentence) []Sentence {
	out := make([]Sentence, 0, len(src))
	for _, s := range src {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, Sentence{Text: text, Start: s.Start, End: s.End})
	}
	return out
}

func joinSentences(ss []Sentence) string {
	texts := make([]string, len(ss))
	for i, s := range ss {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}
