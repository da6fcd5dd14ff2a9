// Package chunk splits extracted document text into bounded passages.
//
// Passages are the unit of embedding and retrieval: each one stays below a
// configurable character budget, keeps the source reading order, and is
// produced deterministically so re-ingesting the same document yields the
// same chunk set.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default passage budget in characters. Roughly 250
// tokens for Latin scripts, which sits comfortably inside the context window
// of the MiniLM family used for embedding.
const DefaultMaxChars = 1000

// Splitter produces ordered passages from raw text.
//
// The zero value is not usable; construct with New.
type Splitter struct {
	maxChars int
	overlap  int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithMaxChars sets the passage budget in characters.
func WithMaxChars(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithOverlap sets the number of trailing characters from a passage that may
// be repeated at the head of the next one. Overlap is applied at sentence
// granularity: the last sentence of a passage is carried over when it fits
// the overlap budget. Zero disables overlap.
func WithOverlap(n int) Option {
	return func(s *Splitter) {
		if n >= 0 {
			s.overlap = n
		}
	}
}

// New creates a Splitter.
func New(opts ...Option) *Splitter {
	s := &Splitter{maxChars: DefaultMaxChars}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.maxChars {
		s.overlap = s.maxChars / 4
	}
	return s
}

// Split cuts text into ordered passages.
//
// Guarantees:
//   - every passage is non-empty after trimming and at most maxChars runes
//   - passages appear in source order and no trailing content is dropped
//   - identical input yields identical output
//   - empty or whitespace-only input yields a nil slice, not an error
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)

	var (
		passages []string
		current  strings.Builder
		lastSent string
	)

	flush := func() {
		passage := strings.TrimSpace(current.String())
		if passage != "" {
			passages = append(passages, passage)
		}
		current.Reset()
	}

	for _, sent := range sentences {
		// Sentences that alone exceed the budget are hard-split; nothing
		// may be silently dropped.
		if utf8.RuneCountInString(sent) > s.maxChars {
			flush()
			for _, piece := range hardSplit(sent, s.maxChars) {
				passages = append(passages, piece)
			}
			lastSent = ""
			continue
		}

		if current.Len() > 0 && utf8.RuneCountInString(current.String())+utf8.RuneCountInString(sent)+1 > s.maxChars {
			flush()
			if s.overlap > 0 && lastSent != "" &&
				utf8.RuneCountInString(lastSent) <= s.overlap &&
				utf8.RuneCountInString(lastSent)+utf8.RuneCountInString(sent)+1 <= s.maxChars {
				current.WriteString(lastSent)
			}
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sent)
		lastSent = sent
	}
	flush()

	return passages
}

// splitSentences cuts text at sentence terminators and paragraph breaks,
// keeping the terminator attached to its sentence. Whitespace runs inside a
// sentence collapse to single spaces so layout line breaks do not survive
// into passages.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	emit := func() {
		sent := strings.Join(strings.Fields(current.String()), " ")
		if sent != "" {
			sentences = append(sentences, sent)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		// Paragraph break ends the current sentence even without punctuation.
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			emit()
			continue
		}

		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			// Only treat the terminator as a boundary when followed by
			// whitespace or end of input, so "3.14" stays intact.
			if i+1 >= len(runes) || isSpace(runes[i+1]) {
				emit()
			}
		}
	}
	emit()

	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// hardSplit cuts an over-long sentence into maxChars-rune windows.
func hardSplit(sent string, maxChars int) []string {
	var pieces []string
	runes := []rune(sent)
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// TokenEstimate approximates the token count of a passage by whitespace word
// count. Good enough for the stored token_count column; exact tokenization
// belongs to the embedding provider.
func TokenEstimate(text string) int {
	return len(strings.Fields(text))
}
