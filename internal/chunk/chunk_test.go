package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_Empty(t *testing.T) {
	s := New()

	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := s.Split(input); got != nil {
			t.Errorf("Split(%q) = %v, want nil", input, got)
		}
	}
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	s := New(WithMaxChars(50))

	got := s.Split("A. B. C.")
	if len(got) != 1 {
		t.Fatalf("Split produced %d passages, want 1: %v", len(got), got)
	}
	if got[0] != "A. B. C." {
		t.Errorf("passage = %q, want %q", got[0], "A. B. C.")
	}
}

func TestSplit_BudgetRespected(t *testing.T) {
	s := New(WithMaxChars(20))

	text := "One sentence here. Another sentence here. And one more trailing sentence."
	passages := s.Split(text)

	if len(passages) == 0 {
		t.Fatal("Split produced no passages")
	}
	for i, p := range passages {
		if p == "" {
			t.Errorf("passage %d is empty", i)
		}
		if utf8.RuneCountInString(p) > 20 {
			t.Errorf("passage %d exceeds budget: %q (%d runes)", i, p, utf8.RuneCountInString(p))
		}
	}
}

func TestSplit_PreservesOrderAndContent(t *testing.T) {
	s := New(WithMaxChars(30))

	text := "First point. Second point. Third point. Fourth point. Fifth point."
	passages := s.Split(text)

	joined := strings.Join(passages, " ")
	words := strings.Fields(text)
	pos := 0
	for _, w := range words {
		idx := strings.Index(joined[pos:], w)
		if idx < 0 {
			t.Fatalf("word %q missing or out of order in %q", w, joined)
		}
		pos += idx + len(w)
	}

	// Trailing content must never be dropped.
	if !strings.Contains(joined, "Fifth point.") {
		t.Errorf("trailing sentence dropped: %v", passages)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s := New(WithMaxChars(40))
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota kappa. Lambda mu."

	first := s.Split(text)
	for range 10 {
		again := s.Split(text)
		if len(again) != len(first) {
			t.Fatalf("nondeterministic passage count: %d vs %d", len(again), len(first))
		}
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("nondeterministic passage %d: %q vs %q", i, first[i], again[i])
			}
		}
	}
}

func TestSplit_LongSentenceHardSplit(t *testing.T) {
	s := New(WithMaxChars(10))

	text := strings.Repeat("x", 35) + "."
	passages := s.Split(text)

	var total int
	for i, p := range passages {
		if utf8.RuneCountInString(p) > 10 {
			t.Errorf("passage %d exceeds budget: %q", i, p)
		}
		total += strings.Count(p, "x")
	}
	if total != 35 {
		t.Errorf("hard split lost content: %d of 35 runes survive", total)
	}
}

func TestSplit_ParagraphBreak(t *testing.T) {
	s := New(WithMaxChars(100))

	passages := s.Split("no terminator here\n\nsecond paragraph")
	joined := strings.Join(passages, " ")
	if !strings.Contains(joined, "no terminator here") || !strings.Contains(joined, "second paragraph") {
		t.Errorf("paragraph content lost: %v", passages)
	}
}

func TestSplit_DecimalNotABoundary(t *testing.T) {
	s := New(WithMaxChars(100))

	passages := s.Split("Pi is 3.14159 exactly. Next sentence.")
	if len(passages) != 1 {
		t.Fatalf("passages = %v, want single passage", passages)
	}
	if !strings.Contains(passages[0], "3.14159") {
		t.Errorf("decimal split apart: %q", passages[0])
	}
}

func TestSplit_Overlap(t *testing.T) {
	s := New(WithMaxChars(30), WithOverlap(15))

	text := "Short one. Short two. Short three. Short four."
	passages := s.Split(text)
	if len(passages) < 2 {
		t.Skipf("need at least 2 passages to observe overlap, got %v", passages)
	}

	// With sentence-level overlap the head of a later passage repeats the
	// tail sentence of the previous one.
	var overlapped bool
	for i := 1; i < len(passages); i++ {
		prevTail := passages[i-1]
		if idx := strings.LastIndex(prevTail, ". "); idx >= 0 {
			prevTail = prevTail[idx+2:]
		}
		if strings.HasPrefix(passages[i], prevTail) {
			overlapped = true
		}
	}
	if !overlapped {
		t.Errorf("no overlap observed in %v", passages)
	}
}

func TestTokenEstimate(t *testing.T) {
	if got := TokenEstimate("three word  count"); got != 3 {
		t.Errorf("TokenEstimate = %d, want 3", got)
	}
	if got := TokenEstimate(""); got != 0 {
		t.Errorf("TokenEstimate(\"\") = %d, want 0", got)
	}
}
