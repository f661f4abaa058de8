package search_test

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

func sp(n int) *int { return &n }

func fixture() *transcript.Transcript {
	texts := []struct {
		speaker *int
		text    string
	}{
		{sp(0), "Hello, Ehud. How are you?"},
		{sp(1), "I'm fine. Thanks for asking about the budget."},
		{sp(0), "Let's talk budget and the Iran question."},
		{nil, "The quick fox jumped over the fence."},
		{sp(1), "Budgets are always late in Iran, Ehud said."},
	}
	t := &transcript.Transcript{}
	for i, p := range texts {
		t.Paragraphs = append(t.Paragraphs, transcript.Paragraph{
			Speaker: p.speaker,
			Start:   float64(i * 10),
			End:     float64(i*10 + 10),
			Text:    p.text,
		})
	}
	return t
}

func indices(rs []search.Result) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Index
	}
	return out
}

func TestSearch_EmptyQueryListsInOrderCapped(t *testing.T) {
	t.Parallel()
	tr := &transcript.Transcript{}
	for i := range 150 {
		tr.Paragraphs = append(tr.Paragraphs, transcript.Paragraph{Text: fmt.Sprintf("paragraph number %d", i)})
	}
	ix := search.NewIndex(tr)

	got := ix.Search("   ", search.Filters{})
	if len(got) != search.DefaultMaxResults {
		t.Fatalf("expected %d results, got %d", search.DefaultMaxResults, len(got))
	}
	for i, r := range got {
		if r.Index != i || r.Score != 0 {
			t.Fatalf("result %d = (index %d, score %v), want (%d, 0)", i, r.Index, r.Score, i)
		}
	}

	if got := search.NewIndex(tr, search.WithMaxResults(7)).Search("", search.Filters{}); len(got) != 7 {
		t.Errorf("WithMaxResults(7): got %d results", len(got))
	}
}

func TestSearch_TypoTolerance(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())

	got := ix.Search("Ehdu", search.Filters{})
	if !reflect.DeepEqual(indices(got), []int{0, 4}) {
		t.Fatalf("Ehdu matched %v, want [0 4]", indices(got))
	}
	for _, r := range got {
		if r.Score < search.DefaultFuzzyThreshold || r.Score >= 1 {
			t.Errorf("paragraph %d: fuzzy score %v out of range", r.Index, r.Score)
		}
	}
}

func TestSearch_UnrelatedQueryFindsNothing(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())
	for _, q := range []string{"qzxwvkjpfy", "xkcdmrtplw", "zzzzzzzzzz"} {
		if got := ix.Search(q, search.Filters{}); len(got) != 0 {
			t.Errorf("%q matched %v", q, indices(got))
		}
	}
}

func TestSearch_SubstringRanksFirst(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())

	got := ix.Search("budget", search.Filters{})
	// Substring hits score 1 and keep transcript order; paragraph 4 only
	// contains "budgets", which is also a substring hit.
	if !reflect.DeepEqual(indices(got), []int{1, 2, 4}) {
		t.Fatalf("budget matched %v", indices(got))
	}
	for _, r := range got {
		if r.Score != 1 {
			t.Errorf("paragraph %d: score %v, want 1", r.Index, r.Score)
		}
	}

	got = ix.Search("budgte", search.Filters{})
	if len(got) == 0 || got[0].Score >= 1 {
		t.Fatalf("typo query should match fuzzily, got %+v", got)
	}
}

func TestSearch_Filters(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())

	t.Run("speaker", func(t *testing.T) {
		t.Parallel()
		got := ix.Search("", search.Filters{Speaker: sp(1)})
		if !reflect.DeepEqual(indices(got), []int{1, 4}) {
			t.Errorf("speaker 1 = %v", indices(got))
		}
	})
	t.Run("entity ignores case", func(t *testing.T) {
		t.Parallel()
		got := ix.Search("", search.Filters{Entity: "IRAN"})
		if !reflect.DeepEqual(indices(got), []int{2, 4}) {
			t.Errorf("entity IRAN = %v", indices(got))
		}
	})
	t.Run("conjunction", func(t *testing.T) {
		t.Parallel()
		got := ix.Search("budget", search.Filters{Speaker: sp(0), Entity: "iran"})
		if !reflect.DeepEqual(indices(got), []int{2}) {
			t.Errorf("budget+speaker 0+iran = %v", indices(got))
		}
	})
	t.Run("filters only narrow", func(t *testing.T) {
		t.Parallel()
		filters := []search.Filters{
			{Speaker: sp(0)}, {Speaker: sp(1)}, {Speaker: sp(9)},
			{Entity: "ehud"}, {Entity: "nobody"},
			{Speaker: sp(1), Entity: "budget"},
		}
		for _, q := range []string{"", "budget", "Ehdu", "the quick"} {
			base := len(ix.Search(q, search.Filters{}))
			for _, f := range filters {
				if n := len(ix.Search(q, f)); n > base {
					t.Errorf("query %q with %+v returned %d > %d unfiltered", q, f, n, base)
				}
			}
		}
	})
}

func TestScore(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())

	if got := ix.Score(""); len(got) != ix.Len() {
		t.Fatalf("Score length %d, want %d", len(got), ix.Len())
	}
	scores := ix.Score("What did Ehud say about the Iran budget?")
	if scores[4] <= scores[3] || scores[2] <= scores[3] {
		t.Errorf("expected paragraphs on Iran and budget to outrank the fox: %v", scores)
	}
	for i, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("score[%d] = %v out of [0,1]", i, s)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"  Hello\t\nWORLD ": "hello world",
		"ＡＢＣ Straße":       "abc strasse",
		"":                  "",
	}
	for in, want := range tests {
		if got := search.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
	if got := search.Tokens("it's 42-ish"); !reflect.DeepEqual(got, []string{"it", "s", "42", "ish"}) {
		t.Errorf("Tokens = %q", got)
	}
}

func TestParseSpeaker(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    *int
		wantErr bool
	}{
		{"", nil, false},
		{" 3 ", sp(3), false},
		{"0", sp(0), false},
		{"abc", nil, true},
		{"1.5", nil, true},
		{"-1", nil, true},
	}
	for _, tt := range tests {
		got, err := search.ParseSpeaker(tt.in)
		if tt.wantErr {
			var iq *search.InvalidQueryError
			if !errors.As(err, &iq) || iq.Param != "speaker" {
				t.Errorf("ParseSpeaker(%q): expected *InvalidQueryError, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSpeaker(%q): unexpected error %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSpeaker(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSearch_Concurrent(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(fixture())
	want := indices(ix.Search("Ehdu", search.Filters{}))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := indices(ix.Search("Ehdu", search.Filters{})); !reflect.DeepEqual(got, want) {
				t.Errorf("concurrent search = %v, want %v", got, want)
			}
		}()
	}
	wg.Wait()
}

func TestNewIndex_NilTranscript(t *testing.T) {
	t.Parallel()
	ix := search.NewIndex(nil)
	if ix.Len() != 0 || len(ix.Search("anything", search.Filters{})) != 0 {
		t.Error("nil transcript must yield an empty index")
	}
}
