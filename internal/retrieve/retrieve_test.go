package retrieve_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

func sp(n int) *int { return &n }

func fixture() *transcript.Transcript {
	texts := []struct {
		speaker *int
		text    string
	}{
		{sp(0), "Welcome back to the show, today we look at the Middle East."},
		{sp(1), "Ehud Barak was prime minister of Israel."},
		{sp(0), "The negotiations at Camp David failed in the summer."},
		{sp(1), "Let us take a short break."},
		{nil, "Music playing."},
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

func evidenceIndices(ev []retrieve.Evidence) []int {
	out := make([]int, len(ev))
	for i, e := range ev {
		out[i] = e.Index
	}
	return out
}

// fakeScorer returns fixed similarities or an error.
type fakeScorer struct {
	sims []float64
	err  error
}

func (f *fakeScorer) Similarities(context.Context, string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sims, nil
}

func TestRetrieve_EmptyTranscript(t *testing.T) {
	t.Parallel()
	r := retrieve.New(&transcript.Transcript{}, nil)
	res, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Evidence) != 0 {
		t.Errorf("expected no evidence, got %d", len(res.Evidence))
	}
}

func TestRetrieve_RelevantParagraphFirst(t *testing.T) {
	t.Parallel()
	tr := fixture()
	r := retrieve.New(tr, search.NewIndex(tr))

	res, err := r.Retrieve(context.Background(), "Who was Ehud Barak?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Evidence) == 0 {
		t.Fatal("expected evidence")
	}
	if got := res.Evidence[0].Index; got != 1 {
		t.Errorf("top evidence = %d, want 1", got)
	}
	if res.LowConfidence {
		t.Error("expected confident result")
	}
	if res.Semantic {
		t.Error("expected lexical ranking")
	}
}

func TestRetrieve_NeverEmptyForUnrelatedQuestion(t *testing.T) {
	t.Parallel()
	r := retrieve.New(fixture(), nil)

	res, err := r.Retrieve(context.Background(), "zzzzzzzzzz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Evidence) == 0 {
		t.Fatal("expected at least one paragraph")
	}
	if !res.LowConfidence {
		t.Error("expected low confidence")
	}
	if got := res.Evidence[0].Index; got != 0 {
		t.Errorf("top evidence = %d, want 0 (ties in transcript order)", got)
	}
}

func TestRetrieve_Budget(t *testing.T) {
	t.Parallel()
	tr := fixture()
	first := utf8.RuneCountInString(tr.Paragraphs[0].Text)
	second := utf8.RuneCountInString(tr.Paragraphs[1].Text)

	tests := []struct {
		name string
		opts []retrieve.Option
		want []int
	}{
		{
			name: "defaults take everything",
			want: []int{0, 1, 2, 3, 4},
		},
		{
			name: "budget fits two paragraphs",
			opts: []retrieve.Option{retrieve.WithContextBudget(first + second)},
			want: []int{0, 1},
		},
		{
			name: "budget below first paragraph still yields one",
			opts: []retrieve.Option{retrieve.WithContextBudget(3)},
			want: []int{0},
		},
		{
			name: "max paragraphs",
			opts: []retrieve.Option{retrieve.WithMaxParagraphs(3)},
			want: []int{0, 1, 2},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// An empty question ties every paragraph at 0.
			res, err := retrieve.New(tr, nil, tc.opts...).Retrieve(context.Background(), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := evidenceIndices(res.Evidence); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("evidence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRetrieve_BudgetNeverExceededBeyondFirst(t *testing.T) {
	t.Parallel()
	tr := fixture()
	const budget = 80
	res, err := retrieve.New(tr, nil, retrieve.WithContextBudget(budget)).Retrieve(context.Background(), "camp david negotiations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := 0
	for _, e := range res.Evidence {
		total += utf8.RuneCountInString(e.Paragraph.Text)
	}
	if len(res.Evidence) > 1 && total > budget {
		t.Errorf("evidence runes = %d, budget %d", total, budget)
	}
	if res.Evidence[0].Index != 2 {
		t.Errorf("top evidence = %d, want 2", res.Evidence[0].Index)
	}
}

func TestRetrieve_SemanticBlend(t *testing.T) {
	t.Parallel()
	tr := fixture()
	scorer := &fakeScorer{sims: []float64{0, 0, 0, 0.9, -0.5}}
	r := retrieve.New(tr, nil, retrieve.WithSemantic(scorer, 1))

	res, err := r.Retrieve(context.Background(), "zzzzzzzzzz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Semantic {
		t.Error("expected semantic ranking")
	}
	if got := res.Evidence[0].Index; got != 3 {
		t.Errorf("top evidence = %d, want 3", got)
	}
	if res.Evidence[0].Score != 0.9 {
		t.Errorf("top score = %v, want 0.9", res.Evidence[0].Score)
	}
	for _, e := range res.Evidence {
		if e.Score < 0 {
			t.Errorf("paragraph %d has negative score %v", e.Index, e.Score)
		}
	}
}

func TestRetrieve_SemanticFallback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		scorer *fakeScorer
	}{
		{"scorer error", &fakeScorer{err: errors.New("embedding backend down")}},
		{"length mismatch", &fakeScorer{sims: []float64{1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := fixture()
			r := retrieve.New(tr, nil, retrieve.WithSemantic(tc.scorer, 0.5))
			res, err := r.Retrieve(context.Background(), "Who was Ehud Barak?")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Semantic {
				t.Error("expected lexical fallback")
			}
			if got := res.Evidence[0].Index; got != 1 {
				t.Errorf("top evidence = %d, want 1", got)
			}
		})
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	t.Parallel()
	r := retrieve.New(fixture(), nil)
	ctx := context.Background()
	a, err := r.Retrieve(ctx, "israel prime minister")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Retrieve(ctx, "israel prime minister")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical questions produced different results")
	}
}

func TestRetrieve_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := retrieve.New(fixture(), nil).Retrieve(ctx, "ehud"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTopK(t *testing.T) {
	t.Parallel()
	r := retrieve.New(fixture(), nil)
	ctx := context.Background()

	got, err := r.TopK(ctx, "ehud barak", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Index != 1 {
		t.Errorf("TopK = %v, want 2 results led by paragraph 1", evidenceIndices(got))
	}

	all, err := r.TopK(ctx, "ehud barak", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("TopK(0) returned %d results, want 5", len(all))
	}
}
