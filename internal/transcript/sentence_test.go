package transcript

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	w := func(s string) Word { return Word{PunctuatedWord: s} }
	tests := []struct {
		name  string
		words []Word
		want  []string
	}{
		{"no punctuation", []Word{w("just"), w("talking")}, []string{"just talking"}},
		{"terminal marks", []Word{w("Yes."), w("Why?"), w("Go!"), w("now")}, []string{"Yes.", "Why?", "Go!", "now"}},
		{"closing quote", []Word{w(`"Stop.”`), w("He"), w("left.)")}, []string{`"Stop.”`, "He left.)"}},
		{"blank words skipped", []Word{w(" "), w("Hi."), w("")}, []string{"Hi."}},
		{"nothing", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := make([]string, 0)
			for _, s := range splitSentences(tt.words) {
				got = append(got, s.Text)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSentences = %q, want %q", got, tt.want)
			}
		})
	}
}
