package transcript_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/MrWong99/transcriptqa/internal/transcript"
)

func TestStructuredFileRoundTrip(t *testing.T) {
	t.Parallel()
	tr := loadFixture(t)

	path := filepath.Join(t.TempDir(), "structured.json")
	if err := transcript.SaveStructuredFile(path, tr); err != nil {
		t.Fatalf("SaveStructuredFile: %v", err)
	}
	got, err := transcript.LoadStructuredFile(path)
	if err != nil {
		t.Fatalf("LoadStructuredFile: %v", err)
	}
	if !reflect.DeepEqual(got, tr) {
		t.Error("structured transcript changed across save and load")
	}
}

func TestSaveStructured_FieldNames(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := transcript.SaveStructured(&buf, loadFixture(t)); err != nil {
		t.Fatalf("SaveStructured: %v", err)
	}
	for _, key := range []string{`"metadata"`, `"full_transcript"`, `"num_words"`, `"punctuated_word"`, `"speakers"`} {
		if !bytes.Contains(buf.Bytes(), []byte(key)) {
			t.Errorf("output lacks %s", key)
		}
	}
}

func TestValidate_Violations(t *testing.T) {
	t.Parallel()
	tr := loadFixture(t)
	broken := *tr
	broken.Paragraphs = append([]transcript.Paragraph(nil), tr.Paragraphs...)
	broken.Paragraphs[1].Start = 3.0
	broken.Paragraphs[2].FirstWord = 9

	err := transcript.Validate(&broken)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var ve *transcript.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError in %v", err)
	}
	if _, err := transcript.LoadStructured(bytes.NewReader([]byte(`{"paragraphs":[{"start":1,"end":2}]}`))); err == nil {
		t.Error("LoadStructured must reject a first paragraph not starting at 0")
	}
}
