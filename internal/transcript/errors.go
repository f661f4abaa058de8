package transcript

import "fmt"

// MalformedInputError reports raw transcription input that lacks structure the
// builder requires. No transcript is produced.
type MalformedInputError struct {
	// Field is the JSON path of the missing or invalid element.
	Field string
	// Err is the underlying cause, if any.
	Err error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcript: malformed input at %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("transcript: malformed input: %s is missing", e.Field)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// ValidationError reports a structured transcript whose paragraphs do not
// partition the recording.
type ValidationError struct {
	Paragraph int
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transcript: paragraph %d: %s", e.Paragraph, e.Reason)
}
