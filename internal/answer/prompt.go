package answer

import (
	"strings"

	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

// SystemPrompt is the fixed instruction sent with every question.
const SystemPrompt = "You answer questions about the transcript of an audio recording. " +
	"Use ONLY the provided transcript excerpts to answer. " +
	"If the answer is not in the excerpts, say so. " +
	"Be concise and cite which speaker said what, and when, where it matters. " +
	"Refer to speakers by the names shown in the excerpts, not by numbers."

// FormatExcerpt renders one paragraph as "[m:ss] Name: text".
func FormatExcerpt(p transcript.Paragraph, names *speaker.Directory) string {
	return "[" + transcript.FormatTimestamp(p.Start) + "] " + names.Name(p.Speaker) + ": " + p.Text
}

// BuildUserMessage renders the user turn: the optional summary, every
// evidence paragraph in rank order, then the question.
func BuildUserMessage(summary string, evidence []retrieve.Evidence, names *speaker.Directory, question string) string {
	var sb strings.Builder
	if s := strings.TrimSpace(summary); s != "" {
		sb.WriteString("Summary: ")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Transcript excerpts:\n\n")
	for i, e := range evidence {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(FormatExcerpt(e.Paragraph, names))
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	return sb.String()
}
