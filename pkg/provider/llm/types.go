package llm

// Message is one turn of a prompt.
type Message struct {
	Role    string
	Content string
	Name    string
}

// ModelCapabilities are the token limits of a model.
type ModelCapabilities struct {
	// ContextWindow is the token limit for prompt plus reply.
	ContextWindow int

	// MaxOutputTokens is the longest reply the model can produce.
	MaxOutputTokens int
}

// PromptBudget is the number of prompt tokens that fit next to a reply of
// maxTokens. It is 0 when the window is unknown.
func (c ModelCapabilities) PromptBudget(maxTokens int) int {
	if c.ContextWindow <= 0 {
		return 0
	}
	return max(c.ContextWindow-maxTokens, 1)
}

// EstimateTokens approximates the token count of messages at four bytes per
// token plus four tokens of role framing per message. It overestimates for
// English prose, which is the safe direction when fitting a context window.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total
}
