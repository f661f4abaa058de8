package llm

import "testing"

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	msgs := []Message{{Role: "user", Content: "Hello world"}} // 11 bytes: 3 + 4 framing
	if got := EstimateTokens(msgs); got != 7 {
		t.Errorf("EstimateTokens = %d, want 7", got)
	}
	if got := EstimateTokens(nil); got != 0 {
		t.Errorf("EstimateTokens(nil) = %d, want 0", got)
	}
}

func TestCapabilitiesFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model      string
		wantWindow int
		wantOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"GPT-4o", 128_000, 16_384},
		{"gpt-4.1-nano", 1_047_576, 32_768},
		{"gpt-4-turbo-preview", 128_000, 4_096},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"o3-mini", 200_000, 100_000},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"claude-sonnet-4-5", 200_000, 8_192},
		{"models/gemini-1.5-pro-latest", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"deepseek-chat", 64_000, 8_192},
		{"llama3.1:8b", 128_000, 4_096},
		{"", 128_000, 4_096},
	}
	for _, tc := range tests {
		got := CapabilitiesFor(tc.model)
		if got.ContextWindow != tc.wantWindow || got.MaxOutputTokens != tc.wantOutput {
			t.Errorf("CapabilitiesFor(%q) = %+v, want window %d output %d", tc.model, got, tc.wantWindow, tc.wantOutput)
		}
	}
}

func TestPromptBudget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		caps      ModelCapabilities
		maxTokens int
		want      int
	}{
		{ModelCapabilities{ContextWindow: 8_192}, 1_000, 7_192},
		{ModelCapabilities{ContextWindow: 8_192}, 0, 8_192},
		{ModelCapabilities{ContextWindow: 512}, 1_000, 1},
		{ModelCapabilities{}, 1_000, 0},
	}
	for _, tc := range tests {
		if got := tc.caps.PromptBudget(tc.maxTokens); got != tc.want {
			t.Errorf("%+v.PromptBudget(%d) = %d, want %d", tc.caps, tc.maxTokens, got, tc.want)
		}
	}
}

func TestTruncated(t *testing.T) {
	t.Parallel()
	var nilResp *CompletionResponse
	if nilResp.Truncated() {
		t.Error("nil response reported truncated")
	}
	if !(&CompletionResponse{FinishReason: FinishLength}).Truncated() {
		t.Error("length finish not reported truncated")
	}
	if (&CompletionResponse{FinishReason: "stop"}).Truncated() {
		t.Error("stop finish reported truncated")
	}
}
