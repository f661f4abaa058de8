package llm

import "strings"

// defaultCapabilities applies to models not listed in knownModels.
var defaultCapabilities = ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}

// knownModels is matched top to bottom against the lowercased model name;
// more specific names come first. A pattern ending in "*" is a prefix, any
// other pattern is a substring.
var knownModels = []struct {
	pattern string
	caps    ModelCapabilities
}{
	{"gpt-5*", ModelCapabilities{400_000, 128_000}},
	{"gpt-4.1*", ModelCapabilities{1_047_576, 32_768}},
	{"gpt-4o*", ModelCapabilities{128_000, 16_384}},
	{"gpt-4-turbo*", ModelCapabilities{128_000, 4_096}},
	{"gpt-4*", ModelCapabilities{8_192, 4_096}},
	{"gpt-3.5-turbo*", ModelCapabilities{16_385, 4_096}},
	{"o1-mini*", ModelCapabilities{128_000, 65_536}},
	{"o1*", ModelCapabilities{200_000, 100_000}},
	{"o3*", ModelCapabilities{200_000, 100_000}},
	{"o4*", ModelCapabilities{200_000, 100_000}},
	{"claude-3-opus", ModelCapabilities{200_000, 4_096}},
	{"claude*", ModelCapabilities{200_000, 8_192}},
	{"gemini-1.5-pro", ModelCapabilities{2_097_152, 8_192}},
	{"gemini-1.5-flash", ModelCapabilities{1_048_576, 8_192}},
	{"gemini-2", ModelCapabilities{1_048_576, 8_192}},
	{"gemini*", ModelCapabilities{128_000, 8_192}},
	{"deepseek*", ModelCapabilities{64_000, 8_192}},
	{"mistral-large*", ModelCapabilities{128_000, 8_192}},
}

// CapabilitiesFor returns the token limits of a hosted model by name.
// Unknown and self-hosted models get a 128k window.
func CapabilitiesFor(model string) ModelCapabilities {
	name := strings.ToLower(model)
	for _, m := range knownModels {
		if p, ok := strings.CutSuffix(m.pattern, "*"); ok {
			if strings.HasPrefix(name, p) {
				return m.caps
			}
			continue
		}
		if strings.Contains(name, m.pattern) {
			return m.caps
		}
	}
	return defaultCapabilities
}
