package pricing

// Seed populates t with the fixed pricing list described in §4.1: the
// Anthropic 3.5/3.7/4.0/4.1/4.5 families, the GPT-5 family, and the Gemini
// 2.5/3.0 families. Prices are per-million-token USD, as decimal strings.
func Seed(t *Table) {
	for _, r := range []struct {
		id, input, output, cacheRead, cacheCreation string
	}{
		// Anthropic Claude family
		{"claude-3-5-sonnet", "3", "15", "0.3", "3.75"},
		{"claude-3-5-haiku", "0.8", "4", "0.08", "1"},
		{"claude-3-7-sonnet", "3", "15", "0.3", "3.75"},
		{"claude-sonnet-4", "3", "15", "0.3", "3.75"},
		{"claude-opus-4", "15", "75", "1.5", "18.75"},
		{"claude-opus-4-1", "15", "75", "1.5", "18.75"},
		{"claude-sonnet-4-5", "3", "15", "0.3", "3.75"},
		{"claude-haiku-4-5", "1", "5", "0.1", "1.25"},
		{"claude-opus-4-5", "5", "25", "0.5", "6.25"},

		// OpenAI GPT-5 family
		{"gpt-5", "1.25", "10", "0.125", "1.25"},
		{"gpt-5-mini", "0.25", "2", "0.025", "0.25"},
		{"gpt-5-nano", "0.05", "0.4", "0.005", "0.05"},
		{"gpt-5-codex", "1.25", "10", "0.125", "1.25"},

		// Gemini family
		{"gemini-2.5-pro", "1.25", "10", "0.31", "0"},
		{"gemini-2.5-flash", "0.3", "2.5", "0.075", "0"},
		{"gemini-2.5-flash-lite", "0.1", "0.4", "0.025", "0"},
		{"gemini-3.0-pro", "2", "12", "0.5", "0"},
		{"gemini-3.0-flash", "0.4", "3", "0.1", "0"},
	} {
		t.Set(row(r.id, r.input, r.output, r.cacheRead, r.cacheCreation))
	}
}
