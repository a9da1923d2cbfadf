package model

import "testing"

func TestDetectProviderTypeClaudePlain(t *testing.T) {
	p := Provider{SettingsConfig: []byte(`{"base_url":"https://api.anthropic.com"}`)}
	if got := DetectProviderType(AppFamilyClaude, p, string(AuthStrategyAnthropic), "sk-ant-1"); got != ProviderTypeClaude {
		t.Fatalf("want %s, got %s", ProviderTypeClaude, got)
	}
}

func TestDetectProviderTypeClaudeOpenRouterBeatsBearerOnly(t *testing.T) {
	p := Provider{SettingsConfig: []byte(`{"base_url":"https://openrouter.ai/api/v1","auth_mode":"bearer_only"}`)}
	if got := DetectProviderType(AppFamilyClaude, p, string(AuthStrategyClaudeAuth), "key"); got != ProviderTypeOpenRouter {
		t.Fatalf("want %s, got %s", ProviderTypeOpenRouter, got)
	}
}

func TestDetectProviderTypeClaudeAuthBearerOnly(t *testing.T) {
	p := Provider{SettingsConfig: []byte(`{"base_url":"https://relay.example.com","auth_mode":"bearer_only"}`)}
	if got := DetectProviderType(AppFamilyClaude, p, string(AuthStrategyClaudeAuth), "key"); got != ProviderTypeClaudeAuth {
		t.Fatalf("want %s, got %s", ProviderTypeClaudeAuth, got)
	}
}

func TestDetectProviderTypeCodexIsAlwaysCodex(t *testing.T) {
	p := Provider{SettingsConfig: []byte(`{"base_url":"https://api.openai.com"}`)}
	if got := DetectProviderType(AppFamilyCodex, p, string(AuthStrategyBearer), "sk-1"); got != ProviderTypeCodex {
		t.Fatalf("want %s, got %s", ProviderTypeCodex, got)
	}
}

func TestDetectProviderTypeGeminiPlainKey(t *testing.T) {
	p := Provider{}
	if got := DetectProviderType(AppFamilyGemini, p, string(AuthStrategyGoogle), "plain-key"); got != ProviderTypeGemini {
		t.Fatalf("want %s, got %s", ProviderTypeGemini, got)
	}
}

func TestDetectProviderTypeGeminiCliFromAccessToken(t *testing.T) {
	p := Provider{}
	if got := DetectProviderType(AppFamilyGemini, p, string(AuthStrategyGoogleOAuth), "ya29.abc123"); got != ProviderTypeGeminiCli {
		t.Fatalf("want %s, got %s", ProviderTypeGeminiCli, got)
	}
}

func TestDetectProviderTypeGeminiCliFromJSONCredentialBlob(t *testing.T) {
	p := Provider{}
	key := `{"access_token":"ya29.test"}`
	if got := DetectProviderType(AppFamilyGemini, p, string(AuthStrategyGoogleOAuth), key); got != ProviderTypeGeminiCli {
		t.Fatalf("want %s, got %s", ProviderTypeGeminiCli, got)
	}
}
