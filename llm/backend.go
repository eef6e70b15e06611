package llm

import "fmt"

// backend describes one OpenAI-compatible chat-completions endpoint:
// where to send requests, which models are valid, and the defaults to
// use for the analyze and refine roles when the caller doesn't override
// them.
type backend struct {
	name          string
	baseURL       string
	apiKey        string
	validModels   map[string]bool
	defaultAnalyze string
	defaultRefine  string
	maxTokens      int
}

// BackendCredentials carries the environment-sourced API keys the
// Client chooses between. At least one of these must be non-empty; when
// several are set, selectBackend uses the first in precedence order.
type BackendCredentials struct {
	OpenRouterAPIKey string
	DeepSeekAPIKey   string
	GeminiAPIKey     string
}

// selectBackend picks the one configured backend to use: an explicit
// alternate provider (OpenRouter) first, then DeepSeek directly, then
// Gemini — all addressed through one OpenAI-compatible chat-completions
// shape.
func selectBackend(creds BackendCredentials) (*backend, error) {
	switch {
	case creds.OpenRouterAPIKey != "":
		return &backend{
			name:    "openrouter",
			baseURL: "https://openrouter.ai/api/v1",
			apiKey:  creds.OpenRouterAPIKey,
			validModels: map[string]bool{
				"deepseek/deepseek-chat": true,
				"deepseek/deepseek-r1":   true,
			},
			defaultAnalyze: "deepseek/deepseek-chat",
			defaultRefine:  "deepseek/deepseek-r1",
			maxTokens:      54000,
		}, nil
	case creds.DeepSeekAPIKey != "":
		return &backend{
			name:    "deepseek",
			baseURL: "https://api.deepseek.com",
			apiKey:  creds.DeepSeekAPIKey,
			validModels: map[string]bool{
				"deepseek-chat":     true,
				"deepseek-reasoner": true,
			},
			defaultAnalyze: "deepseek-chat",
			defaultRefine:  "deepseek-reasoner",
			maxTokens:      54000,
		}, nil
	case creds.GeminiAPIKey != "":
		return &backend{
			name:    "gemini",
			baseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
			apiKey:  creds.GeminiAPIKey,
			validModels: map[string]bool{
				"gemini-1.5-flash":        true,
				"gemini-2.0-flash":        true,
				"gemini-1.5-pro":          true,
				"gemini-2.0-pro-exp-02-05": true,
			},
			defaultAnalyze: "gemini-2.0-flash",
			defaultRefine:  "gemini-2.0-pro-exp-02-05",
			maxTokens:      500000,
		}, nil
	default:
		return nil, fmt.Errorf("no backend credentials set: one of DEEPSEEK_API_KEY, GEMINI_API_KEY, OPENROUTER_API_KEY is required")
	}
}

func (b *backend) validateModel(kind, model string) error {
	if !b.validModels[model] {
		return fmt.Errorf("%s model %q is not valid for backend %s", kind, model, b.name)
	}
	return nil
}
