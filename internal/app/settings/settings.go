package settings

import "slices"

const (
	DefaultSystemPrompt = "You are a helpful AI assistant with web search capabilities. " +
		"You provide concise, accurate answers. " +
		"When you need current information, you can search the web."
	DefaultSearchProvider = "ddgs"
	DefaultHotkey         = "Command+Shift+O"

	// RedactedAPIKey replaces stored credentials in externally visible settings.
	RedactedAPIKey = "********"
)

// ModelConfig is one OpenAI-compatible endpoint a user can select.
type ModelConfig struct {
	Name    string `json:"name" yaml:"name"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// ModelID is the identifier sent to the endpoint; Name doubles as the id
// when Model is empty.
func (m ModelConfig) ModelID() string {
	if m.Model != "" {
		return m.Model
	}
	return m.Name
}

// EngineSettings is the full externally visible configuration surface.
type EngineSettings struct {
	Models         []ModelConfig `json:"models" yaml:"models"`
	ModelIndex     int           `json:"model_index" yaml:"model_index"`
	FastModels     []ModelConfig `json:"fast_models" yaml:"fast_models"`
	FastModelIndex int           `json:"fast_model_index" yaml:"fast_model_index"`
	SystemPrompt   string        `json:"system_prompt" yaml:"system_prompt"`
	SearchProvider string        `json:"search_provider" yaml:"search_provider"`
	SearchURL      string        `json:"search_url" yaml:"search_url"`
	Hotkey         string        `json:"hotkey" yaml:"hotkey"`
}

func Defaults() EngineSettings {
	return EngineSettings{
		Models:         []ModelConfig{},
		FastModels:     []ModelConfig{},
		SystemPrompt:   DefaultSystemPrompt,
		SearchProvider: DefaultSearchProvider,
		Hotkey:         DefaultHotkey,
	}
}

// normalize clamps indices so Primary and Fast never go out of range.
func (s *EngineSettings) normalize() {
	if s.Models == nil {
		s.Models = []ModelConfig{}
	}
	if s.FastModels == nil {
		s.FastModels = []ModelConfig{}
	}
	if s.ModelIndex < 0 || s.ModelIndex >= len(s.Models) {
		s.ModelIndex = 0
	}
	if s.FastModelIndex < 0 || s.FastModelIndex >= len(s.FastModels) {
		s.FastModelIndex = 0
	}
}

func (s EngineSettings) clone() EngineSettings {
	s.Models = slices.Clone(s.Models)
	s.FastModels = slices.Clone(s.FastModels)
	return s
}

// Primary returns the selected answering model, if any is configured.
func (s EngineSettings) Primary() (ModelConfig, bool) {
	if len(s.Models) == 0 {
		return ModelConfig{}, false
	}
	if s.ModelIndex < 0 || s.ModelIndex >= len(s.Models) {
		return s.Models[0], true
	}
	return s.Models[s.ModelIndex], true
}

// Fast returns the selected rewriting model, falling back to Primary.
func (s EngineSettings) Fast() (ModelConfig, bool) {
	if len(s.FastModels) == 0 {
		return s.Primary()
	}
	if s.FastModelIndex < 0 || s.FastModelIndex >= len(s.FastModels) {
		return s.FastModels[0], true
	}
	return s.FastModels[s.FastModelIndex], true
}

// Redacted returns a copy with every credential masked.
func (s EngineSettings) Redacted() EngineSettings {
	out := s.clone()
	redact(out.Models)
	redact(out.FastModels)
	return out
}

func redact(list []ModelConfig) {
	for i := range list {
		if list[i].APIKey != "" {
			list[i].APIKey = RedactedAPIKey
		}
	}
}

// Update carries a partial settings change. Nil fields are left alone.
type Update struct {
	Models         *[]ModelConfig `json:"models,omitempty"`
	ModelIndex     *int           `json:"model_index,omitempty"`
	FastModels     *[]ModelConfig `json:"fast_models,omitempty"`
	FastModelIndex *int           `json:"fast_model_index,omitempty"`
	SystemPrompt   *string        `json:"system_prompt,omitempty"`
	SearchProvider *string        `json:"search_provider,omitempty"`
	SearchURL      *string        `json:"search_url,omitempty"`
	Hotkey         *string        `json:"hotkey,omitempty"`
}

// restoreKeys puts back credentials that came in masked, matching entries
// by name and endpoint.
func restoreKeys(incoming, existing []ModelConfig) []ModelConfig {
	out := slices.Clone(incoming)
	for i := range out {
		if out[i].APIKey != RedactedAPIKey {
			continue
		}
		out[i].APIKey = ""
		for _, e := range existing {
			if e.Name == out[i].Name && e.BaseURL == out[i].BaseURL {
				out[i].APIKey = e.APIKey
				break
			}
		}
	}
	return out
}
