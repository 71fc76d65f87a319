package llm

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultProviderName is used when no provider is configured.
const DefaultProviderName = "ollama"

// Registry stores chat models by provider name and resolves a default.
type Registry struct {
	models          map[string]Model
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}
	return &Registry{
		models:          make(map[string]Model),
		defaultProvider: normalizedDefault,
	}
}

// ProviderConfig carries the credentials and endpoints for every supported provider.
type ProviderConfig struct {
	Default         string
	ModelName       string
	OllamaBaseURL   string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// NewRegistryFromConfig registers Ollama unconditionally and the hosted
// providers whose API keys are present.
func NewRegistryFromConfig(cfg ProviderConfig) *Registry {
	registry := NewRegistry(cfg.Default)
	_ = registry.Register(NewOllamaModel(cfg.OllamaBaseURL, cfg.ModelName))
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		_ = registry.Register(NewOpenAIModel(cfg.OpenAIAPIKey, hostedModelName(cfg.ModelName)))
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		_ = registry.Register(NewAnthropicModel(cfg.AnthropicAPIKey, hostedModelName(cfg.ModelName)))
	}
	return registry
}

// hostedModelName drops the local default so hosted providers use their own default model.
func hostedModelName(name string) string {
	if strings.EqualFold(strings.TrimSpace(name), DefaultOllamaModel) {
		return ""
	}
	return name
}

// Register adds one model under its provider name.
func (r *Registry) Register(model Model) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if model == nil {
		return fmt.Errorf("model is nil")
	}
	name := normalizeProviderName(model.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.models[name] = model
	return nil
}

// Model resolves a model by provider name. Empty names use the default provider.
func (r *Registry) Model(name string) (Model, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.models) == 0 {
		return nil, fmt.Errorf("no llm providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	if model, ok := r.models[resolvedName]; ok {
		return model, nil
	}
	return nil, fmt.Errorf("llm provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
