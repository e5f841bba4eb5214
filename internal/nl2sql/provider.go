package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ProviderConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type describedCompleter interface {
	Completer
	Info() ModelInfo
}

// NewCompleter builds the completer for the configured provider: openai,
// gemini or ollama.
func NewCompleter(ctx context.Context, cfg ProviderConfig) (Completer, ModelInfo, error) {
	var (
		completer describedCompleter
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		completer, err = NewOpenAICompleter(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "gemini":
		completer, err = NewGeminiCompleter(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "ollama":
		completer, err = NewOllamaCompleter(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, ModelInfo{}, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, ModelInfo{}, fmt.Errorf("init %s completer: %w", cfg.Provider, err)
	}
	return completer, completer.Info(), nil
}
