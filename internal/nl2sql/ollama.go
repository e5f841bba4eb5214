package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OllamaCompleter runs prompts against a local Ollama server via langchaingo.
type OllamaCompleter struct {
	llm         llms.Model
	model       string
	temperature float64
	timeout     time.Duration
}

func NewOllamaCompleter(cfg OllamaConfig) (*OllamaCompleter, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama3.1"
	}
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return newOllamaCompleter(llm, model, cfg), nil
}

func newOllamaCompleter(llm llms.Model, model string, cfg OllamaConfig) *OllamaCompleter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaCompleter{llm: llm, model: model, temperature: cfg.Temperature, timeout: timeout}
}

func (c *OllamaCompleter) Info() ModelInfo {
	return ModelInfo{Provider: "ollama", Model: c.model}
}

func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
