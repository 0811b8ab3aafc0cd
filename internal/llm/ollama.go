package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	ollamaBackend        = "ollama"
	ollamaKeepAlive      = "10m"
)

// OllamaConfig configures a client for a locally served Ollama model.
type OllamaConfig struct {
	BaseURL       string
	Model         string
	SystemMessage string
	HTTPClient    *http.Client
}

type ollamaClient struct {
	baseURL    string
	model      string
	system     string
	httpClient *http.Client
}

func NewOllama(cfg OllamaConfig) (Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("missing ollama model")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollamaClient{
		baseURL:    baseURL,
		model:      strings.TrimSpace(cfg.Model),
		system:     cfg.SystemMessage,
		httpClient: httpClient,
	}, nil
}

type ollamaRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

func (c *ollamaClient) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	log.Printf("[llm] ollama prompt %d chars, beginning %q", len(prompt), truncate(prompt, 32))

	options := map[string]any{
		"temperature": opts.Temperature,
	}
	if len(opts.Terminators) > 0 {
		options["stop"] = opts.Terminators
	}
	if opts.MaxOutputTokens > 0 {
		options["num_predict"] = opts.MaxOutputTokens
	}
	if opts.Seed != nil {
		options["seed"] = *opts.Seed
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:     c.model,
		Prompt:    prompt,
		System:    c.system,
		Stream:    false,
		KeepAlive: ollamaKeepAlive,
		Options:   options,
	})
	if err != nil {
		return "", generationError(ollamaBackend, "marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", generationError(ollamaBackend, "create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", generationError(ollamaBackend, "send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", generationError(ollamaBackend, "read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", generationError(ollamaBackend, "http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", generationError(ollamaBackend, "decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", generationError(ollamaBackend, "%s", decoded.Error)
	}
	content := strings.TrimSpace(decoded.Response)
	if content == "" {
		return "", generationError(ollamaBackend, "empty response")
	}

	log.Printf("[llm] ollama generated %d chars, beginning %q", len(content), truncate(content, 32))
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
