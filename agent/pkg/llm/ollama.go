package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"

	// ollamaSeed pins sampling so identical prompts give identical output.
	ollamaSeed = 42
)

// OllamaClient generates completions with a local Ollama server.
type OllamaClient struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
	maxTokens  int64
}

func NewOllamaClient(log *slog.Logger, baseURL string, maxTokens int64) *OllamaClient {
	return NewOllamaClientWithHTTPClient(log, baseURL, nil, maxTokens)
}

func NewOllamaClientWithHTTPClient(log *slog.Logger, baseURL string, httpClient *http.Client, maxTokens int64) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxTokens:  maxTokens,
	}
}

func (c *OllamaClient) Name() string { return ProviderOllama }

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
	NumPredict  int64   `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *OllamaClient) Generate(ctx context.Context, prompt Prompt, model string) (string, error) {
	start := time.Now()
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt.User,
		System: prompt.System,
		Options: ollamaOptions{
			Temperature: 0,
			Seed:        ollamaSeed,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return "", newError(ProviderOllama, ErrInvalidResponse, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", newError(ProviderOllama, ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cerr := classifyContext(ProviderOllama, ctx, err); cerr != nil {
			return "", cerr
		}
		return "", newError(ProviderOllama, ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(ProviderOllama, ErrProviderUnavailable, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError(ProviderOllama, classifyStatus(resp.StatusCode),
			fmt.Errorf("ollama generate http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", newError(ProviderOllama, ErrInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", newError(ProviderOllama, ErrInvalidResponse, fmt.Errorf("ollama: %s", out.Error))
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", newError(ProviderOllama, ErrInvalidResponse, fmt.Errorf("empty completion"))
	}
	c.log.Debug("llm: ollama call completed", "model", model, "duration", time.Since(start))
	return out.Response, nil
}
