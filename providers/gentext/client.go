package gentext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"edufinx/config"

	"go.uber.org/zap"
)

// Generator ist das Interface zum generativen Text-Service.
// Es erlaubt Fakes in Tests.
type Generator interface {
	// Generate schickt System- und User-Prompt und gibt den Antworttext zurück.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Request repräsentiert das Anfrageformat der Messages-API.
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Message ist eine Nachricht in der Konversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response repräsentiert die Antwort der Messages-API.
type Response struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

// APIError repräsentiert eine Fehlerantwort der Messages-API.
type APIError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client kapselt die HTTP-Anbindung an den generativen Text-Service.
type Client struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewClient erstellt einen neuen Client für den generativen Text-Service.
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg.GenTextAPIKey == "" {
		return nil, fmt.Errorf("gentext api key ist nicht konfiguriert")
	}
	return &Client{
		Config: cfg,
		Logger: logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.GenTextTimeoutSec) * time.Second,
		},
	}, nil
}

// Generate führt einen einzelnen Messages-Aufruf aus und liefert den Text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := Request{
		Model:       c.Config.GenTextModel,
		MaxTokens:   4096,
		Temperature: 0.4,
		System:      systemPrompt,
		Messages: []Message{
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.GenTextBaseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.Config.GenTextAPIKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	c.Logger.Debug("Rufe generativen Text-Service auf", zap.String("model", c.Config.GenTextModel))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp APIError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var genResp Response
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(genResp.Content) == 0 || genResp.Content[0].Text == "" {
		return "", fmt.Errorf("empty response from API")
	}

	return genResp.Content[0].Text, nil
}
