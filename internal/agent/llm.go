package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"procureflow/internal/apperr"
)

const systemPrompt = `You are the ProcureFlow procurement assistant. Help the user find catalog items.
Only recommend items from the catalog matches below and always include the item id.
If nothing matches, say so and suggest a different search.

Catalog matches:`

// LLMReplier calls an OpenAI-compatible chat completions endpoint. Failures are not retried.
type LLMReplier struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewLLMReplier(apiKey, baseURL, model string, timeout time.Duration) *LLMReplier {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMReplier{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (l *LLMReplier) Reply(ctx context.Context, in ReplyInput) (string, error) {
	prompt := systemPrompt
	if len(in.Matches) == 0 {
		prompt += "\n(none)"
	} else {
		prompt += formatMatches(in.Matches)
	}

	body := chatRequest{Model: l.model, Messages: make([]chatMessage, 0, len(in.History)+1)}
	body.Messages = append(body.Messages, chatMessage{Role: "system", Content: prompt})
	for _, m := range in.History {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", apperr.Upstream("assistant is unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperr.Upstream("assistant is unavailable",
			fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Upstream("assistant returned an invalid response", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", apperr.Upstream("assistant returned an empty response", nil)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
