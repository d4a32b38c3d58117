// Package llmclient is an OpenAI-compatible chat-completion client used for
// L3 entity/edge extraction prompts and as the target of L4's
// summarize_request/store_summary hand-off. Grounded on the teacher's
// internal/llm.CallLLM, adapted to take a context and the closed error
// taxonomy instead of bare error strings.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	host   string
	apiKey string
	model  string
	http   *http.Client
}

func New(host, apiKey, model string) *Client {
	return &Client{host: host, apiKey: apiKey, model: model, http: &http.Client{Timeout: 60 * time.Second}}
}

type completionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionChoice struct {
	Message Message `json:"message"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
}

// Complete sends msgs to the configured model and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, msgs []Message, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(completionRequest{Model: c.model, Messages: msgs, MaxTokens: maxTokens, Temperature: temperature})
	if err != nil {
		return "", ppserr.Wrap(ppserr.Internal, "llmclient.Complete", "marshaling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host, bytes.NewReader(body))
	if err != nil {
		return "", ppserr.Wrap(ppserr.Internal, "llmclient.Complete", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ppserr.Wrap(ppserr.DependencyDown, "llmclient.Complete", "calling completion host", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ppserr.New(ppserr.DependencyDown, "llmclient.Complete", fmt.Sprintf("completion host returned status %d", resp.StatusCode))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", ppserr.Wrap(ppserr.Internal, "llmclient.Complete", "decoding completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ppserr.New(ppserr.Internal, "llmclient.Complete", "no choices in completion response")
	}
	return parsed.Choices[0].Message.Content, nil
}
