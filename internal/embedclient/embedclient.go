// Package embedclient is an OpenAI-compatible embedding client used by L2
// (Core Anchors) and L3 (Rich Texture) to embed anchors, entities, and edge
// facts. Grounded on the teacher's internal/llm.GenerateEmbeddings /
// FetchEmbeddings, adapted to a single ctx-aware batch call with a typed
// error taxonomy instead of zero-vector fallbacks.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// Client embeds text against an OpenAI-compatible embeddings endpoint.
type Client struct {
	host       string
	apiKey     string
	model      string
	dimensions int
	http       *http.Client
}

func New(host, apiKey, model string, dimensions int) *Client {
	return &Client{
		host:       host,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

// Embed returns one vector per input text, in the same order as texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model, EncodingFormat: "float"})
	if err != nil {
		return nil, ppserr.Wrap(ppserr.Internal, "embedclient.Embed", "marshaling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host, bytes.NewReader(body))
	if err != nil {
		return nil, ppserr.Wrap(ppserr.Internal, "embedclient.Embed", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "embedclient.Embed", "calling embedding host", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ppserr.New(ppserr.DependencyDown, "embedclient.Embed", fmt.Sprintf("embedding host returned status %d", resp.StatusCode))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ppserr.Wrap(ppserr.Internal, "embedclient.Embed", "decoding embedding response", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// EmbedOne is a convenience wrapper for a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ppserr.New(ppserr.Internal, "embedclient.EmbedOne", "no embedding returned")
	}
	return vecs[0], nil
}

// Dimensions returns the configured embedding width, for pgvector/qdrant
// collection provisioning.
func (c *Client) Dimensions() int { return c.dimensions }

// Model returns the configured embedding model name, used to stamp vector
// provenance so consumers can detect a model change and refuse to mix
// incompatible vectors.
func (c *Client) Model() string { return c.model }
