package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NERClient calls an entity-recognition sidecar (Presidio analyzer REST
// contract) over HTTP.
type NERClient struct {
	url      string
	language string
	entities []string
	http     *http.Client
}

// NEROption customises an NERClient.
type NEROption func(*NERClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) NEROption {
	return func(n *NERClient) {
		if c != nil {
			n.http = c
		}
	}
}

// WithEntities limits the categories requested from the sidecar.
func WithEntities(entities ...string) NEROption {
	return func(n *NERClient) {
		n.entities = entities
	}
}

// NewNERClient creates a client pointing at the sidecar base URL
// (e.g. "http://presidio-analyzer:3000").
func NewNERClient(baseURL string, opts ...NEROption) *NERClient {
	c := &NERClient{
		url:      strings.TrimRight(baseURL, "/") + "/analyze",
		language: "en",
		entities: DefaultEntityTypes,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect implements Detector.
func (c *NERClient) Detect(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(analyzeRequest{Text: text, Language: c.language, Entities: c.entities})
	if err != nil {
		return nil, fmt.Errorf("pii: ner marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pii: ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pii: ner sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pii: ner sidecar returned status %d", resp.StatusCode)
	}

	var results []analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("pii: ner decode: %w", err)
	}

	out := make([]Entity, 0, len(results))
	for _, r := range results {
		out = append(out, Entity{
			Type:  r.EntityType,
			Start: r.Start,
			End:   r.End,
			Score: r.Score,
		})
	}
	return out, nil
}
