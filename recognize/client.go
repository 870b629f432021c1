// Package recognize adapts the external recognition service: one
// whole-page image plus a prompt in, structured product records out.
// Failure classes the batch loop must tell apart (bad credentials,
// rate limiting) are surfaced as sentinel errors.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagelift/imaging"
)

var (
	// ErrAuthentication means the credential is known bad; continuing
	// the batch would waste every remaining call.
	ErrAuthentication = errors.New("recognize: authentication failed")
	// ErrRateLimited is retryable with backoff.
	ErrRateLimited = errors.New("recognize: rate limited")
)

// Record is one recognized product on a page.
type Record struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Price       string                  `json:"price,omitempty"`
	Box         *imaging.BoundingBox    `json:"box,omitempty"`
	Images      []*imaging.EncodedImage `json:"-"`
}

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel    = "google/gemini-2.0-flash-001"
	defaultTimeout  = 2 * time.Minute
)

// Config carries the service coordinates.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client is a chat-completions-style vision client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type request struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// RecognizePage sends one page image with the extraction prompt and
// parses the returned records. An empty record list means the page
// held no recognizable data; that is not an error.
func (c *Client) RecognizePage(ctx context.Context, img *imaging.EncodedImage, prompt string) ([]Record, error) {
	body, err := json.Marshal(request{
		Model: c.cfg.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: img.DataURI()}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("recognize: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("recognize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize: send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("recognize: status %d: %s", resp.StatusCode, payload)
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("recognize: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}
	return parseRecords(parsed.Choices[0].Message.Content)
}

// parseRecords extracts the JSON record array from the model's answer,
// tolerating surrounding prose and markdown fencing.
func parseRecords(content string) ([]Record, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, nil // no structured data found
	}
	var records []Record
	if err := json.Unmarshal([]byte(content[start:end+1]), &records); err != nil {
		return nil, fmt.Errorf("recognize: parse records: %w", err)
	}
	return records, nil
}
