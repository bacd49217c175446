package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fluxhook/fluxhook/backend/data"
)

// Embed is a rich message embed as accepted by Discord-style webhooks.
type Embed struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Payload struct {
	Embeds []Embed `json:"embeds"`
}

func NewPayload(article *data.Article) Payload {
	return Payload{
		Embeds: []Embed{{
			Title:       article.Title,
			Type:        "rich",
			Description: article.Description.String,
			URL:         article.URL.String,
		}},
	}
}

// StatusError reports a webhook response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s responded %s", e.URL, e.Status)
}

type HTTPSinkConfig struct {
	Timeout time.Duration

	// RatePerHost limits requests per second to each webhook host. Zero disables limiting.
	RatePerHost float64
}

// HTTPSink POSTs articles as JSON embeds.
type HTTPSink struct {
	client  *http.Client
	limiter *HostRateLimiter
}

func NewHTTPSink(config HTTPSinkConfig) *HTTPSink {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	sink := &HTTPSink{client: &http.Client{Timeout: config.Timeout}}
	if config.RatePerHost > 0 {
		sink.limiter = NewHostRateLimiter(config.RatePerHost)
	}

	return sink
}

func (s *HTTPSink) Deliver(ctx context.Context, webhookURL string, article *data.Article) error {
	body, err := json.Marshal(NewPayload(article))
	if err != nil {
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, webhookURL); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: webhookURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return nil
}
