package feedmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxFeedSize = 10 << 20

var ErrFeedTooLarge = errors.New("feed document exceeds 10 MiB")

// RawFeed is the unparsed body of a successful fetch.
type RawFeed struct {
	URL  string
	Body []byte
	ETag string
}

// Fetcher retrieves feed documents. Fetch returns a nil *RawFeed and a nil error when the server reports the document
// unchanged since etag.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, etag string) (*RawFeed, error)
}

// HTTPFetcher fetches feeds over HTTP with conditional GET support.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "fluxhook",
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string, etag string) (*RawFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if etag != "" {
		req.Header.Add("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
		if err != nil {
			return nil, fmt.Errorf("unable to read response body: %w", err)
		}
		if len(body) > maxFeedSize {
			return nil, ErrFeedTooLarge
		}

		return &RawFeed{URL: feedURL, Body: body, ETag: resp.Header.Get("Etag")}, nil
	case http.StatusNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("bad HTTP response: %s", resp.Status)
	}
}
