package feedmanager

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// CheckFeed fetches feedURL and verifies it is an RSS 2.0 document. Any failure is returned as a *FeedParseError.
func CheckFeed(ctx context.Context, fetcher Fetcher, feedURL string) error {
	_, err := fetchValidFeed(ctx, fetcher, feedURL)
	return err
}

func fetchValidFeed(ctx context.Context, fetcher Fetcher, feedURL string) (*RawFeed, error) {
	raw, err := fetcher.Fetch(ctx, feedURL, "")
	if err != nil {
		return nil, &FeedParseError{URL: feedURL, Err: err}
	}
	if raw == nil {
		return nil, &FeedParseError{URL: feedURL, Err: errors.New("empty response")}
	}

	if err := CheckRSS(raw.Body); err != nil {
		return nil, &FeedParseError{URL: feedURL, Err: err}
	}

	return raw, nil
}

// CheckRSS reports whether body is an XML document whose root element is <rss> with a version attribute numerically
// equal to 2.0.
func CheckRSS(body []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Entity = xml.HTMLEntity

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return errors.New("document has no root element")
		}
		if err != nil {
			return err
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		if start.Name.Local != "rss" {
			return fmt.Errorf("root element is <%s>, not <rss>", start.Name.Local)
		}

		for _, attr := range start.Attr {
			if attr.Name.Local != "version" {
				continue
			}
			version, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
			if err != nil || version != 2.0 {
				return fmt.Errorf("unsupported rss version %q", attr.Value)
			}
			return nil
		}

		return errors.New("rss element has no version attribute")
	}
}
