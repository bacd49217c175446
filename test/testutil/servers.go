package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type FeedItem struct {
	GUID        string
	Title       string
	Description string
	Link        string
}

// RSS renders items as an RSS 2.0 document.
func RSS(items ...FeedItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>http://example.org/</link>
    <description>Test Feed</description>
`)
	for _, item := range items {
		b.WriteString("    <item>\n")
		if item.GUID != "" {
			fmt.Fprintf(&b, "      <guid>%s</guid>\n", html.EscapeString(item.GUID))
		}
		if item.Title != "" {
			fmt.Fprintf(&b, "      <title>%s</title>\n", html.EscapeString(item.Title))
		}
		if item.Description != "" {
			fmt.Fprintf(&b, "      <description>%s</description>\n", html.EscapeString(item.Description))
		}
		if item.Link != "" {
			fmt.Fprintf(&b, "      <link>%s</link>\n", html.EscapeString(item.Link))
		}
		b.WriteString("    </item>\n")
	}
	b.WriteString("  </channel>\n</rss>\n")
	return b.String()
}

// FeedServer serves a mutable RSS 2.0 feed.
type FeedServer struct {
	*httptest.Server

	mutex       sync.Mutex
	items       []FeedItem
	body        string
	contentType string
	status      int
	requests    int
}

func NewFeedServer(t testing.TB, items ...FeedItem) *FeedServer {
	s := &FeedServer{items: items, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

func (s *FeedServer) serveHTTP(w http.ResponseWriter, req *http.Request) {
	s.mutex.Lock()
	s.requests++
	status := s.status
	body := s.body
	contentType := s.contentType
	if body == "" {
		body = RSS(s.items...)
		contentType = "application/rss+xml"
	}
	s.mutex.Unlock()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (s *FeedServer) SetItems(items ...FeedItem) {
	s.mutex.Lock()
	s.items = items
	s.mutex.Unlock()
}

func (s *FeedServer) AddItems(items ...FeedItem) {
	s.mutex.Lock()
	s.items = append(s.items, items...)
	s.mutex.Unlock()
}

// SetBody replaces the generated feed with a fixed body. An empty body restores the feed.
func (s *FeedServer) SetBody(contentType, body string) {
	s.mutex.Lock()
	s.contentType = contentType
	s.body = body
	s.mutex.Unlock()
}

func (s *FeedServer) SetStatus(status int) {
	s.mutex.Lock()
	s.status = status
	s.mutex.Unlock()
}

func (s *FeedServer) Requests() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.requests
}

type Embed struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type WebhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// WebhookServer records every payload posted to it.
type WebhookServer struct {
	*httptest.Server

	mutex    sync.Mutex
	status   int
	payloads []WebhookPayload
}

func NewWebhookServer(t testing.TB) *WebhookServer {
	s := &WebhookServer{status: http.StatusNoContent}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

func (s *WebhookServer) serveHTTP(w http.ResponseWriter, req *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.payloads = append(s.payloads, payload)
	status := s.status
	s.mutex.Unlock()

	w.WriteHeader(status)
}

func (s *WebhookServer) SetStatus(status int) {
	s.mutex.Lock()
	s.status = status
	s.mutex.Unlock()
}

func (s *WebhookServer) Payloads() []WebhookPayload {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]WebhookPayload(nil), s.payloads...)
}
