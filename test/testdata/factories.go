package testdata

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/stretchr/testify/require"
)

var counter atomic.Int64

// CreateFlux inserts a flux. An empty url generates a unique one.
func CreateFlux(t testing.TB, db data.Store, ctx context.Context, url string) *data.Flux {
	if url == "" {
		url = fmt.Sprintf("http://localhost/feed/%v.rss", counter.Add(1))
	}

	flux, err := db.InsertFlux(ctx, url)
	require.NoError(t, err)

	return flux
}

// CreateWebhook inserts a webhook. An empty url generates a unique one.
func CreateWebhook(t testing.TB, db data.Store, ctx context.Context, url string) *data.Webhook {
	if url == "" {
		url = fmt.Sprintf("http://localhost/hook/%v", counter.Add(1))
	}

	webhook, err := db.InsertWebhook(ctx, url)
	require.NoError(t, err)

	return webhook
}

func CreateBinding(t testing.TB, db data.Store, ctx context.Context, fluxID, webhookID int32) *data.Binding {
	binding, err := db.InsertBinding(ctx, fluxID, webhookID)
	require.NoError(t, err)

	return binding
}

// CreateArticle inserts an article. Zero valued fields are filled in; a zero SourceID creates a flux.
func CreateArticle(t testing.TB, db data.Store, ctx context.Context, attrs data.Article) *data.Article {
	n := counter.Add(1)

	if attrs.SourceID == 0 {
		attrs.SourceID = CreateFlux(t, db, ctx, "").ID
	}
	if attrs.Title == "" {
		attrs.Title = fmt.Sprintf("Title %v", n)
	}
	if !attrs.URL.Valid {
		attrs.URL = data.NewText(fmt.Sprintf("http://localhost/article/%v", n))
	}

	err := db.InsertArticle(ctx, &attrs)
	require.NoError(t, err)

	return &attrs
}

func CreateDelivery(t testing.TB, db data.Store, ctx context.Context, webhookID, articleID int32) *data.Delivery {
	delivery, err := db.InsertDelivery(ctx, webhookID, articleID)
	require.NoError(t, err)

	return delivery
}
