package fanout_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/fluxhook/fluxhook/backend/fanout"
	"github.com/fluxhook/fluxhook/backend/feedmanager"
	"github.com/fluxhook/fluxhook/test/testdata"
	"github.com/fluxhook/fluxhook/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStore wraps a MemoryStore and fails selected operations.
type faultyStore struct {
	*data.MemoryStore

	failInsertArticle  bool
	failSelectWebhooks bool
	failDeliveryTo     int32
}

func (s *faultyStore) InsertArticle(ctx context.Context, row *data.Article) error {
	if s.failInsertArticle {
		return errors.New("disk full")
	}
	return s.MemoryStore.InsertArticle(ctx, row)
}

func (s *faultyStore) SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]data.Webhook, error) {
	if s.failSelectWebhooks {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.SelectWebhooksByFluxID(ctx, fluxID)
}

func (s *faultyStore) InsertDelivery(ctx context.Context, webhookID, articleID int32) (*data.Delivery, error) {
	if webhookID == s.failDeliveryTo {
		return nil, data.ReferenceError{Field: "receiverId"}
	}
	return s.MemoryStore.InsertDelivery(ctx, webhookID, articleID)
}

// countingSink counts deliveries and forwards them to an HTTPSink.
type countingSink struct {
	inner fanout.Sink
	n     atomic.Int32
}

func (s *countingSink) Deliver(ctx context.Context, webhookURL string, article *data.Article) error {
	s.n.Add(1)
	return s.inner.Deliver(ctx, webhookURL, article)
}

func newDispatcher(store fanout.Store, sink fanout.Sink) *fanout.Dispatcher {
	if sink == nil {
		sink = fanout.NewHTTPSink(fanout.HTTPSinkConfig{})
	}
	return fanout.NewDispatcher(fanout.Config{
		Store:  store,
		Sink:   sink,
		Logger: testutil.NewLogger(),
	})
}

func TestIngestDeliversToBoundWebhooks(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore()

	flux := testdata.CreateFlux(t, store, ctx, "")
	s1 := testutil.NewWebhookServer(t)
	s2 := testutil.NewWebhookServer(t)
	unbound := testutil.NewWebhookServer(t)
	w1 := testdata.CreateWebhook(t, store, ctx, s1.URL)
	w2 := testdata.CreateWebhook(t, store, ctx, s2.URL)
	testdata.CreateWebhook(t, store, ctx, unbound.URL)
	testdata.CreateBinding(t, store, ctx, flux.ID, w1.ID)
	testdata.CreateBinding(t, store, ctx, flux.ID, w2.ID)

	item := feedmanager.Item{GUID: "1", Title: "Snow Storm", Description: "Lots of snow", Link: "http://example.org/snow"}
	batch, err := newDispatcher(store, nil).Ingest(ctx, flux.ID, item)
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Empty(t, batch.Failed())
	assert.Equal(t, "Snow Storm", batch.Article.Title)
	assert.Equal(t, flux.ID, batch.Article.SourceID)

	expected := testutil.WebhookPayload{Embeds: []testutil.Embed{{
		Title:       "Snow Storm",
		Type:        "rich",
		Description: "Lots of snow",
		URL:         "http://example.org/snow",
	}}}
	assert.Equal(t, []testutil.WebhookPayload{expected}, s1.Payloads())
	assert.Equal(t, []testutil.WebhookPayload{expected}, s2.Payloads())
	assert.Empty(t, unbound.Payloads())

	articles, err := store.SelectArticlesByFluxID(ctx, flux.ID)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, batch.Article, articles[0])

	receivers, err := store.SelectWebhooksByArticleID(ctx, batch.Article.ID)
	require.NoError(t, err)
	assert.Equal(t, []data.Webhook{*w1, *w2}, receivers)
}

func TestIngestIsolatesWebhookFailures(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore()

	flux := testdata.CreateFlux(t, store, ctx, "")
	failing := testutil.NewWebhookServer(t)
	failing.SetStatus(http.StatusInternalServerError)
	ok := testutil.NewWebhookServer(t)
	closed := testutil.NewWebhookServer(t)
	closed.Close()

	wFailing := testdata.CreateWebhook(t, store, ctx, failing.URL)
	wOK := testdata.CreateWebhook(t, store, ctx, ok.URL)
	wClosed := testdata.CreateWebhook(t, store, ctx, closed.URL)
	for _, w := range []*data.Webhook{wFailing, wOK, wClosed} {
		testdata.CreateBinding(t, store, ctx, flux.ID, w.ID)
	}

	batch, err := newDispatcher(store, nil).Ingest(ctx, flux.ID, feedmanager.Item{Title: "Hello"})
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	assert.Equal(t, wFailing.ID, batch.Results[0].WebhookID)
	var statusErr *fanout.StatusError
	require.ErrorAs(t, batch.Results[0].Err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	assert.Equal(t, wOK.ID, batch.Results[1].WebhookID)
	assert.NoError(t, batch.Results[1].Err)
	assert.Len(t, ok.Payloads(), 1)

	assert.Equal(t, wClosed.ID, batch.Results[2].WebhookID)
	assert.Error(t, batch.Results[2].Err)

	assert.Len(t, batch.Failed(), 2)

	articles, err := store.SelectArticlesByFluxID(ctx, flux.ID)
	require.NoError(t, err)
	assert.Len(t, articles, 1)

	receivers, err := store.SelectWebhooksByArticleID(ctx, batch.Article.ID)
	require.NoError(t, err)
	assert.Len(t, receivers, 3)
}

func TestIngestWithoutBindingsStoresArticle(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore()
	flux := testdata.CreateFlux(t, store, ctx, "")

	batch, err := newDispatcher(store, nil).Ingest(ctx, flux.ID, feedmanager.Item{Title: "Lonely"})
	require.NoError(t, err)
	assert.Empty(t, batch.Results)

	articles, err := store.SelectArticlesByFluxID(ctx, flux.ID)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Lonely", articles[0].Title)
	assert.False(t, articles[0].Description.Valid)
	assert.False(t, articles[0].URL.Valid)
}

func TestIngestStoreFailuresDeliverNothing(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		name  string
		store func(*data.MemoryStore) *faultyStore
	}{
		{"insert article", func(m *data.MemoryStore) *faultyStore { return &faultyStore{MemoryStore: m, failInsertArticle: true} }},
		{"select webhooks", func(m *data.MemoryStore) *faultyStore { return &faultyStore{MemoryStore: m, failSelectWebhooks: true} }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			memory := data.NewMemoryStore()
			flux := testdata.CreateFlux(t, memory, ctx, "")
			server := testutil.NewWebhookServer(t)
			webhook := testdata.CreateWebhook(t, memory, ctx, server.URL)
			testdata.CreateBinding(t, memory, ctx, flux.ID, webhook.ID)

			sink := &countingSink{inner: fanout.NewHTTPSink(fanout.HTTPSinkConfig{})}
			batch, err := newDispatcher(tt.store(memory), sink).Ingest(ctx, flux.ID, feedmanager.Item{Title: "x"})
			require.Error(t, err)
			assert.Nil(t, batch)
			assert.EqualValues(t, 0, sink.n.Load())
			assert.Empty(t, server.Payloads())
		})
	}
}

func TestIngestSkipsPostWhenDeliveryCannotBeRecorded(t *testing.T) {
	ctx := context.Background()
	memory := data.NewMemoryStore()

	flux := testdata.CreateFlux(t, memory, ctx, "")
	gone := testutil.NewWebhookServer(t)
	kept := testutil.NewWebhookServer(t)
	wGone := testdata.CreateWebhook(t, memory, ctx, gone.URL)
	wKept := testdata.CreateWebhook(t, memory, ctx, kept.URL)
	testdata.CreateBinding(t, memory, ctx, flux.ID, wGone.ID)
	testdata.CreateBinding(t, memory, ctx, flux.ID, wKept.ID)

	store := &faultyStore{MemoryStore: memory, failDeliveryTo: wGone.ID}
	batch, err := newDispatcher(store, nil).Ingest(ctx, flux.ID, feedmanager.Item{Title: "x"})
	require.NoError(t, err)

	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, wGone.ID, failed[0].WebhookID)
	var refErr data.ReferenceError
	require.ErrorAs(t, failed[0].Err, &refErr)

	assert.Empty(t, gone.Payloads())
	assert.Len(t, kept.Payloads(), 1)
}

func TestIngestUsesBindingsAtDeliveryTime(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore()
	dispatcher := newDispatcher(store, nil)

	flux := testdata.CreateFlux(t, store, ctx, "")
	server := testutil.NewWebhookServer(t)
	webhook := testdata.CreateWebhook(t, store, ctx, server.URL)

	_, err := dispatcher.Ingest(ctx, flux.ID, feedmanager.Item{Title: "before"})
	require.NoError(t, err)
	assert.Empty(t, server.Payloads())

	testdata.CreateBinding(t, store, ctx, flux.ID, webhook.ID)
	_, err = dispatcher.Ingest(ctx, flux.ID, feedmanager.Item{Title: "bound"})
	require.NoError(t, err)

	_, err = store.DeleteBinding(ctx, flux.ID, webhook.ID)
	require.NoError(t, err)
	_, err = dispatcher.Ingest(ctx, flux.ID, feedmanager.Item{Title: "after"})
	require.NoError(t, err)

	payloads := server.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "bound", payloads[0].Embeds[0].Title)
}

func TestListenerIngestsItems(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore()

	flux := testdata.CreateFlux(t, store, ctx, "")
	server := testutil.NewWebhookServer(t)
	webhook := testdata.CreateWebhook(t, store, ctx, server.URL)
	testdata.CreateBinding(t, store, ctx, flux.ID, webhook.ID)

	listener := newDispatcher(store, nil).Listener(flux.ID)
	listener(ctx, feedmanager.Item{Title: "one"})
	listener(ctx, feedmanager.Item{Title: "two"})

	payloads := server.Payloads()
	require.Len(t, payloads, 2)
	assert.Equal(t, "one", payloads[0].Embeds[0].Title)
	assert.Equal(t, "two", payloads[1].Embeds[0].Title)

	articles, err := store.SelectArticlesByWebhookID(ctx, webhook.ID)
	require.NoError(t, err)
	assert.Len(t, articles, 2)
}

func TestListenerLogsIngestFailure(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: data.NewMemoryStore(), failInsertArticle: true}

	listener := newDispatcher(store, nil).Listener(1)
	assert.NotPanics(t, func() { listener(ctx, feedmanager.Item{Title: "x"}) })
}
