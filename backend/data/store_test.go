package data_test

import (
	"context"
	"testing"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/fluxhook/fluxhook/test/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeTests is run against every Store implementation.
var storeTests = []struct {
	name string
	test func(t *testing.T, store data.Store)
}{
	{"Flux", testStoreFlux},
	{"Webhooks", testStoreWebhooks},
	{"Bindings", testStoreBindings},
	{"Articles", testStoreArticles},
	{"Deliveries", testStoreDeliveries},
	{"DeleteFluxCascades", testStoreDeleteFluxCascades},
	{"DeleteWebhookCascades", testStoreDeleteWebhookCascades},
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) data.Store) {
	for _, tt := range storeTests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, newStore(t))
		})
	}
}

func testStoreFlux(t *testing.T, store data.Store) {
	ctx := context.Background()

	f1, err := store.InsertFlux(ctx, "http://example.org/a.rss")
	require.NoError(t, err)
	require.NotZero(t, f1.ID)
	require.Equal(t, "http://example.org/a.rss", f1.URL)

	f2, err := store.InsertFlux(ctx, "http://example.org/b.rss")
	require.NoError(t, err)

	_, err = store.InsertFlux(ctx, "http://example.org/a.rss")
	require.ErrorAs(t, err, &data.DuplicationError{})

	all, err := store.SelectAllFlux(ctx)
	require.NoError(t, err)
	require.Equal(t, []data.Flux{*f1, *f2}, all)

	found, err := store.SelectFluxByPK(ctx, f2.ID)
	require.NoError(t, err)
	require.Equal(t, f2, found)

	_, err = store.SelectFluxByPK(ctx, f2.ID+100)
	require.ErrorIs(t, err, data.ErrNotFound)

	updated, err := store.UpdateFluxURL(ctx, f1.ID, "http://example.org/c.rss")
	require.NoError(t, err)
	require.Equal(t, &data.Flux{ID: f1.ID, URL: "http://example.org/c.rss"}, updated)

	_, err = store.UpdateFluxURL(ctx, f1.ID, f2.URL)
	require.ErrorAs(t, err, &data.DuplicationError{})

	_, err = store.UpdateFluxURL(ctx, f2.ID+100, "http://example.org/d.rss")
	require.ErrorIs(t, err, data.ErrNotFound)

	deleted, err := store.DeleteFlux(ctx, f1.ID)
	require.NoError(t, err)
	require.Equal(t, updated, deleted)

	_, err = store.DeleteFlux(ctx, f1.ID)
	require.ErrorIs(t, err, data.ErrNotFound)

	all, err = store.SelectAllFlux(ctx)
	require.NoError(t, err)
	require.Equal(t, []data.Flux{*f2}, all)
}

func testStoreWebhooks(t *testing.T, store data.Store) {
	ctx := context.Background()

	w1, err := store.InsertWebhook(ctx, "http://example.org/hook/1")
	require.NoError(t, err)
	w2, err := store.InsertWebhook(ctx, "http://example.org/hook/2")
	require.NoError(t, err)

	_, err = store.InsertWebhook(ctx, "http://example.org/hook/1")
	var dupErr data.DuplicationError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "url", dupErr.Field)

	all, err := store.SelectAllWebhooks(ctx)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w1, *w2}, all)

	found, err := store.SelectWebhookByPK(ctx, w1.ID)
	require.NoError(t, err)
	require.Equal(t, w1, found)

	updated, err := store.UpdateWebhookURL(ctx, w2.ID, "http://example.org/hook/3")
	require.NoError(t, err)
	require.Equal(t, "http://example.org/hook/3", updated.URL)

	_, err = store.UpdateWebhookURL(ctx, w2.ID, w1.URL)
	require.ErrorAs(t, err, &data.DuplicationError{})

	deleted, err := store.DeleteWebhook(ctx, w1.ID)
	require.NoError(t, err)
	require.Equal(t, w1, deleted)

	_, err = store.SelectWebhookByPK(ctx, w1.ID)
	require.ErrorIs(t, err, data.ErrNotFound)

	_, err = store.DeleteWebhook(ctx, w1.ID)
	require.ErrorIs(t, err, data.ErrNotFound)
}

func testStoreBindings(t *testing.T, store data.Store) {
	ctx := context.Background()

	f1 := testdata.CreateFlux(t, store, ctx, "")
	f2 := testdata.CreateFlux(t, store, ctx, "")
	w1 := testdata.CreateWebhook(t, store, ctx, "")
	w2 := testdata.CreateWebhook(t, store, ctx, "")

	b, err := store.InsertBinding(ctx, f1.ID, w1.ID)
	require.NoError(t, err)
	require.Equal(t, &data.Binding{FluxID: f1.ID, WebhookID: w1.ID}, b)

	testdata.CreateBinding(t, store, ctx, f1.ID, w2.ID)
	testdata.CreateBinding(t, store, ctx, f2.ID, w2.ID)

	_, err = store.InsertBinding(ctx, f1.ID, w1.ID)
	require.ErrorAs(t, err, &data.DuplicationError{})

	_, err = store.InsertBinding(ctx, f1.ID+100, w1.ID)
	require.ErrorAs(t, err, &data.ReferenceError{})

	_, err = store.InsertBinding(ctx, f1.ID, w1.ID+100)
	require.ErrorAs(t, err, &data.ReferenceError{})

	webhooks, err := store.SelectWebhooksByFluxID(ctx, f1.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w1, *w2}, webhooks)

	flux, err := store.SelectFluxByWebhookID(ctx, w2.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Flux{*f1, *f2}, flux)

	deleted, err := store.DeleteBinding(ctx, f1.ID, w1.ID)
	require.NoError(t, err)
	require.Equal(t, b, deleted)

	_, err = store.DeleteBinding(ctx, f1.ID, w1.ID)
	require.ErrorIs(t, err, data.ErrNotFound)

	webhooks, err = store.SelectWebhooksByFluxID(ctx, f1.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w2}, webhooks)
}

func testStoreArticles(t *testing.T, store data.Store) {
	ctx := context.Background()

	f1 := testdata.CreateFlux(t, store, ctx, "")
	f2 := testdata.CreateFlux(t, store, ctx, "")

	a1 := &data.Article{Title: "Snow Storm", SourceID: f1.ID}
	err := store.InsertArticle(ctx, a1)
	require.NoError(t, err)
	require.NotZero(t, a1.ID)

	a2 := &data.Article{
		Title:       "Blizzard",
		Description: data.NewText("Lots of snow"),
		URL:         data.NewText("http://example.org/blizzard"),
		SourceID:    f1.ID,
	}
	err = store.InsertArticle(ctx, a2)
	require.NoError(t, err)

	a3 := testdata.CreateArticle(t, store, ctx, data.Article{SourceID: f2.ID})

	err = store.InsertArticle(ctx, &data.Article{Title: "Orphan", SourceID: f2.ID + 100})
	require.ErrorAs(t, err, &data.ReferenceError{})

	articles, err := store.SelectArticlesByFluxID(ctx, f1.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a1, *a2}, articles)
	assert.False(t, articles[0].Description.Valid)
	assert.False(t, articles[0].URL.Valid)

	all, err := store.SelectAllArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a1, *a2, *a3}, all)

	n, err := store.DeleteArticlesByFluxID(ctx, f1.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	articles, err = store.SelectArticlesByFluxID(ctx, f1.ID)
	require.NoError(t, err)
	require.Empty(t, articles)
}

func testStoreDeliveries(t *testing.T, store data.Store) {
	ctx := context.Background()

	w1 := testdata.CreateWebhook(t, store, ctx, "")
	w2 := testdata.CreateWebhook(t, store, ctx, "")
	a1 := testdata.CreateArticle(t, store, ctx, data.Article{})
	a2 := testdata.CreateArticle(t, store, ctx, data.Article{SourceID: a1.SourceID})

	d, err := store.InsertDelivery(ctx, w1.ID, a1.ID)
	require.NoError(t, err)
	require.Equal(t, &data.Delivery{ContentID: a1.ID, ReceiverID: w1.ID}, d)

	testdata.CreateDelivery(t, store, ctx, w2.ID, a1.ID)
	testdata.CreateDelivery(t, store, ctx, w1.ID, a2.ID)

	_, err = store.InsertDelivery(ctx, w1.ID, a1.ID)
	require.ErrorAs(t, err, &data.DuplicationError{})

	_, err = store.InsertDelivery(ctx, w1.ID+100, a1.ID)
	require.ErrorAs(t, err, &data.ReferenceError{})

	_, err = store.InsertDelivery(ctx, w1.ID, a2.ID+100)
	require.ErrorAs(t, err, &data.ReferenceError{})

	webhooks, err := store.SelectWebhooksByArticleID(ctx, a1.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w1, *w2}, webhooks)

	articles, err := store.SelectArticlesByWebhookID(ctx, w1.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a1, *a2}, articles)

	deleted, err := store.DeleteDelivery(ctx, w1.ID, a2.ID)
	require.NoError(t, err)
	require.Equal(t, &data.Delivery{ContentID: a2.ID, ReceiverID: w1.ID}, deleted)

	_, err = store.DeleteDelivery(ctx, w1.ID, a2.ID)
	require.ErrorIs(t, err, data.ErrNotFound)

	n, err := store.DeleteDeliveriesByArticleID(ctx, a1.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	testdata.CreateDelivery(t, store, ctx, w2.ID, a2.ID)
	n, err = store.DeleteDeliveriesByWebhookID(ctx, w2.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	articles, err = store.SelectArticlesByWebhookID(ctx, w2.ID)
	require.NoError(t, err)
	require.Empty(t, articles)
}

func testStoreDeleteFluxCascades(t *testing.T, store data.Store) {
	ctx := context.Background()

	f1 := testdata.CreateFlux(t, store, ctx, "")
	f2 := testdata.CreateFlux(t, store, ctx, "")
	w := testdata.CreateWebhook(t, store, ctx, "")
	testdata.CreateBinding(t, store, ctx, f1.ID, w.ID)
	testdata.CreateBinding(t, store, ctx, f2.ID, w.ID)
	a1 := testdata.CreateArticle(t, store, ctx, data.Article{SourceID: f1.ID})
	a2 := testdata.CreateArticle(t, store, ctx, data.Article{SourceID: f2.ID})
	testdata.CreateDelivery(t, store, ctx, w.ID, a1.ID)
	testdata.CreateDelivery(t, store, ctx, w.ID, a2.ID)

	_, err := store.DeleteFlux(ctx, f1.ID)
	require.NoError(t, err)

	flux, err := store.SelectFluxByWebhookID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Flux{*f2}, flux)

	all, err := store.SelectAllArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a2}, all)

	articles, err := store.SelectArticlesByWebhookID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a2}, articles)
}

func testStoreDeleteWebhookCascades(t *testing.T, store data.Store) {
	ctx := context.Background()

	f := testdata.CreateFlux(t, store, ctx, "")
	w1 := testdata.CreateWebhook(t, store, ctx, "")
	w2 := testdata.CreateWebhook(t, store, ctx, "")
	testdata.CreateBinding(t, store, ctx, f.ID, w1.ID)
	testdata.CreateBinding(t, store, ctx, f.ID, w2.ID)
	a := testdata.CreateArticle(t, store, ctx, data.Article{SourceID: f.ID})
	testdata.CreateDelivery(t, store, ctx, w1.ID, a.ID)
	testdata.CreateDelivery(t, store, ctx, w2.ID, a.ID)

	_, err := store.DeleteWebhook(ctx, w1.ID)
	require.NoError(t, err)

	webhooks, err := store.SelectWebhooksByFluxID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w2}, webhooks)

	webhooks, err = store.SelectWebhooksByArticleID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Webhook{*w2}, webhooks)

	articles, err := store.SelectArticlesByFluxID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, []data.Article{*a}, articles)
}
