package data

import (
	"context"
	"sort"
	"sync"
)

type int32Seq struct {
	current int32
	mutex   sync.Mutex
}

func (s *int32Seq) next() int32 {
	s.mutex.Lock()
	s.current++
	n := s.current
	s.mutex.Unlock()
	return n
}

// MemoryStore keeps everything in process memory. It enforces the same uniqueness and
// reference rules as the SQL stores.
type MemoryStore struct {
	mutex        sync.Mutex
	fluxIDSeq    int32Seq
	fluxByID     map[int32]*Flux
	webhookIDSeq int32Seq
	webhooksByID map[int32]*Webhook
	bindings     map[Binding]struct{}
	articleIDSeq int32Seq
	articlesByID map[int32]*Article
	deliveries   map[Delivery]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fluxByID:     make(map[int32]*Flux),
		webhooksByID: make(map[int32]*Webhook),
		bindings:     make(map[Binding]struct{}),
		articlesByID: make(map[int32]*Article),
		deliveries:   make(map[Delivery]struct{}),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) fluxURLTaken(url string, exceptID int32) bool {
	for _, f := range s.fluxByID {
		if f.URL == url && f.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) webhookURLTaken(url string, exceptID int32) bool {
	for _, w := range s.webhooksByID {
		if w.URL == url && w.ID != exceptID {
			return true
		}
	}
	return false
}

func sortedFlux(m map[int32]*Flux, keep func(*Flux) bool) []Flux {
	var result []Flux
	for _, f := range m {
		if keep(f) {
			result = append(result, *f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func sortedWebhooks(m map[int32]*Webhook, keep func(*Webhook) bool) []Webhook {
	var result []Webhook
	for _, w := range m {
		if keep(w) {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func sortedArticles(m map[int32]*Article, keep func(*Article) bool) []Article {
	var result []Article
	for _, a := range m {
		if keep(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStore) InsertFlux(ctx context.Context, url string) (*Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fluxURLTaken(url, 0) {
		return nil, DuplicationError{Field: "url"}
	}

	f := &Flux{ID: s.fluxIDSeq.next(), URL: url}
	s.fluxByID[f.ID] = f

	row := *f
	return &row, nil
}

func (s *MemoryStore) SelectAllFlux(ctx context.Context) ([]Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedFlux(s.fluxByID, func(*Flux) bool { return true }), nil
}

func (s *MemoryStore) SelectFluxByPK(ctx context.Context, id int32) (*Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.fluxByID[id]
	if !ok {
		return nil, ErrNotFound
	}

	row := *f
	return &row, nil
}

func (s *MemoryStore) UpdateFluxURL(ctx context.Context, id int32, url string) (*Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.fluxByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.fluxURLTaken(url, id) {
		return nil, DuplicationError{Field: "url"}
	}
	f.URL = url

	row := *f
	return &row, nil
}

func (s *MemoryStore) DeleteFlux(ctx context.Context, id int32) (*Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.fluxByID[id]
	if !ok {
		return nil, ErrNotFound
	}

	for b := range s.bindings {
		if b.FluxID == id {
			delete(s.bindings, b)
		}
	}
	for articleID, a := range s.articlesByID {
		if a.SourceID == id {
			s.deleteArticle(articleID)
		}
	}
	delete(s.fluxByID, id)

	return f, nil
}

// deleteArticle must be called with the mutex held.
func (s *MemoryStore) deleteArticle(id int32) {
	for d := range s.deliveries {
		if d.ContentID == id {
			delete(s.deliveries, d)
		}
	}
	delete(s.articlesByID, id)
}

func (s *MemoryStore) InsertWebhook(ctx context.Context, url string) (*Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.webhookURLTaken(url, 0) {
		return nil, DuplicationError{Field: "url"}
	}

	w := &Webhook{ID: s.webhookIDSeq.next(), URL: url}
	s.webhooksByID[w.ID] = w

	row := *w
	return &row, nil
}

func (s *MemoryStore) SelectAllWebhooks(ctx context.Context) ([]Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedWebhooks(s.webhooksByID, func(*Webhook) bool { return true }), nil
}

func (s *MemoryStore) SelectWebhookByPK(ctx context.Context, id int32) (*Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, ok := s.webhooksByID[id]
	if !ok {
		return nil, ErrNotFound
	}

	row := *w
	return &row, nil
}

func (s *MemoryStore) UpdateWebhookURL(ctx context.Context, id int32, url string) (*Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, ok := s.webhooksByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.webhookURLTaken(url, id) {
		return nil, DuplicationError{Field: "url"}
	}
	w.URL = url

	row := *w
	return &row, nil
}

func (s *MemoryStore) DeleteWebhook(ctx context.Context, id int32) (*Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, ok := s.webhooksByID[id]
	if !ok {
		return nil, ErrNotFound
	}

	for b := range s.bindings {
		if b.WebhookID == id {
			delete(s.bindings, b)
		}
	}
	for d := range s.deliveries {
		if d.ReceiverID == id {
			delete(s.deliveries, d)
		}
	}
	delete(s.webhooksByID, id)

	return w, nil
}

func (s *MemoryStore) InsertBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.fluxByID[fluxID]; !ok {
		return nil, ReferenceError{Field: "fluxId"}
	}
	if _, ok := s.webhooksByID[webhookID]; !ok {
		return nil, ReferenceError{Field: "webhookId"}
	}

	b := Binding{FluxID: fluxID, WebhookID: webhookID}
	if _, ok := s.bindings[b]; ok {
		return nil, DuplicationError{Field: "binding"}
	}
	s.bindings[b] = struct{}{}

	return &b, nil
}

func (s *MemoryStore) DeleteBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b := Binding{FluxID: fluxID, WebhookID: webhookID}
	if _, ok := s.bindings[b]; !ok {
		return nil, ErrNotFound
	}
	delete(s.bindings, b)

	return &b, nil
}

func (s *MemoryStore) SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedWebhooks(s.webhooksByID, func(w *Webhook) bool {
		_, ok := s.bindings[Binding{FluxID: fluxID, WebhookID: w.ID}]
		return ok
	}), nil
}

func (s *MemoryStore) SelectFluxByWebhookID(ctx context.Context, webhookID int32) ([]Flux, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedFlux(s.fluxByID, func(f *Flux) bool {
		_, ok := s.bindings[Binding{FluxID: f.ID, WebhookID: webhookID}]
		return ok
	}), nil
}

func (s *MemoryStore) InsertArticle(ctx context.Context, row *Article) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.fluxByID[row.SourceID]; !ok {
		return ReferenceError{Field: "sourceId"}
	}

	row.ID = s.articleIDSeq.next()
	a := *row
	s.articlesByID[a.ID] = &a

	return nil
}

func (s *MemoryStore) SelectAllArticles(ctx context.Context) ([]Article, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedArticles(s.articlesByID, func(*Article) bool { return true }), nil
}

func (s *MemoryStore) SelectArticlesByFluxID(ctx context.Context, fluxID int32) ([]Article, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedArticles(s.articlesByID, func(a *Article) bool { return a.SourceID == fluxID }), nil
}

func (s *MemoryStore) DeleteArticlesByFluxID(ctx context.Context, fluxID int32) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int64
	for id, a := range s.articlesByID {
		if a.SourceID == fluxID {
			s.deleteArticle(id)
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) InsertDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.articlesByID[articleID]; !ok {
		return nil, ReferenceError{Field: "contentId"}
	}
	if _, ok := s.webhooksByID[webhookID]; !ok {
		return nil, ReferenceError{Field: "receiverId"}
	}

	d := Delivery{ContentID: articleID, ReceiverID: webhookID}
	if _, ok := s.deliveries[d]; ok {
		return nil, DuplicationError{Field: "delivery"}
	}
	s.deliveries[d] = struct{}{}

	return &d, nil
}

func (s *MemoryStore) DeleteDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	d := Delivery{ContentID: articleID, ReceiverID: webhookID}
	if _, ok := s.deliveries[d]; !ok {
		return nil, ErrNotFound
	}
	delete(s.deliveries, d)

	return &d, nil
}

func (s *MemoryStore) DeleteDeliveriesByArticleID(ctx context.Context, articleID int32) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int64
	for d := range s.deliveries {
		if d.ContentID == articleID {
			delete(s.deliveries, d)
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) DeleteDeliveriesByWebhookID(ctx context.Context, webhookID int32) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int64
	for d := range s.deliveries {
		if d.ReceiverID == webhookID {
			delete(s.deliveries, d)
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) SelectWebhooksByArticleID(ctx context.Context, articleID int32) ([]Webhook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedWebhooks(s.webhooksByID, func(w *Webhook) bool {
		_, ok := s.deliveries[Delivery{ContentID: articleID, ReceiverID: w.ID}]
		return ok
	}), nil
}

func (s *MemoryStore) SelectArticlesByWebhookID(ctx context.Context, webhookID int32) ([]Article, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return sortedArticles(s.articlesByID, func(a *Article) bool {
		_, ok := s.deliveries[Delivery{ContentID: a.ID, ReceiverID: webhookID}]
		return ok
	}), nil
}
