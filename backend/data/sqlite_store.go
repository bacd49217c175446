package data

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the Store used for single-node deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path. ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
create table if not exists flux(
  id integer primary key autoincrement,
  url text not null unique check(url<>''),
  creation_time datetime not null default current_timestamp
);

create table if not exists webhooks(
  id integer primary key autoincrement,
  url text not null unique check(url<>''),
  creation_time datetime not null default current_timestamp
);

create table if not exists bindings(
  flux_id integer not null references flux(id) on delete cascade,
  webhook_id integer not null references webhooks(id) on delete cascade,
  primary key(flux_id, webhook_id)
);

create index if not exists bindings_webhook_id_idx on bindings(webhook_id);

create table if not exists articles(
  id integer primary key autoincrement,
  title text not null,
  description text,
  url text,
  source_id integer not null references flux(id) on delete cascade,
  creation_time datetime not null default current_timestamp
);

create index if not exists articles_source_id_idx on articles(source_id);

create table if not exists deliveries(
  content_id integer not null references articles(id) on delete cascade,
  receiver_id integer not null references webhooks(id) on delete cascade,
  creation_time datetime not null default current_timestamp,
  primary key(receiver_id, content_id)
);

create index if not exists deliveries_content_id_idx on deliveries(content_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sqliteUniqueFields = []struct {
	prefix string
	field  string
}{
	{"flux.url", "url"},
	{"webhooks.url", "url"},
	{"bindings.", "binding"},
	{"deliveries.", "delivery"},
}

const sqliteUniqueMessage = "UNIQUE constraint failed: "

// translateSQLiteError maps driver errors onto the Store error contract. SQLite does not name
// the violated foreign key, so the caller supplies refField.
func translateSQLiteError(err error, refField string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	msg := err.Error()
	if i := strings.Index(msg, sqliteUniqueMessage); i >= 0 {
		target := msg[i+len(sqliteUniqueMessage):]
		for _, u := range sqliteUniqueFields {
			if strings.HasPrefix(target, u.prefix) {
				return DuplicationError{Field: u.field}
			}
		}
		if j := strings.IndexAny(target, " ,"); j >= 0 {
			target = target[:j]
		}
		return DuplicationError{Field: target}
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return ReferenceError{Field: refField}
	}

	return err
}

func (s *SQLiteStore) selectFlux(ctx context.Context, query string, args ...any) ([]Flux, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Flux
	for rows.Next() {
		var f Flux
		if err := rows.Scan(&f.ID, &f.URL); err != nil {
			return nil, err
		}
		result = append(result, f)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) selectWebhooks(ctx context.Context, query string, args ...any) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.URL); err != nil {
			return nil, err
		}
		result = append(result, w)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) selectArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.URL, &a.SourceID); err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) InsertFlux(ctx context.Context, url string) (*Flux, error) {
	row := &Flux{}
	err := s.db.QueryRowContext(ctx, `insert into flux(url) values(?) returning id, url`, url).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) SelectAllFlux(ctx context.Context) ([]Flux, error) {
	return s.selectFlux(ctx, `select id, url from flux order by id`)
}

func (s *SQLiteStore) SelectFluxByPK(ctx context.Context, id int32) (*Flux, error) {
	row := &Flux{}
	err := s.db.QueryRowContext(ctx, `select id, url from flux where id=?`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) UpdateFluxURL(ctx context.Context, id int32, url string) (*Flux, error) {
	row := &Flux{}
	err := s.db.QueryRowContext(ctx, `update flux set url=? where id=? returning id, url`, url, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) DeleteFlux(ctx context.Context, id int32) (*Flux, error) {
	row := &Flux{}
	err := s.db.QueryRowContext(ctx, `delete from flux where id=? returning id, url`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) InsertWebhook(ctx context.Context, url string) (*Webhook, error) {
	row := &Webhook{}
	err := s.db.QueryRowContext(ctx, `insert into webhooks(url) values(?) returning id, url`, url).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) SelectAllWebhooks(ctx context.Context) ([]Webhook, error) {
	return s.selectWebhooks(ctx, `select id, url from webhooks order by id`)
}

func (s *SQLiteStore) SelectWebhookByPK(ctx context.Context, id int32) (*Webhook, error) {
	row := &Webhook{}
	err := s.db.QueryRowContext(ctx, `select id, url from webhooks where id=?`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) UpdateWebhookURL(ctx context.Context, id int32, url string) (*Webhook, error) {
	row := &Webhook{}
	err := s.db.QueryRowContext(ctx, `update webhooks set url=? where id=? returning id, url`, url, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id int32) (*Webhook, error) {
	row := &Webhook{}
	err := s.db.QueryRowContext(ctx, `delete from webhooks where id=? returning id, url`, id).Scan(&row.ID, &row.URL)
	if err != nil {
		return nil, translateSQLiteError(err, "")
	}

	return row, nil
}

func (s *SQLiteStore) InsertBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	_, err := s.db.ExecContext(ctx, `insert into bindings(flux_id, webhook_id) values(?, ?)`, fluxID, webhookID)
	if err != nil {
		return nil, translateSQLiteError(err, "fluxId, webhookId")
	}

	return &Binding{FluxID: fluxID, WebhookID: webhookID}, nil
}

func (s *SQLiteStore) DeleteBinding(ctx context.Context, fluxID, webhookID int32) (*Binding, error) {
	result, err := s.db.ExecContext(ctx, `delete from bindings where flux_id=? and webhook_id=?`, fluxID, webhookID)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return &Binding{FluxID: fluxID, WebhookID: webhookID}, nil
}

func (s *SQLiteStore) SelectWebhooksByFluxID(ctx context.Context, fluxID int32) ([]Webhook, error) {
	return s.selectWebhooks(ctx, `select webhooks.id, webhooks.url
from webhooks
  join bindings on webhooks.id=bindings.webhook_id
where bindings.flux_id=?
order by webhooks.id`, fluxID)
}

func (s *SQLiteStore) SelectFluxByWebhookID(ctx context.Context, webhookID int32) ([]Flux, error) {
	return s.selectFlux(ctx, `select flux.id, flux.url
from flux
  join bindings on flux.id=bindings.flux_id
where bindings.webhook_id=?
order by flux.id`, webhookID)
}

func (s *SQLiteStore) InsertArticle(ctx context.Context, row *Article) error {
	err := s.db.QueryRowContext(ctx,
		`insert into articles(title, description, url, source_id) values(?, ?, ?, ?) returning id`,
		row.Title, row.Description, row.URL, row.SourceID,
	).Scan(&row.ID)
	if err != nil {
		return translateSQLiteError(err, "sourceId")
	}

	return nil
}

func (s *SQLiteStore) SelectAllArticles(ctx context.Context) ([]Article, error) {
	return s.selectArticles(ctx, `select id, title, description, url, source_id from articles order by id`)
}

func (s *SQLiteStore) SelectArticlesByFluxID(ctx context.Context, fluxID int32) ([]Article, error) {
	return s.selectArticles(ctx, `select id, title, description, url, source_id from articles where source_id=? order by id`, fluxID)
}

func (s *SQLiteStore) DeleteArticlesByFluxID(ctx context.Context, fluxID int32) (int64, error) {
	result, err := s.db.ExecContext(ctx, `delete from articles where source_id=?`, fluxID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (s *SQLiteStore) InsertDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	_, err := s.db.ExecContext(ctx, `insert into deliveries(content_id, receiver_id) values(?, ?)`, articleID, webhookID)
	if err != nil {
		return nil, translateSQLiteError(err, "contentId, receiverId")
	}

	return &Delivery{ContentID: articleID, ReceiverID: webhookID}, nil
}

func (s *SQLiteStore) DeleteDelivery(ctx context.Context, webhookID, articleID int32) (*Delivery, error) {
	result, err := s.db.ExecContext(ctx, `delete from deliveries where content_id=? and receiver_id=?`, articleID, webhookID)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return &Delivery{ContentID: articleID, ReceiverID: webhookID}, nil
}

func (s *SQLiteStore) DeleteDeliveriesByArticleID(ctx context.Context, articleID int32) (int64, error) {
	result, err := s.db.ExecContext(ctx, `delete from deliveries where content_id=?`, articleID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (s *SQLiteStore) DeleteDeliveriesByWebhookID(ctx context.Context, webhookID int32) (int64, error) {
	result, err := s.db.ExecContext(ctx, `delete from deliveries where receiver_id=?`, webhookID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (s *SQLiteStore) SelectWebhooksByArticleID(ctx context.Context, articleID int32) ([]Webhook, error) {
	return s.selectWebhooks(ctx, `select webhooks.id, webhooks.url
from webhooks
  join deliveries on webhooks.id=deliveries.receiver_id
where deliveries.content_id=?
order by webhooks.id`, articleID)
}

func (s *SQLiteStore) SelectArticlesByWebhookID(ctx context.Context, webhookID int32) ([]Article, error) {
	return s.selectArticles(ctx, `select articles.id, articles.title, articles.description, articles.url, articles.source_id
from articles
  join deliveries on articles.id=deliveries.content_id
where deliveries.receiver_id=?
order by articles.id`, webhookID)
}
