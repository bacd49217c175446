package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	name string
	sql  string
}

var pgxMigrations = []migration{
	{"Create flux", `
    create table flux(
      id serial primary key,
      url varchar not null check(url<>''),
      creation_time timestamp with time zone not null default now(),
      constraint flux_url_unq unique (url)
    );
  `},
	{"Create webhooks", `
    create table webhooks(
      id serial primary key,
      url varchar not null check(url<>''),
      creation_time timestamp with time zone not null default now(),
      constraint webhooks_url_unq unique (url)
    );
  `},
	{"Create bindings", `
    create table bindings(
      flux_id integer not null,
      webhook_id integer not null,
      constraint bindings_pkey primary key (flux_id, webhook_id),
      constraint bindings_flux_id_fkey foreign key (flux_id) references flux on delete cascade,
      constraint bindings_webhook_id_fkey foreign key (webhook_id) references webhooks on delete cascade
    );

    create index on bindings (webhook_id);
  `},
	{"Create articles", `
    create table articles(
      id serial primary key,
      title varchar not null,
      description varchar,
      url varchar,
      source_id integer not null,
      creation_time timestamp with time zone not null default now(),
      constraint articles_source_id_fkey foreign key (source_id) references flux on delete cascade
    );

    create index on articles (source_id);
  `},
	{"Create deliveries", `
    create table deliveries(
      content_id integer not null,
      receiver_id integer not null,
      creation_time timestamp with time zone not null default now(),
      constraint deliveries_pkey primary key (receiver_id, content_id),
      constraint deliveries_content_id_fkey foreign key (content_id) references articles on delete cascade,
      constraint deliveries_receiver_id_fkey foreign key (receiver_id) references webhooks on delete cascade
    );

    create index on deliveries (content_id);
  `},
}

// MigratePgx brings the schema up to date. Each pending migration runs in its own transaction
// together with the schema_version bump.
func MigratePgx(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `create table if not exists schema_version(version integer not null)`)
	if err != nil {
		return err
	}

	for {
		applied, err := applyNextMigration(ctx, pool)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
	}
}

func applyNextMigration(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var applied bool

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `lock table schema_version in access exclusive mode`)
		if err != nil {
			return err
		}

		var version int32
		err = tx.QueryRow(ctx, `select coalesce(max(version), 0) from schema_version`).Scan(&version)
		if err != nil {
			return err
		}
		if int(version) >= len(pgxMigrations) {
			return nil
		}

		m := pgxMigrations[version]
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", version+1, m.name, err)
		}

		_, err = tx.Exec(ctx, `delete from schema_version`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `insert into schema_version(version) values($1)`, version+1)
		if err != nil {
			return err
		}

		applied = true
		return nil
	})

	return applied, err
}
