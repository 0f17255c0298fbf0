// Package schema creates and versions the registry tables.
package schema

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool"
)

// Version of the schema DDL below. Bump when tables change.
const SchemaVersion = 1

const ddl = `
create table if not exists "schema_version" (
	"version" int not null primary key
);

create table if not exists "experiment" (
	"experiment_id" serial primary key,
	"name" varchar(256) not null unique,
	"created_at" timestamp with time zone not null default now()
);

create table if not exists "run" (
	"run_id" bigserial primary key,
	"experiment_id" int not null references "experiment" ("experiment_id"),
	"status" varchar(16) not null default 'running'
		check ("status" in ('running', 'finished', 'failed')),
	"start_time" timestamp with time zone not null default now(),
	"end_time" timestamp with time zone
);

create index if not exists "idx_run_latest"
	on "run" ("experiment_id", "status", "start_time" desc, "run_id" desc);

create table if not exists "run_param" (
	"param_id" bigserial,
	"run_id" bigint not null references "run" ("run_id") on delete cascade,
	"key" varchar(256) not null,
	"value" text not null,
	primary key ("run_id", "key")
);

create table if not exists "run_metric" (
	"metric_id" bigserial primary key,
	"run_id" bigint not null references "run" ("run_id") on delete cascade,
	"key" varchar(256) not null,
	"value" double precision not null,
	"step" int,
	"logged_at" timestamp with time zone not null default now()
);

create index if not exists "idx_run_metric_series"
	on "run_metric" ("run_id", "key", "metric_id");

create table if not exists "run_tag" (
	"run_id" bigint not null references "run" ("run_id") on delete cascade,
	"key" varchar(256) not null,
	"value" text not null,
	primary key ("run_id", "key")
);

create table if not exists "artifact" (
	"artifact_id" bigserial primary key,
	"run_id" bigint not null references "run" ("run_id") on delete cascade,
	"path" varchar(1024) not null,
	"location" text not null,
	unique ("run_id", "path")
);

create table if not exists "pipeline_run" (
	"pipeline_run_id" bigserial primary key,
	"trigger_id" varchar(256) not null,
	"state" varchar(32) not null default 'pending'
		check ("state" in (
			'pending',
			'training_running', 'training_finished', 'training_failed',
			'scoring_running', 'scoring_finished', 'scoring_failed'
		)),
	"training_run_id" bigint references "run" ("run_id"),
	"scoring_run_id" bigint references "run" ("run_id"),
	"created_at" timestamp with time zone not null default now(),
	"updated_at" timestamp with time zone not null default now()
);
`

type pgSchema struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) *pgSchema {
	return &pgSchema{pool: pool}
}

// Version reads the current schema version. 0 means no schema is applied yet.
func (s *pgSchema) Version(ctx context.Context) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return -1, err
	}
	defer conn.Release()

	var version int
	if err := conn.QueryRow(
		ctx, `select coalesce(max("version"), 0) from "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, err
	}

	return version, nil
}

// Ensure applies the schema when the database is behind SchemaVersion.
// Safe to call on every startup.
func (s *pgSchema) Ensure(ctx context.Context) error {
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if SchemaVersion <= current {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `delete from "schema_version"`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx, `insert into "schema_version" ("version") values ($1)`, SchemaVersion,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
