// Package migrations registers the archive schema with goose.
package migrations

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(upCreateJobEvents, downCreateJobEvents)
}

func upCreateJobEvents(tx *sql.Tx) error {
	if _, err := tx.Exec(`create table if not exists job_events (
	id      uuid primary key,
	type    text not null,
	job_id  uuid,
	payload jsonb not null default '{}'::jsonb,
	at      timestamptz not null
)`); err != nil {
		return err
	}
	_, err := tx.Exec(`create index if not exists job_events_job_id_at on job_events (job_id, at)`)
	return err
}

func downCreateJobEvents(tx *sql.Tx) error {
	_, err := tx.Exec(`drop table if exists job_events`)
	return err
}
