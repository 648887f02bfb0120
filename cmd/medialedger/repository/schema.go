package repository

import (
	"context"
	"fmt"

	"github.com/lyzr/medialedger/common/db"
)

// Schema for the asset ledger. The unique index on content_hash is what
// makes the dedup lookup-then-insert race safe; the partial indexes serve
// the reclaimer's sweeps.
const schema = `
CREATE TABLE IF NOT EXISTS asset (
	asset_id       uuid PRIMARY KEY,
	storage_key    text NOT NULL,
	delivery_url   text NOT NULL,
	content_hash   text NOT NULL,
	status         text NOT NULL,
	expires_at     timestamptz,
	archived_at    timestamptz,
	origin_source  text NOT NULL,
	origin_context text NOT NULL,
	intended_use   text,
	used_by        jsonb NOT NULL DEFAULT '[]'::jsonb,
	meta           jsonb NOT NULL DEFAULT '{}'::jsonb,
	uploaded_by    text NOT NULL DEFAULT '',
	created_at     timestamptz NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS asset_content_hash_key ON asset (content_hash);
CREATE UNIQUE INDEX IF NOT EXISTS asset_storage_key_key ON asset (storage_key);
CREATE INDEX IF NOT EXISTS asset_temp_expiry_idx ON asset (status, expires_at) WHERE status = 'temp';
CREATE INDEX IF NOT EXISTS asset_archived_age_idx ON asset (status, archived_at) WHERE status = 'archived';
`

// InitSchema applies the ledger schema. Runs as the bootstrap DB init hook.
func InitSchema(database *db.DB) error {
	if _, err := database.Exec(context.Background(), schema); err != nil {
		return fmt.Errorf("apply asset schema: %w", err)
	}
	return nil
}
