package staging

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnsureTable creates the staging table and its batch index if they do not
// exist yet.
func (s *Stager) EnsureTable(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s: %w", s.Table(), err)
		}
	}
	return nil
}

func (s *Stager) schemaStatements() []string {
	table := s.Table()
	index := indexName(s.table[len(s.table)-1])
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	batch_id    UUID        NOT NULL,
	source_file TEXT        NOT NULL,
	position    INTEGER     NOT NULL,
	record      JSONB       NOT NULL,
	staged_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (batch_id)`, index, table),
	}
}

func indexName(table string) string {
	return pgx.Identifier{table + "_batch_id_idx"}.Sanitize()
}
