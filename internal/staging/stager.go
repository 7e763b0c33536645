// Package staging copies decoded records into a PostgreSQL table so they can
// be inspected with SQL before (or instead of) being uploaded.
//
// Every record becomes one JSONB row tagged with the batch it arrived in.
// A batch is written inside a single transaction with the COPY protocol, so
// a file is either staged completely or not at all.
package staging

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// DefaultTable receives records when no table is configured.
const DefaultTable = "staged_records"

// copyColumns must match the order of recordSource.Values.
var copyColumns = []string{"batch_id", "source_file", "position", "record"}

// DB is the subset of *pgxpool.Pool the Stager needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Stager writes records into one staging table.
type Stager struct {
	db         DB
	table      pgx.Identifier
	decodeOpts []stream.Option
	metrics    *metrics.Metrics
}

// Option configures a Stager.
type Option func(*Stager)

// WithDecodeOptions passes options through to stream.Load.
func WithDecodeOptions(opts ...stream.Option) Option {
	return func(s *Stager) {
		s.decodeOpts = append(s.decodeOpts, opts...)
	}
}

// WithMetrics counts staged records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Stager) {
		s.metrics = m
	}
}

// New returns a Stager for table, which may be schema-qualified
// ("staging.records").
func New(db DB, table string, opts ...Option) (*Stager, error) {
	if table == "" {
		table = DefaultTable
	}
	ident, err := ParseIdentifier(table)
	if err != nil {
		return nil, err
	}
	s := &Stager{db: db, table: ident}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Table returns the sanitized table name.
func (s *Stager) Table() string { return s.table.Sanitize() }

// ParseIdentifier splits a dotted table name into its parts.
func ParseIdentifier(name string) (pgx.Identifier, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q: too many dots", name)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return pgx.Identifier(parts), nil
}

// Result summarises one staged batch.
type Result struct {
	BatchID  string
	File     string
	Format   stream.Format
	Encoding string
	Records  int64
	Duration time.Duration
}

// StageFile decodes path and copies every record in one transaction. Nothing
// is committed if any record fails to decode.
func (s *Stager) StageFile(ctx context.Context, path string) (Result, error) {
	res := Result{File: path}

	opts := append([]stream.Option{
		stream.WithResolveHook(func(enc stream.Encoding) { res.Encoding = enc.Name() }),
	}, s.decodeOpts...)

	desc, seq, err := stream.Load(path, opts...)
	if err != nil {
		return res, err
	}
	res.Format = desc.Format

	batch, err := s.StageRecords(ctx, path, seq)
	res.BatchID, res.Records, res.Duration = batch.BatchID, batch.Records, batch.Duration
	if err != nil {
		return res, fmt.Errorf("stage %s: %w", path, err)
	}
	return res, nil
}

// StageRecords copies seq into the table under a fresh batch ID.
func (s *Stager) StageRecords(ctx context.Context, source string, seq iter.Seq2[stream.Record, error]) (Result, error) {
	id := uuid.New()
	res := Result{BatchID: id.String(), File: source}
	log := logging.WithFields(ctx, "batch_id", res.BatchID, "file", source)
	start := time.Now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	src := newRecordSource(seq, pgtype.UUID{Bytes: id, Valid: true}, source)
	defer src.Close()

	n, err := tx.CopyFrom(ctx, s.table, copyColumns, src)
	if srcErr := src.Err(); srcErr != nil {
		err = srcErr
	}
	if err != nil {
		log.Error("staging failed", "error", err, "records", src.Count())
		return res, fmt.Errorf("copy into %s: %w", s.Table(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}

	res.Records = n
	res.Duration = time.Since(start)
	s.metrics.AddStaged(n)
	log.Info("records staged",
		"table", s.Table(),
		"records", n,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// ErrInvalidBatchID is returned by DeleteBatch for IDs that are not UUIDs.
var ErrInvalidBatchID = errors.New("invalid batch ID")

// DeleteBatch removes every row staged under batchID and returns the count.
func (s *Stager) DeleteBatch(ctx context.Context, batchID string) (int64, error) {
	var id pgtype.UUID
	if err := id.Scan(batchID); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBatchID, err)
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE batch_id = $1", s.Table()), id)
	if err != nil {
		return 0, fmt.Errorf("delete batch %s: %w", batchID, err)
	}
	return tag.RowsAffected(), nil
}
