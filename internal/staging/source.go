package staging

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/docstream/internal/stream"
)

var _ pgx.CopyFromSource = (*recordSource)(nil)

// recordSource feeds a record iterator to CopyFrom one row at a time, so a
// stream file is never held in memory. A decode error ends the copy and is
// reported through Err.
type recordSource struct {
	next    func() (stream.Record, error, bool)
	stop    func()
	batchID pgtype.UUID
	file    string

	count  int
	values []any
	err    error
}

func newRecordSource(seq iter.Seq2[stream.Record, error], batchID pgtype.UUID, file string) *recordSource {
	next, stop := iter.Pull2(seq)
	return &recordSource{next: next, stop: stop, batchID: batchID, file: file}
}

func (s *recordSource) Next() bool {
	if s.err != nil {
		return false
	}
	rec, err, ok := s.next()
	if !ok {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.err = fmt.Errorf("encode record %d: %w", s.count+1, err)
		return false
	}
	s.count++
	s.values = []any{s.batchID, s.file, int32(s.count), json.RawMessage(data)}
	return true
}

func (s *recordSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *recordSource) Err() error {
	return s.err
}

// Count is the number of rows handed to CopyFrom so far.
func (s *recordSource) Count() int { return s.count }

// Close stops the underlying iterator, releasing its file.
func (s *recordSource) Close() { s.stop() }
