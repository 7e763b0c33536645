// Package upload pushes decoded records to the document API in batches and
// processes drop directories of record files.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// DefaultBatchSize is used when no batch size is configured.
const DefaultBatchSize = 1000

// ContextCheckInterval is how often (in records) to check for cancellation
// between batches.
var ContextCheckInterval = 100

// Sink accepts one batch of documents. *client.Client and *client.Database
// both satisfy it.
type Sink interface {
	UploadDocuments(ctx context.Context, docs any) (json.RawMessage, error)
}

// Uploader decodes files and sends their records to a Sink.
type Uploader struct {
	sink       Sink
	batchSize  int
	decodeOpts []stream.Option
	metrics    *metrics.Metrics
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithBatchSize sets how many records go into one upload call.
func WithBatchSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.batchSize = n
		}
	}
}

// WithDecodeOptions passes options through to stream.Load.
func WithDecodeOptions(opts ...stream.Option) Option {
	return func(u *Uploader) {
		u.decodeOpts = append(u.decodeOpts, opts...)
	}
}

// WithMetrics records decode and batch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// New returns an Uploader that sends batches to sink.
func New(sink Sink, opts ...Option) *Uploader {
	u := &Uploader{sink: sink, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Result summarises one uploaded file.
type Result struct {
	UploadID string
	File     string
	Format   stream.Format
	Encoding string
	Records  int
	Batches  int
	Duration time.Duration
}

// UploadFile decodes path and uploads every record. Batches sent before a
// decode error stay uploaded; the error is returned with the partial counts.
func (u *Uploader) UploadFile(ctx context.Context, path string) (Result, error) {
	res := Result{UploadID: uuid.NewString(), File: path}
	log := logging.WithFields(ctx, "upload_id", res.UploadID, "file", path)
	start := time.Now()

	opts := append([]stream.Option{
		stream.WithResolveHook(func(enc stream.Encoding) { res.Encoding = enc.Name() }),
	}, u.decodeOpts...)

	desc, seq, err := stream.Load(path, opts...)
	if err != nil {
		u.metrics.ObserveDecode(stream.FormatUnknown.String(), "", 0, time.Since(start), err)
		return res, err
	}
	res.Format = desc.Format
	log.Info("upload started", "format", desc.Format.String())

	res.Records, res.Batches, err = u.UploadRecords(ctx, seq)
	res.Duration = time.Since(start)
	u.metrics.ObserveDecode(desc.Format.String(), res.Encoding, res.Records, res.Duration, err)
	if err != nil {
		log.Error("upload failed", "error", err, "records", res.Records, "batches", res.Batches)
		return res, fmt.Errorf("upload %s: %w", path, err)
	}

	log.Info("upload completed",
		"records", res.Records,
		"batches", res.Batches,
		"encoding", res.Encoding,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// UploadRecords drains seq in batches. It returns the number of records
// uploaded and batches sent.
func (u *Uploader) UploadRecords(ctx context.Context, seq iter.Seq2[stream.Record, error]) (int, int, error) {
	var (
		batch   = make([]stream.Record, 0, u.batchSize)
		sent    int
		batches int
		seen    int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := u.sink.UploadDocuments(ctx, batch)
		u.metrics.ObserveUploadBatch(len(batch), err)
		if err != nil {
			return fmt.Errorf("batch %d: %w", batches+1, err)
		}
		sent += len(batch)
		batches++
		batch = make([]stream.Record, 0, u.batchSize)
		return nil
	}

	for rec, err := range seq {
		if err != nil {
			return sent, batches, err
		}
		seen++
		if seen%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return sent, batches, fmt.Errorf("operation cancelled at record %d: %w", seen, err)
			}
		}

		batch = append(batch, rec)
		if len(batch) >= u.batchSize {
			if err := flush(); err != nil {
				return sent, batches, err
			}
		}
	}

	if err := flush(); err != nil {
		return sent, batches, err
	}
	return sent, batches, nil
}
