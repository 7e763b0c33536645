package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// Format is an output file format.
type Format string

const (
	FormatAvro    Format = "avro"
	FormatParquet Format = "parquet"
)

// blockSize is how many records are buffered before each write.
const blockSize = 500

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAvro, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// Encoder writes a record sequence to w and returns how many records it
// wrote. It stops at the first decode error.
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, source string, seq iter.Seq2[stream.Record, error]) (int, error)
	Format() Format
	FileExtension() string
}

// NewEncoder creates an encoder for format. An empty compression selects the
// format's default.
func NewEncoder(format Format, compression string) (Encoder, error) {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	switch format {
	case FormatParquet:
		return NewParquetEncoder(compression)
	case FormatAvro:
		return NewAvroEncoder(compression)
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []Format {
	return []Format{FormatParquet, FormatAvro}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format Format) []string {
	switch format {
	case FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case FormatAvro:
		return []string{"null", "deflate", "snappy"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format Format) string {
	switch format {
	case FormatParquet:
		return "snappy"
	case FormatAvro:
		return "deflate"
	default:
		return "uncompressed"
	}
}

// Stats describes one exported file.
type Stats struct {
	Source    string
	Output    string
	Format    Format
	Records   int
	SizeBytes int64
	Duration  time.Duration
}

// Exporter decodes record files and writes them with an Encoder.
type Exporter struct {
	enc        Encoder
	decodeOpts []stream.Option
	metrics    *metrics.Metrics
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithDecodeOptions passes options through to stream.Load.
func WithDecodeOptions(opts ...stream.Option) Option {
	return func(e *Exporter) {
		e.decodeOpts = append(e.decodeOpts, opts...)
	}
}

// WithMetrics counts exported records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// New returns an Exporter writing with enc.
func New(enc Encoder, opts ...Option) *Exporter {
	e := &Exporter{enc: enc}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportFile decodes in and writes it to out. A partial output file is
// removed when anything fails.
func (e *Exporter) ExportFile(ctx context.Context, in, out string) (Stats, error) {
	stats := Stats{Source: in, Output: out, Format: e.enc.Format()}
	start := time.Now()

	_, seq, err := stream.Load(in, e.decodeOpts...)
	if err != nil {
		return stats, err
	}

	file, err := os.Create(out)
	if err != nil {
		return stats, fmt.Errorf("failed to create file: %w", err)
	}

	stats.Records, err = e.enc.Encode(ctx, file, in, seq)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(out)
		return stats, fmt.Errorf("export %s: %w", in, err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return stats, fmt.Errorf("failed to stat file: %w", err)
	}
	stats.SizeBytes = info.Size()
	stats.Duration = time.Since(start)

	e.metrics.AddExported(string(stats.Format), stats.Records)
	logging.WithFields(ctx, "file", in).Info("records exported",
		"output", out,
		"format", string(stats.Format),
		"records", stats.Records,
		"size_bytes", stats.SizeBytes,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// fieldString renders a top-level field value. Strings are kept as they are;
// everything else is written as JSON.
func fieldString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// sortedKeys gives both formats a stable field order.
func sortedKeys(rec stream.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
