package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/linkedin/goavro/v2"

	"github.com/JonMunkholm/docstream/internal/stream"
)

// Ensure implementation satisfies interface at compile time.
var _ Encoder = (*AvroEncoder)(nil)

// AvroEncoder writes Avro object container files. Compression is applied by
// the container itself, so the output stays readable by any OCF reader.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression:
// "null", "deflate" or "snappy".
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	switch compression {
	case goavro.CompressionNullLabel, goavro.CompressionDeflateLabel, goavro.CompressionSnappyLabel:
	case "", "none", "uncompressed":
		compression = goavro.CompressionNullLabel
	default:
		return nil, fmt.Errorf("unsupported avro compression: %q", compression)
	}

	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}
	return &AvroEncoder{codec: codec, compression: compression}, nil
}

// avroSchema is the schema of every exported record.
const avroSchema = `{
	"type": "record",
	"name": "Document",
	"namespace": "io.docstream",
	"fields": [
		{"name": "source", "type": "string"},
		{"name": "position", "type": "long"},
		{"name": "fields", "type": {"type": "map", "values": "string"}},
		{"name": "json", "type": "string"}
	]
}`

// Encode appends records to a new container in blocks.
func (e *AvroEncoder) Encode(ctx context.Context, w io.Writer, source string, seq iter.Seq2[stream.Record, error]) (int, error) {
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           e.codec,
		CompressionName: e.compression,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	var (
		block   = make([]any, 0, blockSize)
		written int
	)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := ocfWriter.Append(block); err != nil {
			return fmt.Errorf("failed to write records: %w", err)
		}
		written += len(block)
		block = block[:0]
		return ctx.Err()
	}

	position := 0
	for rec, err := range seq {
		if err != nil {
			return written, err
		}
		position++
		datum, err := avroDatum(source, position, rec)
		if err != nil {
			return written, fmt.Errorf("failed to convert record %d: %w", position, err)
		}
		block = append(block, datum)
		if len(block) >= blockSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

func avroDatum(source string, position int, rec stream.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(rec))
	for _, k := range sortedKeys(rec) {
		s, err := fieldString(rec[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = s
	}
	return map[string]any{
		"source":   source,
		"position": int64(position),
		"fields":   fields,
		"json":     string(data),
	}, nil
}

// Format returns the file format.
func (e *AvroEncoder) Format() Format {
	return FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	return ".avro"
}
