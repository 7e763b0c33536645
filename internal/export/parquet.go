package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/parquet-go/parquet-go"

	"github.com/JonMunkholm/docstream/internal/stream"
)

// Ensure implementation satisfies interface at compile time.
var _ Encoder = (*ParquetEncoder)(nil)

// DocumentRow is the Parquet schema for exported records.
type DocumentRow struct {
	Source   string  `parquet:"source,dict"`
	Position int64   `parquet:"position"`
	Fields   []Field `parquet:"fields"`
	JSON     string  `parquet:"json"`
}

// Field is one top-level record field, value rendered as a string.
type Field struct {
	Key   string `parquet:"key,dict"`
	Value string `parquet:"value"`
}

// ParquetEncoder writes Parquet files with one row per record.
type ParquetEncoder struct {
	compression parquet.WriterOption
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) (*ParquetEncoder, error) {
	opt, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}
	return &ParquetEncoder{compression: opt}, nil
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) (parquet.WriterOption, error) {
	switch compression {
	case "snappy", "SNAPPY", "":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip), nil
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw), nil
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd), nil
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("unsupported parquet compression: %q", compression)
	}
}

// Encode writes rows in blocks and closes the writer, which writes the footer.
func (e *ParquetEncoder) Encode(ctx context.Context, w io.Writer, source string, seq iter.Seq2[stream.Record, error]) (int, error) {
	writer := parquet.NewGenericWriter[DocumentRow](
		w,
		e.compression,
		parquet.CreatedBy("docstream", "0.1", ""),
	)

	var (
		block   = make([]DocumentRow, 0, blockSize)
		written int
	)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if _, err := writer.Write(block); err != nil {
			return fmt.Errorf("failed to write records: %w", err)
		}
		written += len(block)
		block = block[:0]
		return ctx.Err()
	}

	position := 0
	for rec, err := range seq {
		if err != nil {
			_ = writer.Close()
			return written, err
		}
		position++
		row, err := parquetRow(source, position, rec)
		if err != nil {
			_ = writer.Close()
			return written, fmt.Errorf("failed to convert record %d: %w", position, err)
		}
		block = append(block, row)
		if len(block) >= blockSize {
			if err := flush(); err != nil {
				_ = writer.Close()
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		_ = writer.Close()
		return written, err
	}

	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("failed to close writer: %w", err)
	}
	return written, nil
}

func parquetRow(source string, position int, rec stream.Record) (DocumentRow, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return DocumentRow{}, err
	}
	keys := sortedKeys(rec)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		s, err := fieldString(rec[k])
		if err != nil {
			return DocumentRow{}, fmt.Errorf("field %q: %w", k, err)
		}
		fields = append(fields, Field{Key: k, Value: s})
	}
	return DocumentRow{
		Source:   source,
		Position: int64(position),
		Fields:   fields,
		JSON:     string(data),
	}, nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() Format {
	return FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
