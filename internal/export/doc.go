// Package export writes decoded records to container files other tools can
// read directly: Avro object container files and Parquet.
//
// Records have no fixed schema, so both formats store each record the same
// way: its source file, its 1-based position, its top-level fields rendered
// as strings, and the full record as JSON.
//
// Usage:
//
//	enc, err := export.NewEncoder(export.FormatParquet, "snappy")
//	if err != nil {
//	    return err
//	}
//	stats, err := export.New(enc).ExportFile(ctx, "reviews.csv", "reviews.parquet")
package export
