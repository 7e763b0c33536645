// Package stream turns record files of guessable format into a uniform lazy
// sequence of records.
//
// Three structural formats are supported:
//
//   - a single JSON array of objects (".json")
//   - newline-delimited JSON objects (".jsons", ".jsonl", ".ndjson")
//   - CSV with a header row (".csv")
//
// # Sniffing
//
// [Sniff] derives a [Descriptor] from the filename suffix. The suffix is only a
// hint between the two JSON variants: the first non-whitespace byte decides,
// so a ".jsons" file holding one wrapped array still decodes as an array and a
// ".json" file holding one object per line decodes as a stream. Files without
// a known suffix are accepted when their content starts like JSON.
//
// # Encodings
//
// JSON content is read as UTF-8. CSV content is resolved against an ordered
// candidate list by [Resolve]: strict encodings that reject invalid input come
// first, permissive single-byte encodings last. The default list is
//
//	utf-8, utf-16 (BOM required), macroman (CR-only line endings), windows-1252
//
// # Decoding
//
// [Decode] yields records from an io.Reader; [Load] sniffs a path and returns
// a sequence that opens the file on every iteration and closes it when the
// range loop ends, whether the caller consumed everything, stopped early, or
// hit an error:
//
//	desc, records, err := stream.Load("reviews.csv")
//	if err != nil {
//	    return err
//	}
//	for rec, err := range records {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(desc.Format, rec["text"])
//	}
//
// Errors are never skipped: the first malformed element, line, or row ends the
// sequence with a [*MalformedRecordError] naming its position.
package stream
