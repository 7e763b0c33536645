package stream

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Record is one decoded entry. JSON sources keep their native value types
// (numbers as json.Number); CSV sources only produce strings.
type Record map[string]any

// Decode yields the records in r according to desc. The sequence reads r as
// it goes, so it can be ranged over once; re-open the source to read again.
// The first error ends the sequence.
func Decode(r io.Reader, desc Descriptor, opts ...Option) iter.Seq2[Record, error] {
	o := newOptions(opts)
	switch desc.Format {
	case FormatArray:
		return decodeArray(r, desc, o)
	case FormatStream:
		return decodeStream(r, desc, o)
	case FormatCSV:
		return decodeCSV(r, desc, o)
	default:
		return func(yield func(Record, error) bool) {
			yield(nil, fmt.Errorf("%w: %s", ErrUnrecognizedFormat, desc.Name))
		}
	}
}

// Load sniffs path and returns its descriptor with a sequence over its
// records. Sniffing errors are returned immediately. Each range over the
// sequence opens the file afresh and closes it when the loop ends.
func Load(path string, opts ...Option) (Descriptor, iter.Seq2[Record, error], error) {
	return load(path, func() (io.ReadSeekCloser, error) { return os.Open(path) }, opts)
}

func load(name string, open func() (io.ReadSeekCloser, error), opts []Option) (Descriptor, iter.Seq2[Record, error], error) {
	f, err := open()
	if err != nil {
		return Descriptor{}, nil, fmt.Errorf("open %s: %w", name, err)
	}
	desc, err := Sniff(name, f, opts...)
	f.Close()
	if err != nil {
		return Descriptor{}, nil, err
	}

	seq := func(yield func(Record, error) bool) {
		f, err := open()
		if err != nil {
			yield(nil, fmt.Errorf("open %s: %w", name, err))
			return
		}
		defer f.Close()

		for rec, err := range Decode(f, desc, opts...) {
			if !yield(rec, err) {
				return
			}
		}
	}
	return desc, seq, nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeArray(r io.Reader, desc Descriptor, o options) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		raw, err := readAll(r, o.maxBytes)
		if err != nil {
			yield(nil, fmt.Errorf("read %s: %w", desc.Name, err))
			return
		}

		dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
		dec.UseNumber()

		var doc any
		if err := dec.Decode(&doc); err != nil {
			yield(nil, malformed(desc, 0, jsonSyntax(err)))
			return
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			yield(nil, malformed(desc, 0, errors.New("unexpected data after the top-level array")))
			return
		}

		items, ok := doc.([]any)
		if !ok {
			yield(nil, malformed(desc, 0, fmt.Errorf("top-level value is %s, want array", jsonKind(doc))))
			return
		}
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				yield(nil, malformed(desc, i+1, fmt.Errorf("element is %s, want object", jsonKind(item))))
				return
			}
			if !yield(Record(obj), nil) {
				return
			}
		}
	}
}

func decodeStream(r io.Reader, desc Descriptor, _ options) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		br := skipBOM(r)
		line := 0
		for {
			text, readErr := br.ReadBytes('\n')
			if len(text) > 0 {
				line++
				if trimmed := bytes.TrimSpace(text); len(trimmed) > 0 {
					rec, err := parseObject(trimmed)
					if err != nil {
						yield(nil, malformed(desc, line, err))
						return
					}
					if !yield(rec, nil) {
						return
					}
				}
			}
			if errors.Is(readErr, io.EOF) {
				return
			}
			if readErr != nil {
				yield(nil, fmt.Errorf("read %s: %w", desc.Name, readErr))
				return
			}
		}
	}
}

// parseObject parses exactly one JSON object from b.
func parseObject(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, jsonSyntax(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("more than one JSON value on the line")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value is %s, want object", jsonKind(v))
	}
	return Record(obj), nil
}

// lineBreaks normalises CRLF and lone CR to LF. encoding/csv only splits
// records on LF, and classic Mac exports use CR alone.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func decodeCSV(r io.Reader, desc Descriptor, o options) iter.Seq2[Record, error] {
	candidates := desc.Encodings
	if len(candidates) == 0 {
		candidates = o.encodings
	}
	fix := o.fix
	if fix == nil {
		fix = func(s string) string { return s }
	}

	return func(yield func(Record, error) bool) {
		raw, err := readAll(r, o.maxBytes)
		if err != nil {
			yield(nil, fmt.Errorf("read %s: %w", desc.Name, err))
			return
		}

		enc, text, err := Resolve(raw, candidates)
		if err != nil {
			yield(nil, fmt.Errorf("decode %s: %w", desc.Name, err))
			return
		}
		if o.onResolve != nil {
			o.onResolve(enc)
		}

		cr := csv.NewReader(strings.NewReader(lineBreaks.Replace(text)))
		cr.FieldsPerRecord = -1

		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, malformed(desc, 1, err))
			return
		}
		seen := make(map[string]bool, len(header))
		for i, name := range header {
			name = fix(name)
			if seen[name] {
				yield(nil, malformed(desc, 1, fmt.Errorf("duplicate column %q", name)))
				return
			}
			seen[name] = true
			header[i] = name
		}

		row := 1
		for {
			fields, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			row++
			if err != nil {
				yield(nil, malformed(desc, row, err))
				return
			}
			if len(fields) != len(header) {
				yield(nil, malformed(desc, row, fmt.Errorf("has %d fields, header has %d", len(fields), len(header))))
				return
			}

			rec := make(Record, len(header))
			for i, name := range header {
				rec[name] = fix(fields[i])
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func malformed(desc Descriptor, pos int, err error) error {
	return &MalformedRecordError{Name: desc.Name, Format: desc.Format, Position: pos, Err: err}
}

func readAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return raw, nil
}

// jsonSyntax adds the byte offset to syntax errors, which encoding/json
// leaves out of the message.
func jsonSyntax(err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return fmt.Errorf("byte %d: %w", syn.Offset, err)
	}
	if errors.Is(err, io.EOF) {
		return errors.New("empty document")
	}
	return err
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
