package stream

// format.go decides which structural format a file uses.
//
// The suffix is checked first. CSV is trusted outright; the JSON suffixes
// only say "some JSON", and the first significant byte picks between a single
// array and one object per line.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format is the structural layout of a record file.
type Format int

const (
	FormatUnknown Format = iota
	FormatArray          // one JSON array of objects
	FormatStream         // one JSON object per line
	FormatCSV            // header row followed by data rows
)

func (f Format) String() string {
	switch f {
	case FormatArray:
		return "json"
	case FormatStream:
		return "jsons"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// unit names the thing a MalformedRecordError position counts.
func (f Format) unit() string {
	switch f {
	case FormatArray:
		return "element"
	case FormatStream:
		return "line"
	case FormatCSV:
		return "row"
	default:
		return "position"
	}
}

// Descriptor is produced once by Sniff and passed to Decode.
type Descriptor struct {
	Name   string
	Format Format

	// Encodings lists the candidates tried, in order, for CSV content.
	// Empty for JSON formats.
	Encodings []Encoding
}

// Suffixes recognised by Sniff. Matching ignores case.
const (
	SuffixCSV    = ".csv"
	SuffixJSON   = ".json"
	SuffixStream = ".jsons"
)

// streamAliases are accepted in addition to SuffixStream.
var streamAliases = []string{".jsonl", ".ndjson"}

type suffixKind int

const (
	suffixNone suffixKind = iota
	suffixCSV
	suffixJSON
)

func classifySuffix(name string) suffixKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, SuffixCSV):
		return suffixCSV
	case strings.HasSuffix(lower, SuffixJSON), strings.HasSuffix(lower, SuffixStream):
		return suffixJSON
	}
	for _, alias := range streamAliases {
		if strings.HasSuffix(lower, alias) {
			return suffixJSON
		}
	}
	return suffixNone
}

// Recognized reports whether name carries one of the supported suffixes.
func Recognized(name string) bool {
	return classifySuffix(name) != suffixNone
}

// Sniff inspects name and, unless the suffix is CSV, the leading bytes of r.
// The reader is rewound to its start before Sniff returns.
func Sniff(name string, r io.ReadSeeker, opts ...Option) (Descriptor, error) {
	o := newOptions(opts)
	desc := Descriptor{Name: name}

	kind := classifySuffix(name)
	if kind == suffixCSV {
		desc.Format = FormatCSV
		desc.Encodings = o.encodings
		return desc, nil
	}

	first, peekErr := firstSignificantByte(r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Descriptor{}, fmt.Errorf("rewind %s: %w", name, err)
	}
	if peekErr != nil {
		return Descriptor{}, fmt.Errorf("peek %s: %w", name, peekErr)
	}

	switch {
	case first == '[':
		desc.Format = FormatArray
	case kind == suffixJSON, first == '{':
		desc.Format = FormatStream
	default:
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnrecognizedFormat, name)
	}
	return desc, nil
}

// SniffFile opens path, sniffs it, and closes it again.
func SniffFile(path string, opts ...Option) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Sniff(path, f, opts...)
}

// firstSignificantByte returns the first byte that is not JSON whitespace,
// ignoring a leading UTF-8 BOM. It returns 0 for empty or blank content.
func firstSignificantByte(r io.Reader) (byte, error) {
	br := skipBOM(r)
	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a buffered reader positioned after a leading UTF-8 byte
// order mark, if one is present. Windows tools like to add it.
func skipBOM(r io.Reader) *bufio.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
