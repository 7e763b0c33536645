package stream

// encoding.go resolves the text encoding of CSV content.
//
// Candidates are tried in order and the first one that decodes the whole
// input wins. Strict encodings go first because they reject bytes that are
// not valid for them; single-byte legacy encodings accept every byte value and
// would "succeed" on anything, so they only run once the strict ones have
// refused the input.

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding decodes raw bytes into UTF-8 text, or reports why it cannot.
type Encoding interface {
	Name() string
	Decode(raw []byte) (string, error)
}

// Built-in encodings.
var (
	UTF8        Encoding = utf8Encoding{}
	UTF16       Encoding = utf16Encoding{}
	MacRoman    Encoding = singleByte{name: "macroman", table: charmap.Macintosh, accept: classicMacLineEndings}
	Windows1252 Encoding = singleByte{name: "windows-1252", table: charmap.Windows1252, sloppy: true}
	Latin1      Encoding = singleByte{name: "iso-8859-1", table: charmap.ISO8859_1}
	Windows1251 Encoding = singleByte{name: "windows-1251", table: charmap.Windows1251, sloppy: true}
)

// DefaultEncodingNames is the candidate order used when none is configured.
var DefaultEncodingNames = []string{"utf-8", "utf-16", "macroman", "windows-1252"}

// DefaultEncodings returns a fresh copy of the default candidate list.
func DefaultEncodings() []Encoding {
	return []Encoding{UTF8, UTF16, MacRoman, Windows1252}
}

var encodingAliases = map[string]Encoding{
	"utf-8":        UTF8,
	"utf8":         UTF8,
	"utf-8-sig":    UTF8,
	"utf-16":       UTF16,
	"utf16":        UTF16,
	"macroman":     MacRoman,
	"mac-roman":    MacRoman,
	"macintosh":    MacRoman,
	"windows-1252": Windows1252,
	"cp1252":       Windows1252,
	"iso-8859-1":   Latin1,
	"latin1":       Latin1,
	"latin-1":      Latin1,
	"windows-1251": Windows1251,
	"cp1251":       Windows1251,
}

// EncodingByName looks up a built-in encoding by name or common alias.
func EncodingByName(name string) (Encoding, error) {
	enc, ok := encodingAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

// EncodingsByName resolves an ordered list of names.
func EncodingsByName(names []string) ([]Encoding, error) {
	out := make([]Encoding, 0, len(names))
	for _, name := range names {
		enc, err := EncodingByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// Names returns the names of encs in order.
func Names(encs []Encoding) []string {
	names := make([]string, len(encs))
	for i, enc := range encs {
		names[i] = enc.Name()
	}
	return names
}

// Resolve decodes raw with the first candidate that accepts it.
func Resolve(raw []byte, candidates []Encoding) (Encoding, string, error) {
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("%w: no candidate encodings configured", ErrUndecodableContent)
	}

	errs := make([]error, 0, len(candidates))
	for _, enc := range candidates {
		text, err := enc.Decode(raw)
		if err == nil {
			return enc, text, nil
		}
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrUndecodableContent, errors.Join(errs...))
}

type utf8Encoding struct{}

func (utf8Encoding) Name() string { return "utf-8" }

func (utf8Encoding) Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if off := firstInvalidUTF8(raw); off >= 0 {
		return "", &DecodeError{Encoding: "utf-8", Offset: off, Reason: "invalid byte sequence"}
	}
	return string(raw), nil
}

// firstInvalidUTF8 returns the offset of the first invalid sequence, or -1.
func firstInvalidUTF8(b []byte) int {
	if utf8.Valid(b) {
		return -1
	}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

type utf16Encoding struct{}

func (utf16Encoding) Name() string { return "utf-16" }

func (utf16Encoding) Decode(raw []byte) (string, error) {
	if len(raw) < 2 || !(raw[0] == 0xFF && raw[1] == 0xFE || raw[0] == 0xFE && raw[1] == 0xFF) {
		return "", &DecodeError{Encoding: "utf-16", Offset: -1, Reason: "missing byte order mark"}
	}
	if len(raw)%2 != 0 {
		return "", &DecodeError{Encoding: "utf-16", Offset: len(raw) - 1, Reason: "odd number of bytes"}
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", &DecodeError{Encoding: "utf-16", Offset: -1, Reason: err.Error()}
	}
	return string(out), nil
}

// singleByte wraps a charmap. accept, when set, vetoes input before decoding.
// A sloppy table maps bytes the charmap leaves unassigned to the code point
// with the same value instead of U+FFFD.
type singleByte struct {
	name   string
	table  *charmap.Charmap
	accept func(raw []byte) error
	sloppy bool
}

func (s singleByte) Name() string { return s.name }

func (s singleByte) Decode(raw []byte) (string, error) {
	if s.accept != nil {
		if err := s.accept(raw); err != nil {
			return "", &DecodeError{Encoding: s.name, Offset: -1, Reason: err.Error()}
		}
	}
	if !s.sloppy {
		out, _, err := transform.Bytes(s.table.NewDecoder(), raw)
		if err != nil {
			return "", &DecodeError{Encoding: s.name, Offset: -1, Reason: err.Error()}
		}
		return string(out), nil
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		r := s.table.DecodeByte(c)
		if r == utf8.RuneError {
			r = rune(c)
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// classicMacLineEndings accepts content that breaks lines with CR only.
// Every byte is valid MacRoman, so line endings are the only signal that
// separates a Mac export from a Windows-1252 one.
func classicMacLineEndings(raw []byte) error {
	if bytes.IndexByte(raw, '\n') >= 0 {
		return errors.New("line feed present; classic Mac text uses carriage returns only")
	}
	if bytes.IndexByte(raw, '\r') < 0 {
		return errors.New("no carriage return line endings")
	}
	return nil
}
