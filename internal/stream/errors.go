package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedFormat is returned when neither the filename nor the
	// leading content identifies a supported structural format.
	ErrUnrecognizedFormat = errors.New("unrecognized format")

	// ErrMalformedRecord matches every *MalformedRecordError via errors.Is.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUndecodableContent is returned when no candidate encoding decodes
	// the input. With a permissive encoding in the list this means the list
	// itself is misconfigured.
	ErrUndecodableContent = errors.New("undecodable content")

	// ErrTooLarge is returned when content that must be materialised exceeds
	// the configured byte limit.
	ErrTooLarge = errors.New("file too large")
)

// MalformedRecordError reports the element, line, or row that failed to parse.
type MalformedRecordError struct {
	Name     string // source name, usually the file path
	Format   Format
	Position int // 1-based; 0 when the failure concerns the whole document
	Err      error
}

func (e *MalformedRecordError) Error() string {
	if e.Position <= 0 {
		return fmt.Sprintf("malformed record in %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("malformed record in %s: %s %d: %v", e.Name, e.Format.unit(), e.Position, e.Err)
}

// Unwrap exposes both ErrMalformedRecord and the underlying cause.
func (e *MalformedRecordError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}

// DecodeError describes why an encoding rejected its input.
type DecodeError struct {
	Encoding string
	Offset   int // byte offset of the first offending byte, -1 if not applicable
	Reason   string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s: %s", e.Encoding, e.Reason)
	}
	return fmt.Sprintf("%s: %s at byte %d", e.Encoding, e.Reason, e.Offset)
}
