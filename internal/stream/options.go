package stream

import "github.com/JonMunkholm/docstream/internal/textfix"

// Option adjusts sniffing and decoding.
type Option func(*options)

type options struct {
	encodings []Encoding
	fix       func(string) string
	maxBytes  int64
	onResolve func(Encoding)
}

func newOptions(opts []Option) options {
	o := options{
		encodings: DefaultEncodings(),
		fix:       textfix.Fix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEncodings replaces the CSV candidate list. Order matters.
func WithEncodings(encs ...Encoding) Option {
	return func(o *options) {
		o.encodings = append([]Encoding(nil), encs...)
	}
}

// WithTextFixer sets the function applied to every CSV header and field.
// Pass nil to keep fields exactly as decoded.
func WithTextFixer(fix func(string) string) Option {
	return func(o *options) {
		o.fix = fix
	}
}

// WithMaxBytes caps how much array or CSV content is read into memory.
// Zero or less means no limit.
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		o.maxBytes = n
	}
}

// WithResolveHook is called with the encoding chosen for CSV content,
// before the first record is yielded.
func WithResolveHook(fn func(Encoding)) Option {
	return func(o *options) {
		o.onResolve = fn
	}
}
