package stream

import (
	"errors"
	"testing"
)

func utf16LE(s string) []byte {
	out := []byte{0xFF, 0xFE}
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func TestResolve_CandidateOrder(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		wantEnc  string
		wantText string
	}{
		{"ascii is utf-8", []byte("plain,text\n"), "utf-8", "plain,text\n"},
		{"utf-8 with bom", []byte("\xef\xbb\xbfaé"), "utf-8", "aé"},
		{"utf-16 with bom", utf16LE("a,b\r\n1,2"), "utf-16", "a,b\r\n1,2"},
		{"cr-only legacy bytes", []byte("caf\x8e\r"), "macroman", "café\r"},
		{"crlf legacy bytes", []byte("caf\xe9\r\n"), "windows-1252", "café\r\n"},
		{"unassigned windows byte", []byte("a\x81b"), "windows-1252", "a\u0081b"},
		{"empty", []byte{}, "utf-8", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, text, err := Resolve(tt.raw, DefaultEncodings())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc.Name() != tt.wantEnc {
				t.Errorf("encoding = %q, want %q", enc.Name(), tt.wantEnc)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestResolve_Undecodable(t *testing.T) {
	_, _, err := Resolve([]byte("ok"), nil)
	if !errors.Is(err, ErrUndecodableContent) {
		t.Errorf("empty candidates: error = %v, want ErrUndecodableContent", err)
	}

	_, _, err = Resolve([]byte("abc\xff"), []Encoding{UTF8, UTF16})
	if !errors.Is(err, ErrUndecodableContent) {
		t.Fatalf("strict candidates: error = %v, want ErrUndecodableContent", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want a wrapped *DecodeError", err)
	}
	if de.Encoding != "utf-8" || de.Offset != 3 {
		t.Errorf("DecodeError = %+v, want utf-8 at byte 3", de)
	}
}

func TestUTF16_RejectsOddLength(t *testing.T) {
	raw := append(utf16LE("ab"), 'c')
	if _, err := UTF16.Decode(raw); err == nil {
		t.Error("expected error for odd byte count")
	}
}

func TestMacRoman_RequiresCarriageReturns(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"cr only", "a\rb\r", false},
		{"lf present", "a\rb\n", true},
		{"no line breaks", "ab", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MacRoman.Decode([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodingByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"UTF-8", "utf-8", false},
		{" cp1252 ", "windows-1252", false},
		{"mac-roman", "macroman", false},
		{"latin1", "iso-8859-1", false},
		{"ebcdic", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := EncodingByName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && enc.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", enc.Name(), tt.want)
			}
		})
	}
}

func TestEncodingsByName_KeepsOrder(t *testing.T) {
	encs, err := EncodingsByName(DefaultEncodingNames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Names(encs)
	for i, name := range DefaultEncodingNames {
		if got[i] != name {
			t.Errorf("position %d = %q, want %q", i, got[i], name)
		}
	}

	if _, err := EncodingsByName([]string{"utf-8", "klingon"}); err == nil {
		t.Error("expected error for unknown name")
	}
}
