package util

import "testing"

func TestHashKey(t *testing.T) {
	id := "10.0.0.1"
	got := HashKey(id)
	if got != HashKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestSHA256HexKnownValue(t *testing.T) {
	if got := SHA256Hex([]byte("")); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected digest %s", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "laudo.pdf", want: "laudo.pdf"},
		{in: " pasta/laudo.pdf ", want: "pasta_laudo.pdf"},
		{in: `a\b.docx`, want: "a_b.docx"},
		{in: "../x.pdf", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v", tt.in, got, err)
		}
	}
}
