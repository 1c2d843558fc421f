package secrets

import (
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box: %v", err)
	}

	sealed, err := box.Seal("whsec_abc123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "whsec_abc123" {
		t.Fatal("sealed value must not equal plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "whsec_abc123" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	box, _ := NewBox(testKey)
	sealed, _ := box.Seal("value")

	tampered := []byte(sealed)
	if tampered[len(tampered)-1] == 'a' {
		tampered[len(tampered)-1] = 'b'
	} else {
		tampered[len(tampered)-1] = 'a'
	}
	if _, err := box.Open(string(tampered)); err == nil {
		t.Fatal("expected tampered envelope to fail")
	}
}

func TestNewBoxValidatesKey(t *testing.T) {
	if _, err := NewBox("zz"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := NewBox(strings.Repeat("ab", 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}
