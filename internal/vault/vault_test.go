package vault

import (
	"bytes"
	"errors"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestSealOpenRoundTrip(t *testing.T) {
	v := newTestVault(t)
	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("uploads/2026/copy-474.pdf"),
		bytes.Repeat([]byte{0x00}, 16),
		bytes.Repeat([]byte("x"), 1000),
	}
	for _, in := range cases {
		sealed, err := v.Seal(in)
		if err != nil {
			t.Fatalf("Seal(%q): %v", in, err)
		}
		out, err := v.Open(sealed)
		if err != nil {
			t.Fatalf("Open(Seal(%q)): %v", in, err)
		}
		if !bytes.Equal(out, in) {
			t.Errorf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestSealDeterministic(t *testing.T) {
	v := newTestVault(t)
	a, _ := v.Seal([]byte("artifacts/abc"))
	b, _ := v.Seal([]byte("artifacts/abc"))
	if a != b {
		t.Errorf("Seal not deterministic: %q vs %q", a, b)
	}
}

func TestOpenRejectsMalformed(t *testing.T) {
	v := newTestVault(t)
	for _, in := range []string{"", "not base64!!", "YWJj", "YWJjZGVmZ2hpamtsbW5vcA=="} {
		if _, err := v.Open(in); !errors.Is(err, ErrMalformedCiphertext) {
			t.Errorf("Open(%q) = %v, want ErrMalformedCiphertext", in, err)
		}
	}
}

func TestOpenRejectsTampered(t *testing.T) {
	v := newTestVault(t)
	orig := []byte("artifacts/2026/copy-1.pdf")
	sealed, _ := v.Seal(orig)
	b := []byte(sealed)
	b[len(b)-5] ^= 0x01
	out, err := v.Open(string(b))
	if err == nil && bytes.Equal(out, orig) {
		t.Error("Open on tampered ciphertext returned the original plaintext")
	}
}

func TestNewRejectsBadKeyMaterial(t *testing.T) {
	if _, err := New([]byte("short"), []byte("fedcba9876543210")); err == nil {
		t.Error("New accepted a 5-byte key")
	}
	if _, err := New([]byte("0123456789abcdef"), []byte("short")); err == nil {
		t.Error("New accepted a 5-byte IV")
	}
}
