package crypto

import (
	"encoding/base64"
	"testing"
)

func testSecret() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testSecret())
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	cases := []string{"tc11111111111", "P@ss", "123456", ""}
	for _, plaintext := range cases {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		got, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", ciphertext, err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	enc, err := NewEncryptor(testSecret())
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	a, err := enc.Encrypt("tc11111111111")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := enc.Encrypt("tc11111111111")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic ciphertext with zero IV, got %q != %q", a, b)
	}
}

func TestNewEncryptorRejectsBadSecret(t *testing.T) {
	if _, err := NewEncryptor("not-base64!!"); err == nil {
		t.Error("expected error for non-base64 secret")
	}
	if _, err := NewEncryptor(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("expected error for secret that does not decode to 16 bytes")
	}
}
