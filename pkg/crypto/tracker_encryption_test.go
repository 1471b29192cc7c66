package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	cases := []string{
		"ya29.a0AfH6SMB-short-access-token",
		"1//0gRefreshTokenWithSlashes/and+plus=",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range cases {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if ciphertext == plaintext {
			t.Fatal("ciphertext equals plaintext")
		}

		got, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEncryptEmptyStringPassesThrough(t *testing.T) {
	enc, _ := NewEncryptor([]byte("key"))

	ciphertext, err := enc.Encrypt("")
	if err != nil || ciphertext != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v; want empty, nil", ciphertext, err)
	}

	plaintext, err := enc.Decrypt("")
	if err != nil || plaintext != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v; want empty, nil", plaintext, err)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, _ := NewEncryptor([]byte("another-key"))

	if _, err := enc.Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for ciphertext shorter than nonce")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a, _ := NewEncryptor([]byte("key-a"))
	b, _ := NewEncryptor([]byte("key-b"))

	ciphertext, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption failure with mismatched key")
	}
}

func TestShortKeyIsStretched(t *testing.T) {
	enc, err := NewEncryptor([]byte("short"))
	if err != nil {
		t.Fatalf("NewEncryptor with short key: %v", err)
	}

	ciphertext, err := enc.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := enc.Decrypt(ciphertext)
	if err != nil || got != "payload" {
		t.Fatalf("round trip with stretched key: got %q, %v", got, err)
	}
}
