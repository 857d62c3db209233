package akenc

import (
	"bytes"
	"testing"
)

func testCEK() []byte {
	cek := make([]byte, cekKeySizeBytes)
	for i := range cek {
		cek[i] = byte(i)
	}
	return cek
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cek := testCEK()
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	for _, mode := range []EncryptionType{Deterministic, Randomized} {
		blob, err := Encrypt(plaintext, cek, mode)
		if err != nil {
			t.Fatalf("mode %v: encrypt failed: %v", mode, err)
		}
		got, err := Decrypt(blob, cek)
		if err != nil {
			t.Fatalf("mode %v: decrypt failed: %v", mode, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("mode %v: round trip mismatch: got %q, want %q", mode, got, plaintext)
		}
	}
}

func TestDeterministicEncryptionIsStable(t *testing.T) {
	cek := testCEK()
	plaintext := []byte("deterministic")

	a, err := Encrypt(plaintext, cek, Deterministic)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt(plaintext, cek, Deterministic)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("deterministic encryption of the same plaintext produced different ciphertexts")
	}
}

func TestRandomizedEncryptionVaries(t *testing.T) {
	cek := testCEK()
	plaintext := []byte("randomized")

	a, err := Encrypt(plaintext, cek, Randomized)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt(plaintext, cek, Randomized)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("randomized encryption of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	cek := testCEK()
	blob, err := Encrypt([]byte("payload"), cek, Randomized)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := append([]byte(nil), blob...)
	tampered[1] ^= 0xFF // tag immediately follows the version byte

	if _, err := Decrypt(tampered, cek); err == nil {
		t.Fatal("expected decryption to fail on a tampered tag")
	}
}

func TestDecryptRejectsWrongCEK(t *testing.T) {
	cek := testCEK()
	other := testCEK()
	other[0] ^= 0xFF

	blob, err := Encrypt([]byte("payload"), cek, Randomized)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(blob, other); err == nil {
		t.Fatal("expected decryption to fail with the wrong CEK")
	}
}

func TestEncryptRejectsPlaintextMode(t *testing.T) {
	if _, err := Encrypt([]byte("x"), testCEK(), Plaintext); err == nil {
		t.Fatal("expected an error encrypting with EncryptionType Plaintext")
	}
}

func TestEncryptRejectsWrongKeySize(t *testing.T) {
	if _, err := Encrypt([]byte("x"), []byte("too short"), Randomized); err == nil {
		t.Fatal("expected an error with a non-32-byte CEK")
	}
}
