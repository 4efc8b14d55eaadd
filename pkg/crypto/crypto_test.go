package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrips(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	svc := NewService(key)

	plaintext := []byte("the document store holds opaque values too")
	blob, err := svc.Encrypt(plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(blob) != NonceSize+TagSize+len(plaintext) {
		t.Fatalf("expected blob length nonce+tag+plaintext, got %d", len(blob))
	}

	got, err := svc.Decrypt(blob, nil)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	key, _ := NewKey()
	svc := NewService(key)

	blob, err := svc.Encrypt([]byte("secret value"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF

	if _, err := svc.Decrypt(blob, nil); err == nil {
		t.Fatalf("expected tampering to be detected")
	}
}

func TestDecryptFailsOnUndersizedCiphertext(t *testing.T) {
	key, _ := NewKey()
	svc := NewService(key)

	if _, err := svc.Decrypt([]byte("too short"), nil); err == nil {
		t.Fatalf("expected a blob shorter than nonce+tag to be rejected")
	}
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	keyA, _ := NewKey()
	keyB, _ := NewKey()

	blob, err := NewService(keyA).Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := NewService(keyB).Decrypt(blob, nil); err == nil {
		t.Fatalf("expected decryption under a different key to fail")
	}
}

func TestEncryptAuthenticatesAdditionalData(t *testing.T) {
	key, _ := NewKey()
	svc := NewService(key)

	blob, err := svc.Encrypt([]byte("payload"), []byte("people:doc-1"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := svc.Decrypt(blob, []byte("people:doc-2")); err == nil {
		t.Fatalf("expected mismatched additional data to fail authentication")
	}
	if _, err := svc.Decrypt(blob, []byte("people:doc-1")); err != nil {
		t.Fatalf("expected matching additional data to authenticate: %v", err)
	}
}

func TestDeriveKeyRejectsLowIterationCounts(t *testing.T) {
	if _, err := DeriveKey("hunter2", 10, nil); err == nil {
		t.Fatalf("expected an iteration count below MinIterations to be rejected")
	}
}

func TestDeriveKeyIsDeterministicGivenSameSalt(t *testing.T) {
	derived1, err := DeriveKey("hunter2", MinIterations, nil)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if len(derived1.Salt) != SaltSize {
		t.Fatalf("expected a %d-byte salt, got %d", SaltSize, len(derived1.Salt))
	}

	derived2, err := DeriveKey("hunter2", MinIterations, derived1.Salt)
	if err != nil {
		t.Fatalf("DeriveKey (re-derive): %v", err)
	}
	if derived1.Key.Bytes != derived2.Key.Bytes {
		t.Fatalf("expected re-deriving with the same salt to reproduce the same key")
	}
}

func TestDeriveKeyProducesUsableEncryptionKey(t *testing.T) {
	derived, err := DeriveKey("correct horse battery staple", MinIterations, nil)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	svc := NewService(derived.Key)

	blob, err := svc.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := svc.Decrypt(blob, nil)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("decrypted %q, want %q", got, "payload")
	}
}

func TestKeyFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := KeyFromBytes("k1", []byte("too-short")); err == nil {
		t.Fatalf("expected a non-32-byte key to be rejected")
	}
}
