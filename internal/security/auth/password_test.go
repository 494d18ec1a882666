package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal plaintext")
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Error("verify rejected the right password")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("verify accepted the wrong password")
	}
}

func TestHashEmbedsSalt(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password should differ (per-hash salt)")
	}
}

func TestEmptyInputs(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error hashing empty password")
	}
	if VerifyPassword("", "anything") {
		t.Error("empty hash must never verify")
	}
}
