package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestHashTokenAndVerify(t *testing.T) {
	hash, err := HashToken("operator-token-123")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	if hash == "operator-token-123" {
		t.Fatal("hash must not equal the token")
	}

	if err := VerifyToken("operator-token-123", hash); err != nil {
		t.Errorf("correct token must verify: %v", err)
	}

	if err := VerifyToken("wrong-token", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestHashTokenRejectsEmpty(t *testing.T) {
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
	if err := VerifyToken("", "$2a$12$whatever"); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
}

func TestHashTokenRejectsTooLong(t *testing.T) {
	long := strings.Repeat("a", MaxTokenLength+1)
	if _, err := HashToken(long); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("expected ErrTokenTooLong, got %v", err)
	}
}

func TestHashTokenSaltsAreUnique(t *testing.T) {
	h1, _ := HashToken("same-token")
	h2, _ := HashToken("same-token")
	if h1 == h2 {
		t.Error("bcrypt salts must make hashes unique")
	}
}
