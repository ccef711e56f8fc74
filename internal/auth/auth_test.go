package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
)

func testService() *Service {
	return NewService(&config.JWTConfig{
		Secret:     "test-secret",
		Expiration: 24 * time.Hour,
	})
}

func TestHashPassword(t *testing.T) {
	svc := testService()

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if hash == "" {
		t.Error("Hash should not be empty")
	}

	if hash == password {
		t.Error("Hash should not equal the original password")
	}
}

func TestVerifyPassword(t *testing.T) {
	svc := testService()

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if err := svc.VerifyPassword(hash, password); err != nil {
		t.Errorf("Should verify correct password, got error: %v", err)
	}

	if err := svc.VerifyPassword(hash, "wrongpassword"); err == nil {
		t.Error("Should not verify incorrect password")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := testService()

	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Token should not be empty")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("Expected username alice, got %s", claims.Username)
	}
	if claims.ID == "" {
		t.Error("Expected a JTI claim")
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := testService()

	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	other := NewService(&config.JWTConfig{Secret: "different-secret", Expiration: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Token signed with another secret should not validate")
	}
}

func TestGenerateOneTimePassword(t *testing.T) {
	otp, err := GenerateOneTimePassword(10)
	if err != nil {
		t.Fatalf("Failed to generate one-time password: %v", err)
	}
	if len(otp) != 10 {
		t.Errorf("Expected length 10, got %d", len(otp))
	}
	for _, c := range otp {
		if !strings.ContainsRune(otpAlphabet, c) {
			t.Errorf("Unexpected character %q in one-time password", c)
		}
	}

	if _, err := GenerateOneTimePassword(0); err == nil {
		t.Error("Zero-length request should fail")
	}
}

func TestGenerateInvitationCodeUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateInvitationCode(8)
		if err != nil {
			t.Fatalf("Failed to generate invitation code: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("Expected length 8, got %d", len(code))
		}
		seen[code] = true
	}
	// 31^8 possibilities; 50 draws colliding would indicate broken randomness.
	if len(seen) < 45 {
		t.Errorf("Expected mostly unique codes, got %d unique of 50", len(seen))
	}
}
