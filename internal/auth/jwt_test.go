package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndParseJWT(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	token, err := GenerateJWT(secret, userID, "seller@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT(secret, token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Email != "seller@example.com" {
		t.Errorf("Email = %s", claims.Email)
	}
	if claims.Issuer != "escrowdesk" {
		t.Errorf("Issuer = %s", claims.Issuer)
	}
}

func TestParseJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("secret-a", uuid.New(), "a@b.c", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ParseJWT("secret-b", token); err == nil {
		t.Fatal("ParseJWT accepted a token signed with another secret")
	}
}

func TestParseJWTTampered(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), "a@b.c", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ParseJWT("secret", token+"x"); err == nil {
		t.Fatal("ParseJWT accepted a tampered token")
	}
}
