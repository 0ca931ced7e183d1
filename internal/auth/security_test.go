package auth

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewServiceRejectsShortSecret(t *testing.T) {
	if _, err := NewService("short", "admin", "pw", time.Hour); err == nil {
		t.Error("expected error for short jwt secret")
	}
}

func TestLoginAndValidate(t *testing.T) {
	svc, err := NewService(testSecret, "admin", "correct-horse", time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.Login("admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Error("token should expire in the future")
	}

	claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("claims username = %q", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := NewService(testSecret, "admin", "correct-horse", time.Hour)

	if _, err := svc.Login("admin", "wrong"); err == nil {
		t.Error("wrong password should be rejected")
	}
	if _, err := svc.Login("root", "correct-horse"); err == nil {
		t.Error("wrong username should be rejected")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc, _ := NewService(testSecret, "admin", "pw", -time.Hour)

	resp, err := svc.Login("admin", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := svc.ValidateToken(resp.Token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestValidateRejectsForeignToken(t *testing.T) {
	svc1, _ := NewService(testSecret, "admin", "pw", time.Hour)
	svc2, _ := NewService("ffffffffffffffffffffffffffffffff", "admin", "pw", time.Hour)

	resp, err := svc1.Login("admin", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := svc2.ValidateToken(resp.Token); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}

	if _, err := svc1.ValidateToken("not-a-token"); err == nil {
		t.Error("garbage token should be rejected")
	}
}
