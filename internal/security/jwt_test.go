package security

import (
	"strings"
	"testing"
	"time"
)

func newJWTManagerForTest() *JWTManager {
	return NewJWTManager("canteen-payments", "canteen-platform", strings.Repeat("s", 32))
}

func TestIssueAndParseToken(t *testing.T) {
	m := newJWTManagerForTest()
	raw, err := m.IssueToken("student-42", []string{"student"}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := m.ParseToken(raw)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "student-42" {
		t.Fatalf("expected subject student-42, got %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "student" {
		t.Fatalf("expected student role, got %v", claims.Roles)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	m := newJWTManagerForTest()
	raw, err := m.IssueToken("student-42", nil, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := m.ParseToken(raw); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	other := NewJWTManager("canteen-payments", "canteen-platform", strings.Repeat("x", 32))
	raw, err := other.IssueToken("student-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := newJWTManagerForTest().ParseToken(raw); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsWrongAudience(t *testing.T) {
	other := NewJWTManager("canteen-payments", "some-other-api", strings.Repeat("s", 32))
	raw, err := other.IssueToken("student-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := newJWTManagerForTest().ParseToken(raw); err == nil {
		t.Fatal("expected token for a different audience to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := newJWTManagerForTest().ParseToken("not-a-token"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}
