package session

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	s, err := NewSealer(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

func TestSealOpenRoundTrip(t *testing.T) {
	s := testSealer(t)
	now := time.Now()

	token, err := s.Seal("owner-42", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	ownerID, err := s.Open(token, now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ownerID != "owner-42" {
		t.Errorf("expected owner-42, got %s", ownerID)
	}
}

func TestOpen_ExpiredToken(t *testing.T) {
	s := testSealer(t)
	now := time.Now()

	token, err := s.Seal("owner-42", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := s.Open(token, now); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestOpen_RejectsGarbageAndForeignKey(t *testing.T) {
	s := testSealer(t)

	if _, err := s.Open("not-a-token", time.Now()); err != ErrInvalidToken {
		t.Errorf("garbage token: expected ErrInvalidToken, got %v", err)
	}

	other := testSealer(t)
	token, err := other.Seal("owner-42", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(token, time.Now()); err != ErrInvalidToken {
		t.Errorf("foreign-key token: expected ErrInvalidToken, got %v", err)
	}
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	if _, err := NewSealer("short"); err == nil {
		t.Error("expected error for non-base64 key")
	}
	if _, err := NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 16))); err == nil {
		t.Error("expected error for 16-byte key")
	}
}
