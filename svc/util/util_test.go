package util

import (
	"context"
	"strings"
	"testing"
)

func TestRequestIDFrom(t *testing.T) {
	const supplied = "3F2504E0-4F89-11D3-9A0C-0305E82C3301"
	if got := RequestIDFrom(supplied); got != strings.ToLower(supplied) {
		t.Errorf("expected supplied id to be kept, got %q", got)
	}
	if got := RequestIDFrom("<script>"); got == "<script>" || len(got) != 36 {
		t.Errorf("expected a fresh id for junk input, got %q", got)
	}
	ctx := SetRequestID(context.Background(), "abc")
	if GetRequestID(ctx) != "abc" {
		t.Errorf("expected stored id")
	}
}

func TestGenID(t *testing.T) {
	taken := map[string]bool{}
	calls := 0
	id, err := GenID(func(s string) (bool, error) {
		calls++
		if calls < 3 {
			taken[s] = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("GenID failed: %v", err)
	}
	if !ValidID(id) || taken[id] {
		t.Errorf("unexpected id %q", id)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	if _, err := GenID(func(string) (bool, error) { return true, nil }); err == nil {
		t.Error("expected error when every id collides")
	}
}

func TestValidID(t *testing.T) {
	for id, want := range map[string]bool{
		"abcDEF12":  true,
		"abc":       false,
		"abcDEF1!":  false,
		"abcDEF123": false,
	} {
		if ValidID(id) != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, !want, want)
		}
	}
}

func TestHashIP(t *testing.T) {
	a := HashIP("203.0.113.7", []byte("salt-one"))
	b := HashIP("203.0.113.7", []byte("salt-two"))
	if a == b {
		t.Errorf("different salts should give different hashes")
	}
	if a != HashIP("203.0.113.7", []byte("salt-one")) {
		t.Errorf("hash should be stable")
	}
	if strings.Contains(a, "203.0.113.7") {
		t.Errorf("hash leaks the address")
	}
}

func TestRedactPasteContent(t *testing.T) {
	got := RedactPasteContent("my secret diary entry")
	if strings.Contains(got, "secret") || strings.Contains(got, "diary") {
		t.Errorf("paste content leaked: %q", got)
	}
	if got != "[REDACTED 21 chars]" {
		t.Errorf("unexpected redaction %q", got)
	}
}

func TestRedactSecret(t *testing.T) {
	got := RedactSecret("dial redis://h:6379?password=hunter2&db=0 failed")
	if strings.Contains(got, "hunter2") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, "password=[REDACTED]&db=0") {
		t.Errorf("unexpected redaction %q", got)
	}
}
