package config

import "testing"

func TestGetString(t *testing.T) {
	t.Setenv("PORTAL_TEST_STR", "value")
	if got := GetString("PORTAL_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("expected set value, got %q", got)
	}
	if got := GetString("PORTAL_TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("PORTAL_TEST_INT", "42")
	if got := GetInt("PORTAL_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("PORTAL_TEST_INT", "not-a-number")
	if got := GetInt("PORTAL_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("PORTAL_TEST_BOOL", "true")
	if !GetBool("PORTAL_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("PORTAL_TEST_BOOL", "maybe")
	if GetBool("PORTAL_TEST_BOOL", false) {
		t.Fatal("expected fallback on parse error")
	}
}
