package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("HERALD_TEST_KEY", "value")
	if got := GetEnv("HERALD_TEST_KEY", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := GetEnv("HERALD_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("HERALD_TEST_INT", "42")
	if got := GetEnvInt("HERALD_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("HERALD_TEST_INT", "not-a-number")
	if got := GetEnvInt("HERALD_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("HERALD_TEST_FLOAT", "0.7")
	if got := GetEnvFloat("HERALD_TEST_FLOAT", 1.0); got != 0.7 {
		t.Fatalf("expected 0.7, got %v", got)
	}
	t.Setenv("HERALD_TEST_FLOAT", "warm")
	if got := GetEnvFloat("HERALD_TEST_FLOAT", 1.0); got != 1.0 {
		t.Fatalf("expected default on parse failure, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("HERALD_TEST_BOOL", "true")
	if !GetEnvBool("HERALD_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if GetEnvBool("HERALD_TEST_BOOL_MISSING", false) {
		t.Fatal("expected default false")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("HERALD_TEST_DUR", "90s")
	if got := GetEnvDuration("HERALD_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv("HERALD_TEST_DUR", "nope")
	if got := GetEnvDuration("HERALD_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("expected default on parse failure, got %v", got)
	}
}
