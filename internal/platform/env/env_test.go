package env

import (
	"testing"
	"time"
)

func TestStringDefault(t *testing.T) {
	if got := String("BIOMON_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestStringsParsesCommaList(t *testing.T) {
	t.Setenv("BIOMON_TEST_LIST", "a, b ,,c")
	got := Strings("BIOMON_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestDurationParses(t *testing.T) {
	t.Setenv("BIOMON_TEST_DUR", "90s")
	got, err := Duration("BIOMON_TEST_DUR", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	t.Setenv("BIOMON_TEST_DUR", "ninety")
	if _, err := Duration("BIOMON_TEST_DUR", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("BIOMON_TEST_INT", "42")
	i, err := Int("BIOMON_TEST_INT", 0)
	if err != nil || i != 42 {
		t.Fatalf("expected 42, got %d err %v", i, err)
	}
	t.Setenv("BIOMON_TEST_BOOL", "true")
	b, err := Bool("BIOMON_TEST_BOOL", false)
	if err != nil || !b {
		t.Fatalf("expected true, got %v err %v", b, err)
	}
}
