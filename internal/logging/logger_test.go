package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New("production", "chatty"); err == nil {
		t.Fatalf("expected invalid level to fail")
	}
	logger, err := New("local", "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel().String() != "warn" {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}
}
