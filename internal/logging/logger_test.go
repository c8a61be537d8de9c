package logging

import "testing"

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode, "debug")
		if err != nil {
			t.Fatalf("mode %q: expected no error, got %v", mode, err)
		}
		l.With("job_id", "j-1").Debug("hello", "row_id", 3)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("dev", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded", "k", "v")
	l.With("a", 1).Warn("discarded too")
}
