package recordcache

import "testing"

func TestNoOpLogger(t *testing.T) {
	l := &NoOpLogger{}

	// Must not panic
	l.Debug("debug", "k", "v")
	l.Info("info")
	l.Warn("warn", "k", 1)
	l.Error("error", "err", nil)
}

func TestStdLogger(t *testing.T) {
	l := NewStdLogger("test")

	// Must not panic, including odd field counts and non-string keys
	l.Debug("debug", "k", "v")
	l.Info("info", "dangling")
	l.Warn("warn", 42, true)
	l.Error("error")
}

func TestToString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "<nil>"},
		{"s", "s"},
		{42, "42"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := toString(tt.in); got != tt.want {
			t.Errorf("toString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
