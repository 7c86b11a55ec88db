package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.50s"},
		{2*time.Minute + 5*time.Second, "2m:5s"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "3h:4m:5s"},
		{26*time.Hour + 1*time.Second, "1d:2h:0m:1s"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.d); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestDecorate(t *testing.T) {
	if got := Decorate("ok", SuccessColor, false); got != "ok" {
		t.Errorf("Decorate disabled = %q", got)
	}
	if got := Decorate("ok", SuccessColor, true); got != SuccessColor+"ok"+DefaultColor {
		t.Errorf("Decorate enabled = %q", got)
	}
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, time.Millisecond)
	s.Start("warping")
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	if !strings.Contains(buf.String(), "warping") {
		t.Errorf("spinner output %q lacks the message", buf.String())
	}
}
