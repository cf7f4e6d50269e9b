package service

import (
	"context"
	"errors"
	"testing"

	"espresso_rig/internal/logger"
)

func TestNormalizeOverride(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1", "1", false},
		{"on", "1", false},
		{" ON ", "1", false},
		{"0", "0", false},
		{"off", "off", false},
		{"OFF", "off", false},
		{"", "", true},
		{"2", "", true},
		{"true", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeOverride(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidOverride) {
				t.Errorf("NormalizeOverride(%q) err = %v, want ErrInvalidOverride", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeOverride(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestControlService_SetOverride(t *testing.T) {
	dev := &stubDevice{}
	svc := NewControlService(dev, logger.Nop())

	v, err := svc.SetOverride(context.Background(), "on")
	if err != nil || v != "1" {
		t.Fatalf("SetOverride = %q, %v", v, err)
	}
	if _, err := svc.SetOverride(context.Background(), "maybe"); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
	if len(dev.overrides) != 1 || dev.overrides[0] != "1" {
		t.Fatalf("invalid value must not reach the device: %v", dev.overrides)
	}
}
