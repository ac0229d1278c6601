package security

import (
	"io"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	v := NewValidator(1024)

	tests := []struct {
		url       string
		shouldErr bool
	}{
		{"https://www.openstreetmap.org/trace/1/data", false},
		{"http://example.com/a.gpx", false},
		{"s3://bucket/key.gpx", false},
		{"file:///etc/passwd", true},
		{"ftp://example.com/a.gpx", true},
		{"https:///nohost.gpx", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		_, err := v.ValidateURL(tt.url)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for url: %s", tt.url)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for url %s: %v", tt.url, err)
		}
	}
}

func TestValidateURL_CustomSchemes(t *testing.T) {
	v := NewValidator(1024, "https")
	if _, err := v.ValidateURL("http://example.com/a.gpx"); err == nil {
		t.Error("expected http to be rejected")
	}
}

func TestValidateSize(t *testing.T) {
	v := NewValidator(100)

	if err := v.ValidateSize(50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}
	if err := v.ValidateSize(-1); err != nil {
		t.Errorf("unknown size must pass, got: %v", err)
	}
	if err := v.ValidateSize(150); err == nil {
		t.Error("expected error for size 150 exceeding limit 100")
	}
}

func TestLimitReader(t *testing.T) {
	v := NewValidator(10)

	data, err := io.ReadAll(v.LimitReader(strings.NewReader("0123456789")))
	if err != nil || len(data) != 10 {
		t.Errorf("exact-size payload must pass, got %d bytes, err %v", len(data), err)
	}

	if _, err := io.ReadAll(v.LimitReader(strings.NewReader("0123456789A"))); err == nil {
		t.Error("expected error when payload exceeds the limit")
	}

	unlimited := NewValidator(0)
	if _, err := io.ReadAll(unlimited.LimitReader(strings.NewReader(strings.Repeat("x", 4096)))); err != nil {
		t.Errorf("zero limit means unlimited, got %v", err)
	}
}
