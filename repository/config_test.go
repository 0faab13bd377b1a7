package repository

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Target
		wantErr bool
	}{
		{"valid", "acme/widgets", Target{Owner: "acme", Name: "widgets"}, false},
		{"valid-with-dots", "acme/widgets.io", Target{Owner: "acme", Name: "widgets.io"}, false},
		{"surrounding-space", " acme/widgets ", Target{Owner: "acme", Name: "widgets"}, false},
		{"no-slash", "noslash", Target{}, true},
		{"too-many-segments", "a/b/c", Target{}, true},
		{"empty-owner", "/widgets", Target{}, true},
		{"empty-name", "acme/", Target{}, true},
		{"empty", "", Target{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedTarget) {
				t.Errorf("ParseTarget() error = %v, want ErrMalformedTarget", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseTarget() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMirrorPath(t *testing.T) {
	got := MirrorPath("/srv/mirrors", Target{Owner: "acme", Name: "widgets"})
	if got != "/srv/mirrors/acme/widgets.git" {
		t.Errorf("MirrorPath() = %q", got)
	}
	if s := (Target{Owner: "acme", Name: "widgets"}).String(); s != "acme/widgets" {
		t.Errorf("String() = %q", s)
	}
}

func TestConfig_ValidateAndApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		in      Config
		want    Config
		wantErr bool
	}{
		{"defaults", Config{Root: "/srv/mirrors"}, Config{Root: "/srv/mirrors", SourceURL: DefaultSourceURL}, false},
		{"enterprise", Config{Root: "/srv/mirrors", SourceURL: "https://ghe.example.com"}, Config{Root: "/srv/mirrors", SourceURL: "https://ghe.example.com"}, false},
		{"no-root", Config{}, Config{SourceURL: DefaultSourceURL}, true},
		{"relative-root", Config{Root: "mirrors"}, Config{Root: "mirrors", SourceURL: DefaultSourceURL}, true},
		{"bad-source", Config{Root: "/srv/mirrors", SourceURL: "ftp://example.com"}, Config{Root: "/srv/mirrors", SourceURL: "ftp://example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.ValidateAndApplyDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAndApplyDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, tt.in); diff != "" {
				t.Errorf("ValidateAndApplyDefaults() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
