package browser

import (
	"context"
	"testing"
)

func TestJoinParagraphs(t *testing.T) {
	got := JoinParagraphs([]string{"  First   paragraph\n", "", "   ", "Second\tone"})
	want := "First paragraph\n\nSecond one"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if JoinParagraphs(nil) != "" {
		t.Fatal("nil input should join to empty")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://example.com/page", false},
		{"  http://example.com  ", false},
		{"", true},
		{"ftp://example.com", true},
		{"example.com", true},
		{"https://", true},
	}
	for _, tt := range tests {
		_, err := ValidateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestRender_RejectsBadURLWithoutLaunchingChrome(t *testing.T) {
	r := NewRenderer(RendererConfig{ProfileDir: t.TempDir(), Headless: true})
	if _, err := r.Render(context.Background(), "not a url"); err == nil {
		t.Fatal("expected validation error")
	}
}
