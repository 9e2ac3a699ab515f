package validator

import (
	"strings"
	"testing"
)

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		name      string
		chName    string
		chType    string
		wantField string
	}{
		{"valid public", "general", "public", ""},
		{"valid private", "secret-plans", "private", ""},
		{"type optional", "general", "", ""},
		{"empty name", "   ", "public", "name"},
		{"one rune", "x", "public", "name"},
		{"too long", strings.Repeat("a", 101), "public", "name"},
		{"bad type", "general", "direct", "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateChannel(tt.chName, tt.chType)
			if tt.wantField == "" {
				if errs.HasErrors() {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if _, ok := errs[tt.wantField]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	if errs := ValidateMessageContent("hello"); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if errs := ValidateMessageContent(" \n\t "); !errs.HasErrors() {
		t.Fatal("whitespace-only content should fail")
	}
	if errs := ValidateMessageContent(strings.Repeat("é", maxContentLength)); errs.HasErrors() {
		t.Fatalf("length limit counts runes, not bytes: %v", errs)
	}
	if errs := ValidateMessageContent(strings.Repeat("a", maxContentLength+1)); !errs.HasErrors() {
		t.Fatal("over-limit content should fail")
	}
}

func TestValidateEmoji(t *testing.T) {
	if errs := ValidateEmoji("👍"); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if errs := ValidateEmoji(""); !errs.HasErrors() {
		t.Fatal("empty emoji should fail")
	}
	if errs := ValidateEmoji(strings.Repeat("x", 33)); !errs.HasErrors() {
		t.Fatal("oversized emoji should fail")
	}
}

func TestValidateAttachment(t *testing.T) {
	if errs := ValidateAttachment("https://files/x.png", "image/png", 1024); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}

	errs := ValidateAttachment("", "", 0)
	for _, field := range []string{"file_url", "file_type", "file_size"} {
		if _, ok := errs[field]; !ok {
			t.Fatalf("expected error on %q, got %v", field, errs)
		}
	}
}
