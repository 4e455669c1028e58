package middleware

import (
	"strings"
	"testing"

	"github.com/fingle-ai/chat-platform/internal/model"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "Hello, world!", false},
		{"empty", "", true},
		{"whitespace only", "   \n\t ", true},
		{"too long", strings.Repeat("a", 100001), true},
		{"at limit", strings.Repeat("a", 100000), false},
		{"invalid utf8", "ok\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRole(t *testing.T) {
	for _, r := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem} {
		if err := ValidateRole(r); err != nil {
			t.Fatalf("role %q should be valid: %v", r, err)
		}
	}
	if err := ValidateRole("moderator"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestValidateAudioMetadata(t *testing.T) {
	if err := ValidateAudioMetadata(nil); err != nil {
		t.Fatalf("nil audio should be valid: %v", err)
	}
	if err := ValidateAudioMetadata(&model.AudioMetadata{HasAudio: true, Format: "wav", SizeBytes: 1024}); err != nil {
		t.Fatalf("wav should be valid: %v", err)
	}
	if err := ValidateAudioMetadata(&model.AudioMetadata{HasAudio: true, Format: "flac"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if err := ValidateAudioMetadata(&model.AudioMetadata{HasAudio: true, SizeBytes: -1}); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestValidateConversationID(t *testing.T) {
	if err := ValidateConversationID("0190a6a7-73ab-7cde-8000-000000000000"); err != nil {
		t.Fatalf("uuid should be valid: %v", err)
	}
	for _, id := range []string{"", "not-a-uuid", "123"} {
		if err := ValidateConversationID(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle(""); err != nil {
		t.Fatalf("empty title is allowed: %v", err)
	}
	if err := ValidateTitle(strings.Repeat("t", 257)); err == nil {
		t.Fatal("expected error for overlong title")
	}
}
