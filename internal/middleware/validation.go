package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fingle-ai/chat-platform/internal/model"
)

// audioFormats is the accepted set of audio attachment formats.
var audioFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"m4a":  true,
	"webm": true,
	"ogg":  true,
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateRole validates a message role.
func ValidateRole(role model.Role) error {
	if !model.ValidRole(role) {
		return errors.New("role must be one of user, assistant, system")
	}
	return nil
}

// ValidateAudioMetadata validates an optional audio attachment descriptor.
func ValidateAudioMetadata(audio *model.AudioMetadata) error {
	if audio == nil {
		return nil
	}
	if audio.Format != "" && !audioFormats[audio.Format] {
		return errors.New("unsupported audio format")
	}
	if audio.SizeBytes < 0 {
		return errors.New("audio size cannot be negative")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
