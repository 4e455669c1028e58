package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is one of the accepted roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// AudioMetadata describes an optional audio attachment recorded with a message.
type AudioMetadata struct {
	HasAudio  bool   `json:"has_audio"`
	Format    string `json:"format,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// CachedMessage is the ephemeral message record held in the cache until it is
// flushed to durable storage. The JSON encoding is the wire format stored in
// the per-conversation lists and the pending queue; existing cached data uses
// exactly these keys, so they must not change.
type CachedMessage struct {
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Timestamp      float64        `json:"timestamp"`
	ID             string         `json:"id"`
	Audio          *AudioMetadata `json:"audio_metadata,omitempty"`
}

// Time returns the message timestamp as a time.Time, preserving sub-second
// precision.
func (m *CachedMessage) Time() time.Time {
	return TimeFromEpoch(m.Timestamp)
}

// EpochSeconds converts t to floating-point epoch seconds.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimeFromEpoch converts floating-point epoch seconds back to a time.Time.
func TimeFromEpoch(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}

// MessageRow is the durable representation of a message. Rows are created only
// by the flush coordinator via bulk insert; request handlers never write them
// directly.
type MessageRow struct {
	ID             int64
	ConversationID string
	Role           Role
	Content        string
	HasUserAudio   bool
	AudioFormat    *string
	AudioDuration  *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Row maps a cached message into its durable shape. Absent audio metadata
// defaults to false/null columns; duration is never carried over from the
// cache, it is extracted from the audio file out of band.
func (m *CachedMessage) Row() MessageRow {
	row := MessageRow{
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.Time(),
		UpdatedAt:      m.Time(),
	}
	if m.Audio != nil {
		row.HasUserAudio = m.Audio.HasAudio
		if m.Audio.Format != "" {
			f := m.Audio.Format
			row.AudioFormat = &f
		}
	}
	return row
}

// SendMessageRequest is the request to send a new chat message.
type SendMessageRequest struct {
	Content string         `json:"content"`
	Model   string         `json:"model,omitempty"`
	Stream  bool           `json:"stream"`
	Audio   *AudioMetadata `json:"audio_metadata,omitempty"`
}

// SendMessageResponse is the response after a completed chat turn.
type SendMessageResponse struct {
	UserMessage      *CachedMessage `json:"user_message"`
	AssistantMessage *CachedMessage `json:"assistant_message,omitempty"`
}

// ListMessagesResponse is the response for listing conversation history.
type ListMessagesResponse struct {
	Messages []CachedMessage `json:"messages"`
}
