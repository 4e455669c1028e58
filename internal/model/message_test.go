package model

import (
	"testing"
	"time"
)

func TestEpochRoundTripPreservesSubSecondPrecision(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	got := TimeFromEpoch(EpochSeconds(ts))
	if d := got.Sub(ts); d > time.Millisecond || d < -time.Millisecond {
		t.Fatalf("round trip drifted by %v", d)
	}
}

func TestCachedMessageRow(t *testing.T) {
	ts := time.Now()
	msg := CachedMessage{
		ConversationID: "conv-1",
		Role:           RoleUser,
		Content:        "hello",
		Timestamp:      EpochSeconds(ts),
		ID:             "some-uuid",
	}

	row := msg.Row()
	if row.ConversationID != "conv-1" || row.Role != RoleUser || row.Content != "hello" {
		t.Fatalf("fields not mapped: %+v", row)
	}
	if row.HasUserAudio || row.AudioFormat != nil {
		t.Fatalf("absent audio must map to false/null: %+v", row)
	}
	if !row.CreatedAt.Equal(row.UpdatedAt) {
		t.Fatal("created_at and updated_at must match on insert")
	}

	msg.Audio = &AudioMetadata{HasAudio: true, Format: "mp3"}
	row = msg.Row()
	if !row.HasUserAudio || row.AudioFormat == nil || *row.AudioFormat != "mp3" {
		t.Fatalf("audio metadata not mapped: %+v", row)
	}
}
