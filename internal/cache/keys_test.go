package cache

import "testing"

func TestConversationKeyRoundTrip(t *testing.T) {
	key := conversationKey("abc-123")
	if key != "conversation:abc-123:messages" {
		t.Fatalf("unexpected key %q", key)
	}
	if got := conversationIDFromKey(key); got != "abc-123" {
		t.Fatalf("expected abc-123, got %q", got)
	}
}

func TestConversationIDFromKeyRejectsForeignKeys(t *testing.T) {
	for _, k := range []string{"pending_messages", "conversation:abc-123", "session:abc:messages", ""} {
		if got := conversationIDFromKey(k); got != "" {
			t.Fatalf("expected empty id for %q, got %q", k, got)
		}
	}
}
