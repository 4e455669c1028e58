package cache

import (
	"strings"
)

// pendingQueueKey is the single global queue every cached message is also
// pushed onto. It exists only to drive batch-size-triggered flushing; history
// reads never touch it.
const pendingQueueKey = "pending_messages"

// conversationKeyPattern matches every per-conversation message list.
const conversationKeyPattern = "conversation:*:messages"

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID + ":messages"
}

// conversationIDFromKey extracts the conversation id from a per-conversation
// list key. Returns "" if the key does not match the expected shape.
func conversationIDFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, "conversation:")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, ":messages")
	if !ok {
		return ""
	}
	return id
}
