package market

import "strings"

// ComputeUnread reports whether any message addressed to currentUserID is
// still unread.
func ComputeUnread(messages []Message, currentUserID string) bool {
	currentUserID = strings.TrimSpace(currentUserID)
	if currentUserID == "" {
		return false
	}
	for _, msg := range messages {
		if !msg.Read && msg.Receiver.ID == currentUserID {
			return true
		}
	}
	return false
}

// UnreadCount counts unread messages per conversation key for currentUserID.
func UnreadCount(messages []Message, currentUserID string) map[string]int {
	currentUserID = strings.TrimSpace(currentUserID)
	counts := make(map[string]int)
	if currentUserID == "" {
		return counts
	}
	for _, msg := range messages {
		if msg.Read || msg.Receiver.ID != currentUserID {
			continue
		}
		key := ConversationKey(msg.Product.ID, msg.Sender.ID)
		if key == "" {
			continue
		}
		counts[key]++
	}
	return counts
}
