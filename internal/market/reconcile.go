package market

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the latest message of one thread between the current user
// and another party about one product. It is derived and never persisted.
type Conversation struct {
	Key         string     `json:"id"`
	Product     ProductRef `json:"product"`
	OtherUser   UserRef    `json:"otherUser"`
	LastMessage string     `json:"lastMessage"`
	Timestamp   time.Time  `json:"timestamp"`
	Read        bool       `json:"read"`
}

// ConversationKey identifies a thread: productID + "_" + otherPartyID.
// It returns "" when either part is missing.
func ConversationKey(productID, otherPartyID string) string {
	productID = strings.TrimSpace(productID)
	otherPartyID = strings.TrimSpace(otherPartyID)
	if productID == "" || otherPartyID == "" {
		return ""
	}
	return productID + "_" + otherPartyID
}

// Reconcile groups a flat message list into one Conversation per
// (product, other party), keeping the chronologically latest message.
//
// A later message replaces the current winner only if its CreatedAt is
// strictly after; on equal timestamps the first one seen stays. Messages
// without a product or other party are skipped. The result is ordered
// newest first, then by key.
func Reconcile(messages []Message, currentUserID string) []Conversation {
	currentUserID = strings.TrimSpace(currentUserID)
	winners := make(map[string]Message, len(messages))
	for _, msg := range messages {
		other := msg.OtherParty(currentUserID)
		key := ConversationKey(msg.Product.ID, other.ID)
		if key == "" {
			continue
		}
		current, ok := winners[key]
		if ok && !msg.CreatedAt.After(current.CreatedAt) {
			continue
		}
		winners[key] = msg
	}

	out := make([]Conversation, 0, len(winners))
	for key, msg := range winners {
		out = append(out, Conversation{
			Key:         key,
			Product:     msg.Product,
			OtherUser:   msg.OtherParty(currentUserID),
			LastMessage: msg.Content,
			Timestamp:   msg.CreatedAt,
			Read:        msg.Read,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
