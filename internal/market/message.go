package market

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message is a chat message between two users about one product.
// Only Read changes after creation, and only from false to true.
type Message struct {
	ID        string     `json:"_id"`
	Sender    UserRef    `json:"sender"`
	Receiver  UserRef    `json:"receiver"`
	Product   ProductRef `json:"product"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Read      bool       `json:"read"`
}

// UnmarshalJSON accepts both "_id" and "id" for the message identifier.
func (m *Message) UnmarshalJSON(data []byte) error {
	type wire struct {
		MongoID   json.RawMessage `json:"_id"`
		ID        json.RawMessage `json:"id"`
		Sender    UserRef         `json:"sender"`
		Receiver  UserRef         `json:"receiver"`
		Product   ProductRef      `json:"product"`
		Content   string          `json:"content"`
		CreatedAt json.RawMessage `json:"createdAt"`
		Read      bool            `json:"read"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := scalarID(w.MongoID)
	if id == "" {
		id = scalarID(w.ID)
	}
	*m = Message{
		ID:        id,
		Sender:    w.Sender,
		Receiver:  w.Receiver,
		Product:   w.Product,
		Content:   w.Content,
		CreatedAt: parseTimestamp(w.CreatedAt),
		Read:      w.Read,
	}
	return nil
}

// parseTimestamp accepts RFC 3339 strings and Unix epochs in seconds or
// milliseconds, as numbers or numeric strings. Anything else is the zero
// time, which sorts oldest.
func parseTimestamp(raw json.RawMessage) time.Time {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return time.Time{}
		}
		text = n.String()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t
	}
	epoch, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return time.Time{}
	}
	if epoch > 1e12 {
		return time.UnixMilli(int64(epoch)).UTC()
	}
	return time.Unix(int64(epoch), 0).UTC()
}

// SentBy reports whether userID authored the message.
func (m Message) SentBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && m.Sender.ID == userID
}

// OtherParty returns the endpoint that is not userID.
func (m Message) OtherParty(userID string) UserRef {
	if m.SentBy(userID) {
		return m.Receiver
	}
	return m.Sender
}

// Session is an authenticated user and the bearer token issued for them.
type Session struct {
	Token string  `json:"token"`
	User  UserRef `json:"user"`
}

// Active reports whether the session carries a token.
func (s Session) Active() bool {
	return strings.TrimSpace(s.Token) != ""
}

// Review is a rating left for another user after a conversation.
type Review struct {
	Reviewee string `json:"reviewee" validate:"required"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Comment  string `json:"comment,omitempty" validate:"max=1000"`
}
