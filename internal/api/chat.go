package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
)

type sendRequest struct {
	Receiver string `json:"receiver" validate:"required"`
	Product  string `json:"product" validate:"required"`
	Content  string `json:"content" validate:"required,max=2000"`
}

// Conversations returns every message involving the signed-in user.
func (c *Client) Conversations(ctx context.Context, token string) ([]market.Message, error) {
	var out []market.Message
	err := c.do(ctx, request{
		op:       "conversations",
		endpoint: "conversations",
		method:   http.MethodGet,
		path:     "/chat/conversations",
		token:    token,
		authed:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchConversations is Conversations with failures logged and an empty
// result returned in their place.
func (c *Client) FetchConversations(ctx context.Context, token string) []market.Message {
	msgs, err := c.Conversations(ctx, token)
	if err != nil {
		logging.Err(c.logger.Warn(), err).Msg("failed to fetch conversations")
		return []market.Message{}
	}
	return msgs
}

// History returns the messages exchanged with otherUserID about productID.
func (c *Client) History(ctx context.Context, otherUserID, productID, token string) ([]market.Message, error) {
	if strings.TrimSpace(otherUserID) == "" || strings.TrimSpace(productID) == "" {
		return nil, market.ValidationError("history", "user and product are required", nil)
	}
	var out []market.Message
	err := c.do(ctx, request{
		op:       "history",
		endpoint: "history",
		method:   http.MethodGet,
		path:     "/chat/history/" + pathID(otherUserID) + "/" + pathID(productID),
		token:    token,
		authed:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchHistory is History with failures logged and an empty result
// returned in their place.
func (c *Client) FetchHistory(ctx context.Context, otherUserID, productID, token string) []market.Message {
	msgs, err := c.History(ctx, otherUserID, productID, token)
	if err != nil {
		log := logging.WithConversation(c.logger, otherUserID, productID)
		logging.Err(log.Warn(), err).Msg("failed to fetch history")
		return []market.Message{}
	}
	return msgs
}

// SendMessage posts content to receiverID in the productID thread and
// returns the stored message.
func (c *Client) SendMessage(ctx context.Context, receiverID, productID, content, token string) (market.Message, error) {
	payload := sendRequest{
		Receiver: strings.TrimSpace(receiverID),
		Product:  strings.TrimSpace(productID),
		Content:  strings.TrimSpace(content),
	}
	if err := c.check("send", payload); err != nil {
		return market.Message{}, err
	}
	var out market.Message
	err := c.do(ctx, request{
		op:       "send",
		endpoint: "send",
		method:   http.MethodPost,
		path:     "/chat/send",
		token:    token,
		authed:   true,
		body:     payload,
	}, &out)
	if err != nil {
		return market.Message{}, err
	}
	return out, nil
}

// MarkRead marks the thread with otherUserID about productID as read.
// Failures are logged and otherwise ignored.
func (c *Client) MarkRead(ctx context.Context, otherUserID, productID, token string) {
	if strings.TrimSpace(otherUserID) == "" || strings.TrimSpace(productID) == "" {
		return
	}
	err := c.do(ctx, request{
		op:       "mark read",
		endpoint: "read",
		method:   http.MethodPut,
		path:     "/chat/read/" + pathID(otherUserID) + "/" + pathID(productID),
		token:    token,
		authed:   true,
		body:     struct{}{},
	}, nil)
	if err != nil {
		log := logging.WithConversation(c.logger, otherUserID, productID)
		logging.Err(log.Warn(), err).Msg("failed to mark messages read")
	}
}
