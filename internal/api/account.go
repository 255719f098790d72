package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tOgg1/bazaar/internal/market"
)

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges a phone number and password for a session.
func (c *Client) Login(ctx context.Context, phone, password string) (market.Session, error) {
	payload := loginRequest{Phone: strings.TrimSpace(phone), Password: password}
	if err := c.check("login", payload); err != nil {
		return market.Session{}, err
	}
	var out market.Session
	err := c.do(ctx, request{
		op:       "login",
		endpoint: "login",
		method:   http.MethodPost,
		path:     "/auth/login",
		body:     payload,
	}, &out)
	if err != nil {
		return market.Session{}, err
	}
	if !out.Active() {
		return market.Session{}, market.AuthError("login", "server returned no token", 0)
	}
	return out, nil
}

// Product fetches the public listing for id.
func (c *Client) Product(ctx context.Context, id string) (market.ProductRef, error) {
	if strings.TrimSpace(id) == "" {
		return market.ProductRef{}, market.ValidationError("product", "product id is required", nil)
	}
	var out market.ProductRef
	err := c.do(ctx, request{
		op:       "product",
		endpoint: "product",
		method:   http.MethodGet,
		path:     "/products/" + pathID(id),
	}, &out)
	if err != nil {
		return market.ProductRef{}, err
	}
	if out.IsZero() {
		return market.ProductRef{}, market.NotFoundError("product", "product "+id)
	}
	return out, nil
}

// CreateReview submits a rating for another user.
func (c *Client) CreateReview(ctx context.Context, review market.Review, token string) error {
	review.Reviewee = strings.TrimSpace(review.Reviewee)
	review.Comment = strings.TrimSpace(review.Comment)
	if err := c.check("review", review); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:       "review",
		endpoint: "review",
		method:   http.MethodPost,
		path:     "/reviews",
		token:    token,
		authed:   true,
		body:     review,
	}, nil)
}
