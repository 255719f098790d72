package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/testutil"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", WithTimeout(5*time.Second)), &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestConversations_SendsBearerAndRequestID(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chat/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, `[
			{"_id":"m1","sender":{"_id":"u2","name":"Sam"},"receiver":"me","product":{"_id":"p1","name":"Bike"},"content":"hi","createdAt":"2024-01-01T10:00:00Z","read":false},
			{"id":"m2","sender":"me","receiver":{"id":"u2"},"product":null,"content":"yo","createdAt":"2024-01-01T11:00:00Z","read":true}
		]`)
	})

	msgs, err := c.Conversations(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "u2", msgs[0].Sender.ID)
	assert.Equal(t, "Sam", msgs[0].Sender.Name)
	assert.Equal(t, "Bike", msgs[0].Product.Name)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "u2", msgs[1].Receiver.ID)
	assert.True(t, msgs[1].Product.IsZero())
}

func TestDo_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		target error
		msg    string
	}{
		{http.StatusUnauthorized, `{"message":"Token invalid"}`, market.ErrAuth, "Token invalid"},
		{http.StatusForbidden, `{}`, market.ErrAuth, "Forbidden"},
		{http.StatusNotFound, `{"error":"no such thread"}`, market.ErrNotFound, "no such thread"},
		{http.StatusBadRequest, `{"message":"content required"}`, market.ErrValidation, "content required"},
		{http.StatusUnprocessableEntity, `oops`, market.ErrValidation, "Unprocessable Entity"},
		{http.StatusInternalServerError, `{"message":"boom"}`, market.ErrNetwork, "boom"},
		{http.StatusBadGateway, ``, market.ErrNetwork, "Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := c.Conversations(context.Background(), "tok")
			require.ErrorIs(t, err, tc.target)

			var e *market.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.status, e.Status)
			assert.Equal(t, tc.msg, e.Message)
		})
	}
}

func TestDo_UndecodableBodyIsNetworkError(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `<html>`)
	})
	_, err := c.Conversations(context.Background(), "tok")
	require.ErrorIs(t, err, market.ErrNetwork)
}

func TestDo_TransportFailureIsNetworkError(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).Conversations(context.Background(), "tok")
	require.ErrorIs(t, err, market.ErrNetwork)
}

func TestDo_CancelledContext(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Conversations(ctx, "tok")
	require.ErrorIs(t, err, market.ErrNetwork)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_MissingOrExpiredTokenSkipsIO(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expired := testutil.TokenExpiringAt(t, "me", now.Add(-time.Hour))

	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})
	WithClock(func() time.Time { return now })(c)

	_, err := c.Conversations(context.Background(), "")
	require.ErrorIs(t, err, market.ErrAuth)
	_, err = c.Conversations(context.Background(), expired)
	require.ErrorIs(t, err, market.ErrAuth)
	_, err = c.SendMessage(context.Background(), "u2", "p1", "hello", expired)
	require.ErrorIs(t, err, market.ErrAuth)

	assert.Zero(t, hits.Load())
}

func TestFetchConversations_DegradesToEmpty(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})
	msgs := c.FetchConversations(context.Background(), "tok")
	require.NotNil(t, msgs)
	assert.Empty(t, msgs)

	assert.Empty(t, c.FetchHistory(context.Background(), "u2", "p1", "tok"))
}

func TestHistory_EscapesPath(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/history/u%202/p1", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, `[{"_id":"m1","sender":"u 2","receiver":"me","product":"p1","content":"x","createdAt":"2024-01-01T10:00:00Z"}]`)
	})
	msgs, err := c.History(context.Background(), "u 2", "p1", "tok")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "p1", msgs[0].Product.ID)

	_, err = c.History(context.Background(), "", "p1", "tok")
	require.ErrorIs(t, err, market.ErrValidation)
}

func TestSendMessage(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/send", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"receiver": "u2", "product": "p1", "content": "hello"}, body)
		writeJSON(w, http.StatusCreated, `{"_id":"m9","sender":"me","receiver":"u2","product":"p1","content":"hello","createdAt":"2024-01-01T10:00:00Z","read":false}`)
	})

	msg, err := c.SendMessage(context.Background(), "u2", "p1", "  hello \n", "tok")
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.Equal(t, "hello", msg.Content)
}

func TestSendMessage_BlankContentSkipsIO(t *testing.T) {
	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	_, err := c.SendMessage(context.Background(), "u2", "p1", " \t\n", "tok")
	require.ErrorIs(t, err, market.ErrValidation)
	assert.Contains(t, err.Error(), "content is required")

	_, err = c.SendMessage(context.Background(), "", "p1", "hi", "tok")
	require.ErrorIs(t, err, market.ErrValidation)
	assert.Zero(t, hits.Load())
}

func TestMarkRead_SwallowsErrors(t *testing.T) {
	var gotPath string
	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})
	c.MarkRead(context.Background(), "u2", "p1", "tok")
	assert.Equal(t, "/api/chat/read/u2/p1", gotPath)
	assert.EqualValues(t, 1, hits.Load())
}

func TestLogin(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"token":"tok","user":{"_id":"me","name":"Me"}}`)
	})

	s, err := c.Login(context.Background(), "0912", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, "me", s.User.ID)

	_, err = c.Login(context.Background(), "0912", "wrong")
	require.ErrorIs(t, err, market.ErrAuth)

	_, err = c.Login(context.Background(), "", "secret")
	require.ErrorIs(t, err, market.ErrValidation)
}

func TestProduct(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/p1":
			writeJSON(w, http.StatusOK, `{"_id":"p1","name":"Bike","image":"b.png","price":120}`)
		case "/api/products/null":
			writeJSON(w, http.StatusOK, `null`)
		default:
			writeJSON(w, http.StatusNotFound, `{"message":"Product not found"}`)
		}
	})

	p, err := c.Product(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, market.ProductRef{ID: "p1", Name: "Bike", Image: "b.png", Price: 120}, p)

	_, err = c.Product(context.Background(), "gone")
	require.ErrorIs(t, err, market.ErrNotFound)

	_, err = c.Product(context.Background(), "null")
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestCreateReview(t *testing.T) {
	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reviews", r.URL.Path)
		var body market.Review
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, market.Review{Reviewee: "u2", Rating: 4, Comment: "smooth"}, body)
		writeJSON(w, http.StatusCreated, `{"_id":"r1"}`)
	})

	require.NoError(t, c.CreateReview(context.Background(), market.Review{Reviewee: "u2", Rating: 4, Comment: " smooth "}, "tok"))

	err := c.CreateReview(context.Background(), market.Review{Reviewee: "u2", Rating: 6}, "tok")
	require.ErrorIs(t, err, market.ErrValidation)
	assert.Contains(t, err.Error(), "rating must be at most 5")

	err = c.CreateReview(context.Background(), market.Review{Reviewee: "u2"}, "tok")
	require.ErrorIs(t, err, market.ErrValidation)
	assert.Contains(t, err.Error(), "rating must be at least 1")

	assert.EqualValues(t, 1, hits.Load())
}
