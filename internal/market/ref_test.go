package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare string", raw: `"u1"`, want: "u1"},
		{name: "mongo id wins", raw: `{"_id":"a","id":"b"}`, want: "a"},
		{name: "id fallback", raw: `{"id":"b","name":"x"}`, want: "b"},
		{name: "numeric id", raw: `{"id":42}`, want: "42"},
		{name: "bare number", raw: `7`, want: "7"},
		{name: "null", raw: `null`, want: ""},
		{name: "empty object", raw: `{}`, want: ""},
		{name: "null _id falls back", raw: `{"_id":null,"id":"c"}`, want: "c"},
		{name: "whitespace", raw: ` " u5 " `, want: "u5"},
		{name: "array", raw: `["u1"]`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RefID(json.RawMessage(tt.raw)))
		})
	}
}

func TestMessageUnmarshal_NormalizesReferences(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{
		"id":"m7",
		"sender":"u1",
		"receiver":{"_id":"u2","name":"Bea","avatar":"a.png"},
		"product":{"id":"p3","name":"Lamp","price":"not-a-number"},
		"content":"still there?",
		"createdAt":"2026-03-01T10:00:00Z",
		"read":false
	}`), &m)
	require.NoError(t, err)
	require.Equal(t, "m7", m.ID)
	require.Equal(t, "u1", m.Sender.ID)
	require.Equal(t, UserRef{ID: "u2", Name: "Bea", Avatar: "a.png"}, m.Receiver)
	require.Equal(t, "p3", m.Product.ID)
	require.Equal(t, "Lamp", m.Product.Name)
	require.Equal(t, "u2", m.OtherParty("u1").ID)
	require.Equal(t, "u1", m.OtherParty("u2").ID)
}

func TestMessageUnmarshal_CreatedAtFormats(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "rfc3339", raw: `"2024-01-01T10:00:00Z"`, want: want},
		{name: "fractional", raw: `"2024-01-01T10:00:00.000Z"`, want: want},
		{name: "epoch millis", raw: fmt.Sprint(want.UnixMilli()), want: want},
		{name: "epoch seconds", raw: fmt.Sprint(want.Unix()), want: want},
		{name: "epoch string", raw: fmt.Sprintf("%q", fmt.Sprint(want.UnixMilli())), want: want},
		{name: "garbage", raw: `"yesterday"`},
		{name: "object", raw: `{"$date":1}`},
		{name: "null", raw: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			require.NoError(t, json.Unmarshal([]byte(`{"_id":"m1","createdAt":`+tt.raw+`}`), &m))
			require.True(t, tt.want.Equal(m.CreatedAt), "got %s", m.CreatedAt)
		})
	}
}

func TestMessageUnmarshal_BadTimestampKeepsList(t *testing.T) {
	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(`[
		{"_id":"m1","sender":"u2","receiver":"me","product":"p1","createdAt":"not a time"},
		{"_id":"m2","sender":"u3","receiver":"me","product":"p2","createdAt":"2024-01-01T10:00:00Z"}
	]`), &msgs))
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].CreatedAt.IsZero())
	require.Len(t, Reconcile(msgs, "me"), 2)
}

func TestProductRef_RoundTrip(t *testing.T) {
	in := ProductRef{ID: "p1", Name: "Chair", Image: "c.jpg", Price: 12.5}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out ProductRef
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("load inbox: %w", AuthError("conversations", "token expired", 401))
	require.ErrorIs(t, err, ErrAuth)
	require.False(t, errors.Is(err, ErrNetwork))
	require.Equal(t, KindAuth, KindOf(err))

	nf := NotFoundError("product", "product p1")
	require.ErrorIs(t, nf, ErrNotFound)
	require.Contains(t, nf.Error(), "status 404")

	cause := errors.New("dial tcp: refused")
	ne := NetworkError("send", cause)
	require.ErrorIs(t, ne, ErrNetwork)
	require.ErrorIs(t, ne, cause)
	require.Equal(t, Kind(""), KindOf(cause))
}
