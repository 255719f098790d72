package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/bazaar/internal/kv"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/testutil"
)

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	live := testutil.SignedToken(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()})
	stale := testutil.SignedToken(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-time.Minute).Unix()})
	noExp := testutil.SignedToken(t, jwt.MapClaims{"sub": "u1"})

	assert.False(t, TokenExpired(live, now))
	assert.True(t, TokenExpired(stale, now))
	assert.False(t, TokenExpired(noExp, now))
	assert.False(t, TokenExpired("opaque-token", now))
	assert.False(t, TokenExpired("", now))

	exp, ok := TokenExpiry(live)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp.Unix())
}

func TestTokenSubject(t *testing.T) {
	assert.Equal(t, "u1", TokenSubject(testutil.SignedToken(t, jwt.MapClaims{"sub": "u1"})))
	assert.Equal(t, "u2", TokenSubject(testutil.SignedToken(t, jwt.MapClaims{"id": "u2"})))
	assert.Equal(t, "", TokenSubject("opaque"))
}

type fakeAuth struct {
	session market.Session
	err     error
	calls   int
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (market.Session, error) {
	f.calls++
	return f.session, f.err
}

func TestManager_LoginPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	a := &fakeAuth{session: market.Session{Token: "tok", User: market.UserRef{ID: "me", Name: "Me"}}}

	m := NewManager(store)
	s, err := m.Login(ctx, a, " 0912 ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "me", s.User.ID)
	assert.Equal(t, s, m.Current(ctx))

	reloaded := NewManager(store)
	got := reloaded.Current(ctx)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "me", got.User.ID)

	require.NoError(t, reloaded.Logout(ctx))
	assert.False(t, reloaded.Current(ctx).Active())
	assert.False(t, NewManager(store).Current(ctx).Active())
}

func TestManager_LoginFallsBackToTokenSubject(t *testing.T) {
	ctx := context.Background()
	token := testutil.SignedToken(t, jwt.MapClaims{"sub": "u9"})
	m := NewManager(kv.NewMemoryStore())

	s, err := m.Login(ctx, &fakeAuth{session: market.Session{Token: token}}, "1", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u9", s.User.ID)

	_, err = m.Login(ctx, &fakeAuth{session: market.Session{Token: "opaque"}}, "1", "pw")
	require.ErrorIs(t, err, market.ErrAuth)
}

func TestManager_LoginValidatesBeforeCalling(t *testing.T) {
	a := &fakeAuth{}
	_, err := NewManager(kv.NewMemoryStore()).Login(context.Background(), a, "  ", "pw")
	require.ErrorIs(t, err, market.ErrValidation)
	assert.Zero(t, a.calls)
}

func TestManager_LoginError(t *testing.T) {
	a := &fakeAuth{err: market.AuthError("login", "invalid credentials", 401)}
	m := NewManager(kv.NewMemoryStore())
	_, err := m.Login(context.Background(), a, "1", "bad")
	require.ErrorIs(t, err, market.ErrAuth)
	assert.False(t, m.Current(context.Background()).Active())
}

func TestManager_ExpiredSessionIsSignedOut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	token := testutil.SignedToken(t, jwt.MapClaims{"sub": "me", "exp": now.Add(time.Minute).Unix()})

	m := NewManager(kv.NewMemoryStore())
	m.SetClock(func() time.Time { return now })
	_, err := m.Login(ctx, &fakeAuth{session: market.Session{Token: token, User: market.UserRef{ID: "me"}}}, "1", "pw")
	require.NoError(t, err)
	assert.True(t, m.Current(ctx).Active())

	m.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	assert.False(t, m.Current(ctx).Active())
}

func TestManager_CorruptStoredSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Put(ctx, SessionKey, []byte("{nope")))
	assert.False(t, NewManager(store).Current(ctx).Active())
}

type failingStore struct{ kv.Store }

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestManager_PersistFailureKeepsSessionInMemory(t *testing.T) {
	ctx := context.Background()
	m := NewManager(failingStore{kv.NewMemoryStore()})
	s, err := m.Login(ctx, &fakeAuth{session: market.Session{Token: "t", User: market.UserRef{ID: "me"}}}, "1", "pw")
	require.Error(t, err)
	assert.Equal(t, "me", s.User.ID)
	assert.True(t, m.Current(ctx).Active())
}

func TestManager_OnChange(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore())

	var seen []market.Session
	unwatch := m.OnChange(func(s market.Session) { seen = append(seen, s) })

	_, err := m.Login(ctx, &fakeAuth{session: market.Session{Token: "t", User: market.UserRef{ID: "me"}}}, "1", "pw")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))
	require.Len(t, seen, 2)
	assert.Equal(t, "me", seen[0].User.ID)
	assert.False(t, seen[1].Active())

	unwatch()
	require.NoError(t, m.Logout(ctx))
	assert.Len(t, seen, 2)
}
