package session_test

import (
	"errors"
	"testing"
	"time"

	autherrors "github.com/droniapp/go-auth-client/internal/errors"
	"github.com/droniapp/go-auth-client/session"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testToken = "header.payload.signature"

var errStorageDown = errors.New("storage down")

// brokenStorage fails every call, like local storage in a locked-down webview.
type brokenStorage struct{}

func (brokenStorage) Get(string) (string, error) { return "", errStorageDown }
func (brokenStorage) Set(string, string) error   { return errStorageDown }
func (brokenStorage) Remove(string) error        { return errStorageDown }

func newStore(t *testing.T, storage session.Storage) *session.Store {
	t.Helper()
	return session.NewStore(storage, session.WithLogger(zerolog.Nop()))
}

func TestNewStoreRestoresStoredToken(t *testing.T) {
	storage := session.NewInMemoryStorage()
	require.NoError(t, storage.Set(session.StorageKey, testToken))

	state := newStore(t, storage).State()
	require.Equal(t, session.State{AccessToken: testToken, IsAuthenticated: true}, state)
}

func TestNewStoreWithoutToken(t *testing.T) {
	store := newStore(t, session.NewInMemoryStorage())
	require.False(t, store.IsAuthenticated())
	require.Empty(t, store.Token())
	require.Equal(t, session.State{}, store.State())
}

func TestNewStoreSurvivesBrokenStorage(t *testing.T) {
	store := newStore(t, brokenStorage{})
	require.Equal(t, session.State{}, store.State())
}

func TestLoginLogout(t *testing.T) {
	storage := session.NewInMemoryStorage()
	store := newStore(t, storage)
	store.SetLoading(true)

	require.NoError(t, store.Login(testToken))
	require.Equal(t, session.State{AccessToken: testToken, IsAuthenticated: true}, store.State())
	stored, err := storage.Get(session.StorageKey)
	require.NoError(t, err)
	require.Equal(t, testToken, stored)

	store.Logout()
	require.Equal(t, session.State{}, store.State())
	_, err = storage.Get(session.StorageKey)
	require.ErrorIs(t, err, session.ErrNotFound)

	// Idempotent
	store.Logout()
	require.Equal(t, session.State{}, store.State())
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	store := newStore(t, session.NewInMemoryStorage())
	err := store.Login("")
	require.ErrorIs(t, err, autherrors.ErrEmptyToken)
	require.False(t, store.IsAuthenticated())
}

func TestLoginProceedsWhenStorageFails(t *testing.T) {
	store := newStore(t, brokenStorage{})

	require.NoError(t, store.Login(testToken))
	require.True(t, store.IsAuthenticated())
	require.Equal(t, testToken, store.Token())

	store.Logout()
	require.False(t, store.IsAuthenticated())
}

func TestSetTokensKeepsLoading(t *testing.T) {
	storage := session.NewInMemoryStorage()
	store := newStore(t, storage)
	require.NoError(t, store.Login(testToken))
	store.SetLoading(true)

	require.NoError(t, store.SetTokens("new.token.value"))
	require.Equal(t, session.State{AccessToken: "new.token.value", IsAuthenticated: true, IsLoading: true}, store.State())
	stored, err := storage.Get(session.StorageKey)
	require.NoError(t, err)
	require.Equal(t, "new.token.value", stored)

	require.ErrorIs(t, store.SetTokens(""), autherrors.ErrEmptyToken)
	require.Equal(t, "new.token.value", store.Token())
}

func TestLoadInitialState(t *testing.T) {
	storage := session.NewInMemoryStorage()
	store := newStore(t, storage)
	require.False(t, store.IsAuthenticated())

	require.NoError(t, storage.Set(session.StorageKey, testToken))
	store.LoadInitialState()
	require.True(t, store.IsAuthenticated())
	require.Equal(t, testToken, store.Token())
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	store := newStore(t, session.NewInMemoryStorage())

	var calls []string
	var seen []session.State
	unsubscribeFirst := store.Subscribe(func(state session.State) {
		calls = append(calls, "first")
		seen = append(seen, state)
	})
	store.Subscribe(func(session.State) {
		calls = append(calls, "second")
	})

	require.NoError(t, store.Login(testToken))
	require.Equal(t, []string{"first", "second"}, calls)
	require.Equal(t, session.State{AccessToken: testToken, IsAuthenticated: true}, seen[0])

	unsubscribeFirst()
	unsubscribeFirst()
	store.Logout()
	require.Equal(t, []string{"first", "second", "second"}, calls)
}

func TestListenerMayReadAndMutateStore(t *testing.T) {
	store := newStore(t, session.NewInMemoryStorage())

	store.Subscribe(func(state session.State) {
		require.Equal(t, state, store.State())
		if state.IsAuthenticated && !state.IsLoading && state.AccessToken == testToken {
			store.SetLoading(true)
		}
	})

	require.NoError(t, store.Login(testToken))
	require.True(t, store.State().IsLoading)
}

func TestTokenSource(t *testing.T) {
	store := newStore(t, session.NewInMemoryStorage())

	_, err := store.TokenSource().Token()
	require.ErrorIs(t, err, autherrors.ErrNotAuthenticated)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, store.Login(raw))

	token, err := store.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, raw, token.AccessToken)
	require.Equal(t, "Bearer", token.Type())
	require.True(t, token.Expiry.Equal(exp))
	require.True(t, token.Valid())
}
