package session

import (
	autherrors "github.com/droniapp/go-auth-client/internal/errors"
	"github.com/droniapp/go-auth-client/token/jwt"
	"golang.org/x/oauth2"
)

type storeTokenSource struct {
	store *Store
}

// TokenSource exposes the current bearer token to golang.org/x/oauth2
// clients. It reads the store on every call, so reissued tokens are picked up
// without rebuilding the client.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	accessToken := ts.store.Token()
	if accessToken == "" {
		return nil, autherrors.ErrNotAuthenticated
	}
	return BearerToken(accessToken), nil
}

// BearerToken wraps a raw access token, taking its expiry from the exp claim
// when one can be read.
func BearerToken(accessToken string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}
	if exp, ok := jwt.ExpirationTime(accessToken); ok {
		token.Expiry = exp
	}
	return token
}
