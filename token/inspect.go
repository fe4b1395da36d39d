package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ExpiresAt reads the exp claim of a JWT access token without verifying it.
// Opaque tokens, or JWTs without exp, report ok == false.
func ExpiresAt(rawToken string) (time.Time, bool) {
	if strings.Count(rawToken, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// NewOAuth2Token builds the bearer credential pair held by a session.
// Expiry is taken from the access token when it is a JWT, otherwise left zero (never expires locally).
func NewOAuth2Token(accessToken, refreshToken string) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}
	if exp, ok := ExpiresAt(accessToken); ok {
		t.Expiry = exp
	}
	return t
}
