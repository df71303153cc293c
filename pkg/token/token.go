// Package token mints relay access tokens for clients
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Goal651/discord-bot-server/internal/permission"
)

// New returns a signed JWT token granting the identified user access
// to the relay at audience
func New(iat, nbf, exp time.Time, audience, userID, username, displayName, secret string) (string, error) {

	var claims permission.Token

	claims.IssuedAt = jwt.NewNumericDate(iat)
	claims.NotBefore = jwt.NewNumericDate(nbf)
	claims.ExpiresAt = jwt.NewNumericDate(exp)

	claims.Audience = jwt.ClaimStrings{audience}
	claims.UserID = userID
	claims.Username = username
	claims.DisplayName = displayName

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// Sign and return the complete encoded token as a string using the secret
	return token.SignedString([]byte(secret))
}
