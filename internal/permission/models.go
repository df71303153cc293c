// Package permission defines the JWT claims a client must present to
// attach to the relay, and validates bearer credentials into a
// Principal
package permission

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// Token represents the claims in a relay access JWT. A stable user ID
// and a display name are required; their absence is a validation
// failure distinct from a signature failure.
type Token struct {

	// UserID is the platform identity of the connecting user
	UserID string `json:"userID"`

	// Username is the login name of the user
	Username string `json:"username"`

	// DisplayName is the human-readable name shown to other users
	DisplayName string `json:"displayName"`

	// Bot marks automated accounts (never relayed, see normalize)
	Bot bool `json:"bot,omitempty"`

	jwt.RegisteredClaims
}

// Principal is the authenticated identity attached to a session;
// read-only for the rest of the system
type Principal struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Bot         bool   `json:"bot"`
}

// NewToken returns a Token populated with the supplied information
func NewToken(audience, userID, username, displayName string, iat, nbf, exp int64) Token {

	return Token{
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Unix(iat, 0)),
			NotBefore: jwt.NewNumericDate(time.Unix(nbf, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(exp, 0)),
			Audience:  []string{audience},
		},
	}
}

// HasRequiredClaims returns false if the Token is missing any required elements
func HasRequiredClaims(token Token) bool {

	if token.UserID == "" ||
		token.DisplayName == "" ||
		len(token.RegisteredClaims.Audience) == 0 ||
		token.RegisteredClaims.ExpiresAt == nil ||
		(*token.RegisteredClaims.ExpiresAt).IsZero() {
		return false
	}
	return true
}

// Principal returns the identity carried by the token
func (t Token) Principal() Principal {

	displayName := t.DisplayName
	if displayName == "" {
		displayName = t.Username
	}

	return Principal{
		ID:          t.UserID,
		Username:    t.Username,
		DisplayName: displayName,
		Bot:         t.Bot,
	}
}
