package permission

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
)

const testSecret = "somesecret"
const testAudience = "https://relay.example.io"

func signedToken(t *testing.T, claims Token, secret string) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.NoError(t, err)
	return s
}

func validClaims() Token {
	now := time.Now().Unix() - 1
	return NewToken(testAudience, "u1", "alice", "Alice", now, now, now+30)
}

func TestVerify(t *testing.T) {

	bearer := signedToken(t, validClaims(), testSecret)

	p, err := Verify(bearer, testSecret, testAudience)
	assert.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.False(t, p.Bot)
}

func TestVerifyRejectsBadSignature(t *testing.T) {

	bearer := signedToken(t, validClaims(), "wrongsecret")

	_, err := Verify(bearer, testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsExpired(t *testing.T) {

	now := time.Now().Unix()
	claims := NewToken(testAudience, "u1", "alice", "Alice", now-120, now-120, now-60)
	bearer := signedToken(t, claims, testSecret)

	_, err := Verify(bearer, testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsWrongAudience(t *testing.T) {

	now := time.Now().Unix() - 1
	claims := NewToken("https://other.example.io", "u1", "alice", "Alice", now, now, now+30)
	bearer := signedToken(t, claims, testSecret)

	_, err := Verify(bearer, testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyDistinguishesMissingClaims(t *testing.T) {

	// verifies cryptographically but has no user identity
	now := time.Now().Unix() - 1
	claims := NewToken(testAudience, "", "alice", "", now, now, now+30)
	bearer := signedToken(t, claims, testSecret)

	_, err := Verify(bearer, testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrMissingClaims))
	assert.False(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsGarbage(t *testing.T) {

	_, err := Verify("not.a.jwt", testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Verify("", testSecret, testAudience)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestHasRequiredClaims(t *testing.T) {

	token := validClaims()
	assert.True(t, HasRequiredClaims(token))

	missingUser := validClaims()
	missingUser.UserID = ""
	assert.False(t, HasRequiredClaims(missingUser))

	missingName := validClaims()
	missingName.DisplayName = ""
	assert.False(t, HasRequiredClaims(missingName))

	missingAud := validClaims()
	missingAud.Audience = jwt.ClaimStrings{}
	assert.False(t, HasRequiredClaims(missingAud))
}

func TestPrincipalFallsBackToUsername(t *testing.T) {

	token := validClaims()
	token.DisplayName = ""
	token.Username = "alice"

	p := token.Principal()
	assert.Equal(t, "alice", p.DisplayName)
}
