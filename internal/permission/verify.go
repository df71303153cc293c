package permission

import (
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidToken means the credential was malformed, badly signed,
// expired or not yet valid
var ErrInvalidToken = errors.New("token invalid")

// ErrMissingClaims means the credential verified cryptographically
// but lacks a required claim; kept distinct so the two failure modes
// can be told apart in logs
var ErrMissingClaims = errors.New("token missing required claims")

// Verify checks a bearer credential and returns the Principal it
// carries. No session state exists before Verify succeeds.
func Verify(bearerToken, secret, audience string) (p Principal, re error) {

	// a corrupt token must not take the process down with it
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"stack": r}).Error("panic in permission.Verify")
			re = ErrInvalidToken
			p = Principal{}
		}
	}()

	claims := &Token{}

	token, err := jwt.ParseWithClaims(bearerToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method was %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		log.WithField("error", err.Error()).Debug("error parsing token")
		return Principal{}, ErrInvalidToken
	}

	if !token.Valid { //checks iat, nbf, exp
		return Principal{}, ErrInvalidToken
	}

	cc, ok := token.Claims.(*Token)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	if !cc.RegisteredClaims.VerifyAudience(audience, true) {
		log.WithFields(log.Fields{"aud": cc.RegisteredClaims.Audience, "host": audience}).Debug("aud does not match this host")
		return Principal{}, ErrInvalidToken
	}

	if !HasRequiredClaims(*cc) {
		return Principal{}, ErrMissingClaims
	}

	return cc.Principal(), nil
}
