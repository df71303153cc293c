package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Goal651/discord-bot-server/internal/permission"
)

func TestNew(t *testing.T) {

	audience := "https://relay.example.io"
	secret := "somesecret"

	iat := time.Now().Add(-time.Second)
	exp := iat.Add(time.Minute)

	bearer, err := New(iat, iat, exp, audience, "U1", "u1", "User One", secret)
	assert.NoError(t, err)

	p, err := permission.Verify(bearer, secret, audience)
	assert.NoError(t, err)
	assert.Equal(t, "U1", p.ID)
	assert.Equal(t, "u1", p.Username)
	assert.Equal(t, "User One", p.DisplayName)
}

func TestNewRejectedElsewhere(t *testing.T) {

	audience := "https://relay.example.io"

	iat := time.Now().Add(-time.Second)
	exp := iat.Add(time.Minute)

	bearer, err := New(iat, iat, exp, audience, "U1", "u1", "User One", "somesecret")
	assert.NoError(t, err)

	_, err = permission.Verify(bearer, "othersecret", audience)
	assert.True(t, errors.Is(err, permission.ErrInvalidToken))
}
