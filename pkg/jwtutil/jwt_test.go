package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueAndValidate(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret", Issuer: "ledger", TTL: time.Hour})
	require.NoError(t, err)

	token, expiresAt, err := m.Issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ledger", claims.Issuer)
}

func TestManager_Rejects(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret", Issuer: "ledger", TTL: time.Hour})
	require.NoError(t, err)
	token, _, err := m.Issue("user-1")
	require.NoError(t, err)

	other, err := NewManager(Config{Secret: "other", Issuer: "ledger"})
	require.NoError(t, err)
	_, err = other.ParseAndValidate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewManager(Config{Secret: "s3cret", Issuer: "someone-else"})
	require.NoError(t, err)
	_, err = wrongIssuer.ParseAndValidate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAndValidate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret", TTL: time.Minute})
	require.NoError(t, err)
	token, _, err := m.Issue("user-1")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ParseAndValidate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.ErrorIs(t, err, ErrMissingSecret)
}
