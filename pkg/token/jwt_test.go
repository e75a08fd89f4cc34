package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1)
	sessionID := NewSessionID()

	tokenString, err := manager.GenerateToken(sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := manager.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", 1)
	tokenString, err := manager.GenerateToken("session-1")
	require.NoError(t, err)

	other := NewJWTManager("secret-b", 1)
	_, err = other.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	manager := NewJWTManager("test-secret", 1)
	_, err := manager.VerifyToken("not-a-token")
	assert.Error(t, err)
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "会话标识不应重复")
		seen[id] = true
	}
}
