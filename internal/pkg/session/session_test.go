package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateToken(t *testing.T) {
	t.Run("generate valid token", func(t *testing.T) {
		token, err := GenerateToken("researcher", testSecret, 24)

		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, "researcher", claims.DisplayName)
		assert.Equal(t, "edna-dashboard", claims.Issuer)
	})

	t.Run("empty display name is allowed", func(t *testing.T) {
		// 登录是占位实现，不校验任何输入
		token, err := GenerateToken("", testSecret, 24)
		require.NoError(t, err)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Empty(t, claims.DisplayName)
	})
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("researcher", testSecret, 24)
	require.NoError(t, err)

	_, err = ParseToken(token, "different-secret")
	assert.Error(t, err)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}
