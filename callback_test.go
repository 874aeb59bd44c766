package deskauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback_CodeVariant(t *testing.T) {
	cb, err := ParseCallback("myapp://auth/callback?code=abc&state=s123")
	require.NoError(t, err)
	assert.Equal(t, CallbackCode, cb.Kind)
	assert.Equal(t, "abc", cb.Code)
	assert.Equal(t, "s123", cb.State)
	assert.Empty(t, cb.Token)
}

func TestParseCallback_TokenAliases(t *testing.T) {
	for _, param := range []string{"clerk_token", "token", "jwt"} {
		cb, err := ParseCallback("myapp://auth/callback?" + param + "=eyJ123")
		require.NoError(t, err)
		assert.Equalf(t, CallbackToken, cb.Kind, "param %s", param)
		assert.Equal(t, "eyJ123", cb.Token)
	}
}

func TestParseCallback_SessionIDAliases(t *testing.T) {
	for _, param := range []string{"session_id", "created_session_id"} {
		cb, err := ParseCallback("myapp://auth/callback?token=tk&" + param + "=sess-9")
		require.NoError(t, err)
		assert.Equal(t, "sess-9", cb.SessionID)
	}
}

func TestParseCallback_ErrorVariant(t *testing.T) {
	cb, err := ParseCallback("myapp://auth/callback?error=access_denied")
	require.NoError(t, err)
	assert.Equal(t, CallbackError, cb.Kind)
	assert.Equal(t, "access_denied", cb.ErrorMsg)

	cb, err = ParseCallback("myapp://auth/callback?error_description=user+cancelled")
	require.NoError(t, err)
	assert.Equal(t, CallbackError, cb.Kind)
	assert.Equal(t, "user cancelled", cb.ErrorMsg)
}

func TestParseCallback_TokenWinsOverError(t *testing.T) {
	// A usable token takes precedence over a stray error parameter.
	cb, err := ParseCallback("myapp://auth/callback?token=tk&error=ignored")
	require.NoError(t, err)
	assert.Equal(t, CallbackToken, cb.Kind)
}

func TestParseCallback_FragmentParameters(t *testing.T) {
	cb, err := ParseCallback("myapp://auth/callback#code=abc&state=s1")
	require.NoError(t, err)
	assert.Equal(t, CallbackCode, cb.Kind)
	assert.Equal(t, "abc", cb.Code)
	assert.Equal(t, "s1", cb.State)
}

func TestParseCallback_UnknownVariant(t *testing.T) {
	cb, err := ParseCallback("myapp://auth/callback")
	require.NoError(t, err)
	assert.Equal(t, CallbackUnknown, cb.Kind)
}

func TestIsAuthCallback(t *testing.T) {
	assert.True(t, isAuthCallback("myapp://auth/callback?code=1"))
	assert.False(t, isAuthCallback("myapp://settings/general"))
	assert.False(t, isAuthCallback("myapp://auth/other"))
	assert.False(t, isAuthCallback("::bad::"))
}
