package authn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patr-cloud/patr-api/internal/authn"
)

func TestIsApiToken(t *testing.T) {
	assert.True(t, authn.IsApiToken("patrv1.secret.login-id"))
	assert.False(t, authn.IsApiToken("eyJhbGciOiJIUzI1NiJ9.some.jwt"))
}

func TestParseApiToken(t *testing.T) {
	secret, loginID, err := authn.ParseApiToken("patrv1.s3cr3t.login-abc")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)
	assert.Equal(t, "login-abc", loginID)
}

func TestParseApiToken_DotsAfterSecretStayInLoginID(t *testing.T) {
	secret, loginID, err := authn.ParseApiToken("patrv1.part.one.login-abc")
	require.NoError(t, err)
	assert.Equal(t, "part", secret)
	assert.Equal(t, "one.login-abc", loginID)
}

func TestParseApiToken_Malformed(t *testing.T) {
	_, _, err := authn.ParseApiToken("patrv1.onlyonepart")
	assert.Error(t, err)

	_, _, err = authn.ParseApiToken("patrv1.")
	assert.Error(t, err)
}
