package authn_test

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patr-cloud/patr-api/internal/authn"
)

func TestGenerateMFASecret(t *testing.T) {
	secret, url, err := authn.GenerateMFASecret("user@example.com", "Patr")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, url, "otpauth://")
	assert.Contains(t, url, "Patr")
}

func TestValidateOTP(t *testing.T) {
	secret, _, err := authn.GenerateMFASecret("user@example.com", "Patr")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.True(t, authn.ValidateOTP(secret, code))
	assert.False(t, authn.ValidateOTP(secret, "000000"))
}
