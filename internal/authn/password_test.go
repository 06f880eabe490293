package authn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patr-cloud/patr-api/internal/authn"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := authn.NewHasher("process-pepper")

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_DifferentPeppersDoNotVerifyEachOther(t *testing.T) {
	a := authn.NewHasher("pepper-a")
	b := authn.NewHasher("pepper-b")

	encoded, err := a.Hash("secret")
	require.NoError(t, err)

	ok, err := b.Verify("secret", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_Verify_MalformedEncodings(t *testing.T) {
	h := authn.NewHasher("pepper")

	_, err := h.Verify("secret", "not-a-valid-hash")
	assert.Error(t, err)

	_, err = h.Verify("secret", "$argon2id$v=19$m=65536,t=3,p=2$not!valid!base64$alsoinvalid!!")
	assert.Error(t, err)
}

func TestHasher_HashIsSaltedPerCall(t *testing.T) {
	h := authn.NewHasher("pepper")

	first, err := h.Hash("secret")
	require.NoError(t, err)
	second, err := h.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
