package ci

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	sig := signBody("topsecret", body)

	assert.True(t, verifySignature("topsecret", body, sig))
	assert.False(t, verifySignature("wrongsecret", body, sig))
	assert.False(t, verifySignature("topsecret", []byte("tampered"), sig))
	assert.False(t, verifySignature("topsecret", body, "not-a-valid-signature"))
	assert.False(t, verifySignature("topsecret", body, hex.EncodeToString([]byte("abc"))))
}

func TestClassifyRef(t *testing.T) {
	kind, name, err := classifyRef("refs/heads/main")
	assert.NoError(t, err)
	assert.Equal(t, EventCommit, kind)
	assert.Equal(t, "main", name)

	kind, name, err = classifyRef("refs/tags/v1.2.3")
	assert.NoError(t, err)
	assert.Equal(t, EventTag, kind)
	assert.Equal(t, "v1.2.3", name)

	_, _, err = classifyRef("refs/merge-requests/4/head")
	assert.Error(t, err)
}
