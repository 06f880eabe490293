package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMillisAfter(t *testing.T) {
	issuedAt := time.Unix(1000, 0)

	assert.False(t, millisAfter(0, issuedAt), "zero means no revocation recorded")
	assert.False(t, millisAfter(999000, issuedAt), "revocation before issuance does not invalidate")
	assert.True(t, millisAfter(1000001, issuedAt), "revocation after issuance invalidates")
}
