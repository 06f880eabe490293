package authn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIpAllowed(t *testing.T) {
	cidrs := []string{"10.0.0.0/8", "192.168.1.0/24"}

	assert.True(t, ipAllowed(net.ParseIP("10.1.2.3"), cidrs))
	assert.True(t, ipAllowed(net.ParseIP("192.168.1.50"), cidrs))
	assert.False(t, ipAllowed(net.ParseIP("172.16.0.1"), cidrs))
}

func TestIpAllowed_IgnoresMalformedCIDR(t *testing.T) {
	cidrs := []string{"not-a-cidr", "10.0.0.0/8"}
	assert.True(t, ipAllowed(net.ParseIP("10.5.5.5"), cidrs))
}

func TestIpAllowed_EmptySetDenies(t *testing.T) {
	assert.False(t, ipAllowed(net.ParseIP("10.5.5.5"), nil))
}
