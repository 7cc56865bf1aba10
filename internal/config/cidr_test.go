package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubnetCIDR(t *testing.T) {
	t.Parallel()

	tests := []struct {
		network string
		index   int
		want    string
		wantErr bool
	}{
		{"10.2.0.0/16", 0, "10.2.0.0/24", false},
		{"10.2.0.0/16", 1, "10.2.1.0/24", false},
		{"10.2.0.0/16", 255, "10.2.255.0/24", false},
		{"10.2.0.0/16", 256, "", true},
		{"10.2.5.0/24", 0, "10.2.5.0/24", false},
		{"10.2.0.0/28", 0, "", true},
		{"fd00::/8", 0, "", true},
		{"garbage", 0, "", true},
	}

	for _, tt := range tests {
		got, err := SubnetCIDR(tt.network, tt.index)
		if tt.wantErr {
			assert.Error(t, err, "%s[%d]", tt.network, tt.index)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNextSubnetCIDR(t *testing.T) {
	t.Parallel()

	got, err := NextSubnetCIDR("10.2.0.0/16", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.2.0.0/24", got)

	got, err = NextSubnetCIDR("10.2.0.0/16", []string{"10.2.0.0/24", "10.2.3.0/24", "10.2.1.0/24"})
	require.NoError(t, err)
	assert.Equal(t, "10.2.4.0/24", got)
}
