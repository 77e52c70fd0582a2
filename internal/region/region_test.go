package region

import (
	"testing"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFromPath(t *testing.T) {
	tests := []struct {
		path string
		want domain.Region
	}{
		{"/sa", domain.RegionSaudi},
		{"/sa/shop/123", domain.RegionSaudi},
		{"/om", domain.RegionOman},
		{"/om/cart", domain.RegionOman},
		{"/", domain.RegionOman},
		{"", domain.RegionOman},
		{"/api/v1/cart", domain.RegionOman},
		{"/products/sa", domain.RegionOman},
		{"/SA/cart", domain.RegionOman},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FromPath(tt.path))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(domain.RegionOman))
	assert.True(t, Valid(domain.RegionSaudi))
	assert.False(t, Valid("ae"))
	assert.False(t, Valid(""))
}
