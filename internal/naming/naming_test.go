package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"oxford_street", "oxford_street"},
		{"Oxford Street", "oxford_street"},
		{"Nicosía  Old-Town", "nicosia_old-town"},
		{"  São Paulo / Centro ", "sao_paulo_centro"},
		{"!!!", "location"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}
}

func TestSlug_CaseAndSeparatorsCollide(t *testing.T) {
	assert.Equal(t, Slug("Howland Road"), Slug("howland_road"))
	assert.NotEqual(t, Slug("howland-road"), Slug("howland_road"))
}
