package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	for _, tier := range []Tier{Low, High, Lossless, HiResLossless} {
		parsed, err := Parse(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("ULTRA")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		requested Tier
		trackMax  Tier
		want      Tier
	}{
		{"downgrades above track max", HiResLossless, Lossless, Lossless},
		{"keeps tier at track max", Lossless, Lossless, Lossless},
		{"keeps tier below track max", High, Lossless, High},
		{"low track caps everything", HiResLossless, Low, Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.requested, tt.trackMax))
		})
	}
}

func TestNextLower(t *testing.T) {
	assert.Equal(t, Lossless, HiResLossless.NextLower())
	assert.Equal(t, High, Lossless.NextLower())
	assert.Equal(t, Low, High.NextLower())
	assert.Equal(t, Low, Low.NextLower())
}

func TestIsHiRes(t *testing.T) {
	assert.True(t, HiResLossless.IsHiRes())
	assert.False(t, Lossless.IsHiRes())
}
