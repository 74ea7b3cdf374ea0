package service

import (
	"testing"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeExpirationSecondsAndMillisAgree(t *testing.T) {
	fromSeconds := normalizeExpiration(1_700_000_000)
	fromMillis := normalizeExpiration(1_700_000_000_000)

	assert.Equal(t, fromSeconds, fromMillis)
	assert.Greater(t, fromSeconds, int64(placeholderExpiryCutoff))
}

func TestNormalizeExpirationFormattedScalePassesThrough(t *testing.T) {
	raw := int64(100_000_000_000_000)
	assert.Equal(t, raw, normalizeExpiration(raw))
}

func TestNormalizeExpirationNegativePassesThrough(t *testing.T) {
	assert.Equal(t, int64(-5), normalizeExpiration(-5))
}

func TestResolveExpirationNoValuesMeansNoExpiry(t *testing.T) {
	assert.Equal(t, int64(0), resolveExpiration(&models.Card{}))
	assert.Equal(t, int64(0), resolveExpiration(nil))
}

func TestResolveExpirationEpochPlaceholdersMeanNoExpiry(t *testing.T) {
	// epoch+1/2/3 days, emitted upstream to mean "never expires"
	for _, raw := range []int64{86_400, 172_800, 259_200} {
		card := &models.Card{ExpireTime: raw}
		assert.Equal(t, int64(0), resolveExpiration(card), "seconds placeholder %d", raw)

		card = &models.Card{ExpireTime: raw * 1000}
		assert.Equal(t, int64(0), resolveExpiration(card), "millis placeholder %d", raw*1000)
	}
}

func TestResolveExpirationPicksLatestCandidate(t *testing.T) {
	card := &models.Card{
		ExpireTime:    1_700_000_000,
		ExpireTimeAlt: 1_800_000_000,
	}

	assert.Equal(t, normalizeExpiration(1_800_000_000), resolveExpiration(card))
}

func TestMomentStampMonotonicWithTime(t *testing.T) {
	earlier := normalizeExpiration(1_700_000_000)
	later := normalizeExpiration(1_700_003_600)

	assert.Less(t, earlier, later)
}
