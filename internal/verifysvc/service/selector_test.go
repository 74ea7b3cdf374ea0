package service

import (
	"testing"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstPick always selects the first finalist, making the random
// tie-break deterministic.
type firstPick struct{}

func (firstPick) Intn(n int) int { return 0 }

func newTestSelector() *LinkSelector {
	return NewLinkSelector(firstPick{})
}

func link(id int64, createdAt time.Time) models.DownloadLink {
	return models.DownloadLink{
		ID:             id,
		URL:            "https://example.com/share",
		ExtractionCode: "abcd",
		CreatedAt:      createdAt,
	}
}

func TestPickEmptyPool(t *testing.T) {
	picked := newTestSelector().Pick(nil, map[int64]int{}, map[int64]struct{}{}, nil)
	assert.Nil(t, picked)
}

func TestPickPrefersUnseenLeastUsed(t *testing.T) {
	now := time.Now()
	pool := []models.DownloadLink{
		link(1, now),
		link(2, now),
		link(3, now),
	}
	usage := map[int64]int{1: 5, 2: 0, 3: 2}

	picked := newTestSelector().Pick(pool, usage, map[int64]struct{}{}, nil)
	require.NotNil(t, picked)
	assert.Equal(t, int64(2), picked.ID)
}

func TestPickExcludesUsedAndLast(t *testing.T) {
	now := time.Now()
	pool := []models.DownloadLink{
		link(1, now),
		link(2, now),
		link(3, now),
	}
	used := map[int64]struct{}{1: {}}
	last := int64(3)

	picked := newTestSelector().Pick(pool, map[int64]int{}, used, &last)
	require.NotNil(t, picked)
	assert.Equal(t, int64(2), picked.ID)
}

func TestPickPrefersRecencyWindow(t *testing.T) {
	now := time.Now()
	stale := now.Add(-72 * time.Hour)
	pool := []models.DownloadLink{
		link(1, stale),
		link(2, now),
	}
	// the stale link is cheaper, but only the fresh one is in the
	// 24h window of the newest link
	usage := map[int64]int{1: 0, 2: 10}

	picked := newTestSelector().Pick(pool, usage, map[int64]struct{}{}, nil)
	require.NotNil(t, picked)
	assert.Equal(t, int64(2), picked.ID)
}

func TestPickRelaxesFiltersWithinWindow(t *testing.T) {
	now := time.Now()
	stale := now.Add(-72 * time.Hour)
	pool := []models.DownloadLink{
		link(1, stale),
		link(2, now),
	}
	// the only windowed link is used and was the last assignment; the
	// filters relax until the window still yields it, before the full
	// pool is ever consulted
	used := map[int64]struct{}{2: {}}
	last := int64(2)

	picked := newTestSelector().Pick(pool, map[int64]int{}, used, &last)
	require.NotNil(t, picked)
	assert.Equal(t, int64(2), picked.ID)
}

func TestPickDegradesToRepeatWhenEverythingUsed(t *testing.T) {
	now := time.Now()
	pool := []models.DownloadLink{link(1, now)}
	used := map[int64]struct{}{1: {}}
	last := int64(1)

	picked := newTestSelector().Pick(pool, map[int64]int{1: 3}, used, &last)
	require.NotNil(t, picked)
	assert.Equal(t, int64(1), picked.ID)
}

func TestPickRestrictsToMinimumUsage(t *testing.T) {
	now := time.Now()
	pool := []models.DownloadLink{
		link(1, now),
		link(2, now.Add(-time.Hour)),
		link(3, now.Add(-2 * time.Hour)),
	}
	usage := map[int64]int{1: 2, 2: 1, 3: 1}

	picked := newTestSelector().Pick(pool, usage, map[int64]struct{}{}, nil)
	require.NotNil(t, picked)
	// both min-usage links qualify; the deterministic tie-break takes
	// the better ranked one (newer creation time)
	assert.Equal(t, int64(2), picked.ID)
}

func TestPickAlwaysReturnsSomethingOnNonEmptyPool(t *testing.T) {
	now := time.Now()
	pool := []models.DownloadLink{
		link(1, now.Add(-96 * time.Hour)),
		link(2, now.Add(-48 * time.Hour)),
	}
	used := map[int64]struct{}{1: {}, 2: {}}
	last := int64(2)

	picked := newTestSelector().Pick(pool, map[int64]int{1: 4, 2: 4}, used, &last)
	require.NotNil(t, picked)
}
