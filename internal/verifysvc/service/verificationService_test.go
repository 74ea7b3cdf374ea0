package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/monitoring"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	card *models.Card
	err  error
}

func (d *fakeDirectory) GetCardByKey(ctx context.Context, software, cardKey string) (*models.Card, error) {
	return d.card, d.err
}

type fakeCatalog struct {
	links []models.DownloadLink
}

func (c *fakeCatalog) GetAvailableLinks(ctx context.Context) ([]models.DownloadLink, error) {
	return c.links, nil
}

type failingLedger struct{}

func (failingLedger) RecordAttempt(ctx context.Context, cardKey, ipAddress string, wasSuccessful bool, link *models.AssignedLink) (int64, error) {
	return 0, errors.New("ledger down")
}

func (failingLedger) GetDownloadHistoryForCard(ctx context.Context, cardKey string) ([]models.HistoryEntry, error) {
	return nil, errors.New("ledger down")
}

func (failingLedger) GetUsageCounts(ctx context.Context) (map[int64]int, error) {
	return nil, errors.New("ledger down")
}

func (failingLedger) GetLastAssignedLink(ctx context.Context, cardKey string) (*int64, error) {
	return nil, errors.New("ledger down")
}

func validCard(key string) *models.Card {
	return &models.Card{
		CardKey: key,
		State:   models.CardStateEnabled,
	}
}

func pool(n int) []models.DownloadLink {
	now := time.Now()
	links := make([]models.DownloadLink, 0, n)
	for i := 1; i <= n; i++ {
		links = append(links, models.DownloadLink{
			ID:             int64(i),
			URL:            "https://example.com/share",
			ExtractionCode: "abcd",
			CreatedAt:      now,
		})
	}
	return links
}

func newTestService(card *models.Card, links []models.DownloadLink, ledger AttemptLedger) *VerificationService {
	return NewVerificationService(
		&fakeDirectory{card: card},
		&fakeCatalog{links: links},
		ledger,
		NewLinkSelector(firstPick{}),
		nil,
		nil,
	)
}

func TestVerifyFirstCallAssignsLink(t *testing.T) {
	svc := newTestService(validCard("ABC123"), pool(5), store.NewMemoryAttemptStore())

	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	require.True(t, result.VerificationPassed)
	assert.Equal(t, "ABC123", result.CardKey)
	assert.Equal(t, int64(1), result.AttemptNumber)
	require.Len(t, result.DownloadHistory, 1)
	assert.True(t, result.DownloadHistory[0].IsNew)
	require.NotNil(t, result.Download)
	assert.True(t, result.Download.IsNew)
	assert.Equal(t, 2, result.RemainingLinkQuota)
	assert.False(t, result.HasReachedLinkLimit)
}

func TestVerifyTrimsCardKey(t *testing.T) {
	svc := newTestService(validCard("ABC123"), pool(5), store.NewMemoryAttemptStore())

	result := svc.Verify(context.Background(), "demo", "  ABC123  ", "1.2.3.4")

	assert.Equal(t, "ABC123", result.CardKey)
	assert.True(t, result.VerificationPassed)
}

func TestVerifyQuotaExhaustion(t *testing.T) {
	ledger := store.NewMemoryAttemptStore()
	svc := newTestService(validCard("ABC123"), pool(5), ledger)
	ctx := context.Background()

	var third *VerificationResult
	for i := 0; i < 3; i++ {
		third = svc.Verify(ctx, "demo", "ABC123", "1.2.3.4")
		require.True(t, third.VerificationPassed)
	}

	assert.Equal(t, int64(3), third.AttemptNumber)
	assert.Len(t, third.DownloadHistory, 3)
	assert.Equal(t, 0, third.RemainingLinkQuota)
	assert.True(t, third.HasReachedLinkLimit)

	fourth := svc.Verify(ctx, "demo", "ABC123", "1.2.3.4")
	require.True(t, fourth.VerificationPassed)
	assert.Equal(t, int64(4), fourth.AttemptNumber)
	assert.True(t, fourth.HasReachedLinkLimit)
	assert.Equal(t, 0, fourth.RemainingLinkQuota)
	assert.Len(t, fourth.DownloadHistory, 3)
	for _, entry := range fourth.DownloadHistory {
		assert.False(t, entry.IsNew)
	}
}

func TestVerifyHistoryNeverExceedsQuota(t *testing.T) {
	ledger := store.NewMemoryAttemptStore()
	svc := newTestService(validCard("ABC123"), pool(10), ledger)
	ctx := context.Background()

	var last *VerificationResult
	for i := 0; i < 8; i++ {
		last = svc.Verify(ctx, "demo", "ABC123", "1.2.3.4")
	}

	assert.Len(t, last.DownloadHistory, MaxUniqueDownloadLinks)
}

func TestVerifyCardNotFound(t *testing.T) {
	svc := newTestService(nil, pool(5), store.NewMemoryAttemptStore())

	result := svc.Verify(context.Background(), "demo", "GHOST", "1.2.3.4")

	assert.False(t, result.VerificationPassed)
	assert.Equal(t, int64(1), result.AttemptNumber)
	assert.Empty(t, result.DownloadHistory)
	assert.Contains(t, result.Message, "does not exist")
}

func TestVerifyCardExpired(t *testing.T) {
	card := validCard("ABC123")
	card.ExpireTime = 1_000_000_000 // September 2001

	svc := newTestService(card, pool(5), store.NewMemoryAttemptStore())
	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.False(t, result.VerificationPassed)
	assert.Greater(t, result.ExpiresAt, int64(0))
	assert.Contains(t, result.Message, "expired")
}

func TestVerifyCardDisabled(t *testing.T) {
	card := validCard("ABC123")
	card.State = "disabled"

	svc := newTestService(card, pool(5), store.NewMemoryAttemptStore())
	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.False(t, result.VerificationPassed)
	assert.Contains(t, result.Message, "not enabled")
}

func TestVerifyPlaceholderExpiryIsNeverExpiring(t *testing.T) {
	card := validCard("ABC123")
	card.ExpireTime = 86_400 // epoch+1 day placeholder

	svc := newTestService(card, pool(5), store.NewMemoryAttemptStore())
	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.True(t, result.VerificationPassed)
	assert.Equal(t, int64(0), result.ExpiresAt)
}

func TestVerifyDirectoryFailureIsRecorded(t *testing.T) {
	ledger := store.NewMemoryAttemptStore()
	svc := NewVerificationService(
		&fakeDirectory{err: errors.New("directory unreachable")},
		&fakeCatalog{links: pool(5)},
		ledger,
		NewLinkSelector(firstPick{}),
		nil,
		nil,
	)

	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.False(t, result.VerificationPassed)
	assert.Equal(t, int64(1), result.AttemptNumber)

	items, total, err := ledger.QueryLogs(context.Background(), models.AttemptQuery{CardKey: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.False(t, items[0].WasSuccessful)
}

func TestVerifyEmptyCatalog(t *testing.T) {
	svc := newTestService(validCard("ABC123"), nil, store.NewMemoryAttemptStore())

	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.True(t, result.VerificationPassed)
	assert.Nil(t, result.Download)
	assert.Empty(t, result.DownloadHistory)
	assert.Contains(t, result.Message, "no download link")
}

func TestVerifyRepeatAssignmentKeepsHistory(t *testing.T) {
	// a pool of one: the second call can only be offered a repeat,
	// which must not create a new history entry
	ledger := store.NewMemoryAttemptStore()
	svc := newTestService(validCard("ABC123"), pool(1), ledger)
	ctx := context.Background()

	first := svc.Verify(ctx, "demo", "ABC123", "1.2.3.4")
	require.Len(t, first.DownloadHistory, 1)

	second := svc.Verify(ctx, "demo", "ABC123", "1.2.3.4")
	require.True(t, second.VerificationPassed)
	assert.Len(t, second.DownloadHistory, 1)
	assert.False(t, second.DownloadHistory[0].IsNew)
	assert.Equal(t, 2, second.RemainingLinkQuota)
	assert.Contains(t, second.Message, "no new download link")
}

func TestVerifyLedgerFailureStillAnswers(t *testing.T) {
	svc := newTestService(validCard("ABC123"), pool(5), failingLedger{})

	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")

	assert.True(t, result.VerificationPassed)
	assert.Equal(t, int64(1), result.AttemptNumber)
	require.Len(t, result.DownloadHistory, 1)
	assert.True(t, result.DownloadHistory[0].IsNew)
}

func TestVerifyDegradedPathsAreCounted(t *testing.T) {
	metrics := monitoring.NewMetrics()
	svc := NewVerificationService(
		&fakeDirectory{card: validCard("ABC123")},
		&fakeCatalog{links: pool(5)},
		failingLedger{},
		NewLinkSelector(firstPick{}),
		nil,
		metrics,
	)

	result := svc.Verify(context.Background(), "demo", "ABC123", "1.2.3.4")
	require.True(t, result.VerificationPassed)

	for _, errorType := range []string{"history_load", "usage_load", "last_link_load", "ledger_write"} {
		count := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues(errorType))
		assert.Equal(t, float64(1), count, errorType)
	}
}
