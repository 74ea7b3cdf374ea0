package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/comm"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/monitoring"

	log "github.com/sirupsen/logrus"
)

// MaxUniqueDownloadLinks is the quota: the number of distinct links a
// single card may ever be granted.
const MaxUniqueDownloadLinks = 3

// CardDirectory resolves a card key to its current snapshot. May be
// slow or fail; the orchestrator degrades on error.
type CardDirectory interface {
	GetCardByKey(ctx context.Context, software, cardKey string) (*models.Card, error)
}

// LinkCatalog supplies the current pool of distributable links.
type LinkCatalog interface {
	GetAvailableLinks(ctx context.Context) ([]models.DownloadLink, error)
}

// AttemptLedger is the durable attempt log, the system's source of
// truth for attempt numbers, history and usage counts.
type AttemptLedger interface {
	RecordAttempt(ctx context.Context, cardKey, ipAddress string, wasSuccessful bool, link *models.AssignedLink) (int64, error)
	GetDownloadHistoryForCard(ctx context.Context, cardKey string) ([]models.HistoryEntry, error)
	GetUsageCounts(ctx context.Context) (map[int64]int, error)
	GetLastAssignedLink(ctx context.Context, cardKey string) (*int64, error)
}

// AttemptPublisher receives attempt events after they are recorded.
type AttemptPublisher interface {
	PublishAttempt(event comm.AttemptEvent)
}

// DownloadLinkResult is one history entry in the verification
// response; AssignedAt is a local yyyyMMddHHmmss stamp.
type DownloadLinkResult struct {
	LinkID         int64  `json:"linkId"`
	URL            string `json:"url"`
	ExtractionCode string `json:"extractionCode"`
	AssignedAt     int64  `json:"assignedAt"`
	IsNew          bool   `json:"isNew"`
}

// VerificationResult is the full outcome of one verify call. Business
// conditions are expressed through VerificationPassed and Message,
// never through errors.
type VerificationResult struct {
	CardKey             string               `json:"cardKey"`
	VerificationPassed  bool                 `json:"verificationPassed"`
	AttemptNumber       int64                `json:"attemptNumber"`
	ExpiresAt           int64                `json:"expiresAt"`
	Download            *DownloadLinkResult  `json:"download"`
	DownloadHistory     []DownloadLinkResult `json:"downloadHistory"`
	HasReachedLinkLimit bool                 `json:"hasReachedLinkLimit"`
	RemainingLinkQuota  int                  `json:"remainingLinkQuota"`
	Message             string               `json:"message"`
}

type VerificationService struct {
	cards     CardDirectory
	links     LinkCatalog
	ledger    AttemptLedger
	selector  *LinkSelector
	publisher AttemptPublisher
	metrics   *monitoring.Metrics
}

// NewVerificationService wires the orchestrator. The publisher and
// metrics may be nil when no broker or registry is configured.
func NewVerificationService(cards CardDirectory, links LinkCatalog, ledger AttemptLedger, selector *LinkSelector, publisher AttemptPublisher, metrics *monitoring.Metrics) *VerificationService {
	if selector == nil {
		selector = NewLinkSelector(nil)
	}
	return &VerificationService{
		cards:     cards,
		links:     links,
		ledger:    ledger,
		selector:  selector,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Verify runs the full verification state machine for one card key and
// always returns a well-formed result; no internal failure crosses
// this boundary.
func (s *VerificationService) Verify(ctx context.Context, software, cardKey, ipAddress string) *VerificationResult {
	key := strings.TrimSpace(cardKey)

	card, err := s.cards.GetCardByKey(ctx, software, key)
	if err != nil {
		log.Errorf("failed to query card information for %s: %v", key, err)
		s.metrics.IncError("card_lookup")
		attemptNumber := s.recordAttemptSafe(ctx, key, ipAddress, false, nil)
		return &VerificationResult{
			CardKey:            key,
			VerificationPassed: false,
			AttemptNumber:      attemptNumber,
			DownloadHistory:    []DownloadLinkResult{},
			RemainingLinkQuota: MaxUniqueDownloadLinks,
			Message:            "failed to look up the card key, please try again later",
		}
	}

	now := currentMomentStamp()
	expiresAt := resolveExpiration(card)
	passed := false
	var message string

	switch {
	case card == nil:
		message = "card key does not exist, please check and retry"
	case expiresAt > 0 && expiresAt <= now:
		message = "card key has expired"
	case !card.Enabled():
		message = "card key is not enabled, please contact the administrator"
	default:
		passed = true
		message = "card key verified"
	}

	var assigned *models.AssignedLink
	history := []DownloadLinkResult{}
	hasReachedLimit := false
	remainingQuota := MaxUniqueDownloadLinks

	if passed {
		entries := s.loadHistorySafe(ctx, key)
		unique, usedIDs := buildUniqueHistory(entries)
		newEntryIndex := -1

		remainingQuota = remaining(len(usedIDs))
		hasReachedLimit = len(usedIDs) >= MaxUniqueDownloadLinks

		if hasReachedLimit {
			message = "card key verified, download link limit reached, please use your existing links"
		} else {
			link := s.tryAssignLink(ctx, key, usedIDs)
			if link == nil {
				message = "card key verified, but no download link is available right now, please try again later"
			} else {
				assigned = &models.AssignedLink{
					ID:             link.ID,
					URL:            link.URL,
					ExtractionCode: link.ExtractionCode,
				}

				if _, seen := usedIDs[link.ID]; !seen {
					usedIDs[link.ID] = struct{}{}
					unique = append(unique, models.HistoryEntry{
						LinkID:         link.ID,
						URL:            link.URL,
						ExtractionCode: link.ExtractionCode,
						CreatedAt:      time.Now().UTC(),
					})
					newEntryIndex = len(unique) - 1
					remainingQuota = remaining(len(usedIDs))
				} else if len(unique) > 0 {
					message = "card key verified, no new download link was available, your existing links are kept"
				}
			}

			hasReachedLimit = len(usedIDs) >= MaxUniqueDownloadLinks
			if newEntryIndex >= 0 {
				if hasReachedLimit {
					message = "card key verified, you have reached the download link limit, please keep your links safe"
				} else {
					message = fmt.Sprintf("card key verified, a new download link was assigned (%d more available)", remainingQuota)
				}
			}
		}

		history = make([]DownloadLinkResult, 0, len(unique))
		for i, entry := range unique {
			history = append(history, DownloadLinkResult{
				LinkID:         entry.LinkID,
				URL:            entry.URL,
				ExtractionCode: entry.ExtractionCode,
				AssignedAt:     momentStamp(entry.CreatedAt),
				IsNew:          i == newEntryIndex,
			})
		}
	}

	attemptNumber := s.recordAttemptSafe(ctx, key, ipAddress, passed, assigned)
	s.publishAttempt(key, ipAddress, attemptNumber, passed, assigned)

	var primary *DownloadLinkResult
	if len(history) > 0 {
		primary = &history[len(history)-1]
	}

	return &VerificationResult{
		CardKey:             key,
		VerificationPassed:  passed,
		AttemptNumber:       attemptNumber,
		ExpiresAt:           expiresAt,
		Download:            primary,
		DownloadHistory:     history,
		HasReachedLinkLimit: hasReachedLimit,
		RemainingLinkQuota:  remainingQuota,
		Message:             message,
	}
}

// tryAssignLink loads the pool and the fairness inputs and asks the
// selector for the next link. Ledger read failures under-count usage
// rather than blocking the assignment.
func (s *VerificationService) tryAssignLink(ctx context.Context, cardKey string, usedIDs map[int64]struct{}) *models.DownloadLink {
	links, err := s.links.GetAvailableLinks(ctx)
	if err != nil {
		log.Errorf("failed to load the download link pool: %v", err)
		s.metrics.IncError("catalog_load")
		return nil
	}
	if len(links) == 0 {
		log.Warn("no download links available to assign")
		return nil
	}

	usageCounts, err := s.ledger.GetUsageCounts(ctx)
	if err != nil {
		log.Errorf("failed to load link usage counts: %v", err)
		s.metrics.IncError("usage_load")
		usageCounts = map[int64]int{}
	}

	lastLinkID, err := s.ledger.GetLastAssignedLink(ctx, cardKey)
	if err != nil {
		log.Errorf("failed to load last assignment for %s: %v", cardKey, err)
		s.metrics.IncError("last_link_load")
		lastLinkID = nil
	}

	return s.selector.Pick(links, usageCounts, usedIDs, lastLinkID)
}

func (s *VerificationService) loadHistorySafe(ctx context.Context, cardKey string) []models.HistoryEntry {
	entries, err := s.ledger.GetDownloadHistoryForCard(ctx, cardKey)
	if err != nil {
		log.Errorf("failed to load download history for %s: %v", cardKey, err)
		s.metrics.IncError("history_load")
		return nil
	}
	return entries
}

func (s *VerificationService) recordAttemptSafe(ctx context.Context, cardKey, ipAddress string, passed bool, link *models.AssignedLink) int64 {
	attemptNumber, err := s.ledger.RecordAttempt(ctx, cardKey, ipAddress, passed, link)
	if err != nil {
		log.Errorf("failed to record verification attempt for %s: %v", cardKey, err)
		s.metrics.IncError("ledger_write")
		return 1
	}
	if attemptNumber <= 0 {
		return 1
	}
	return attemptNumber
}

func (s *VerificationService) publishAttempt(cardKey, ipAddress string, attemptNumber int64, passed bool, link *models.AssignedLink) {
	if s.publisher == nil {
		return
	}

	event := comm.AttemptEvent{
		CardKey:       cardKey,
		IPAddress:     ipAddress,
		AttemptNumber: attemptNumber,
		WasSuccessful: passed,
		CreatedAt:     time.Now().UTC(),
	}
	if link != nil {
		linkID := link.ID
		event.DownloadLinkID = &linkID
	}

	s.publisher.PublishAttempt(event)
}

// buildUniqueHistory de-duplicates the raw ledger entries by link id,
// keeping recording order, and returns the set of used ids.
func buildUniqueHistory(entries []models.HistoryEntry) ([]models.HistoryEntry, map[int64]struct{}) {
	usedIDs := make(map[int64]struct{})
	unique := make([]models.HistoryEntry, 0, len(entries))

	for _, entry := range entries {
		if entry.LinkID <= 0 {
			continue
		}
		if _, ok := usedIDs[entry.LinkID]; ok {
			continue
		}
		usedIDs[entry.LinkID] = struct{}{}
		unique = append(unique, entry)
	}

	return unique, usedIDs
}

func remaining(usedCount int) int {
	r := MaxUniqueDownloadLinks - usedCount
	if r < 0 {
		return 0
	}
	return r
}
