package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
)

// MemoryAttemptStore is an in-process attempt ledger implementing the
// same contract as AttemptStore. The per-card-key atomic sequence is a
// mutex keyed by card key, so concurrent writes for the same key are
// serialized while different keys proceed independently; the global
// lock only protects the backing slice. Used by tests and
// single-instance embeddings.
type MemoryAttemptStore struct {
	mu       sync.RWMutex // guards attempts and nextID
	keyMu    sync.Mutex   // guards locks
	locks    map[string]*sync.Mutex
	attempts []models.Attempt
	nextID   int64
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryAttemptStore) lockFor(cardKey string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if l, ok := s.locks[cardKey]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[cardKey] = l
	return l
}

func (s *MemoryAttemptStore) RecordAttempt(ctx context.Context, cardKey, ipAddress string, wasSuccessful bool, link *models.AssignedLink) (int64, error) {
	l := s.lockFor(cardKey)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var attemptNumber int64
	for _, a := range s.attempts {
		if a.CardKey == cardKey && a.AttemptNumber > attemptNumber {
			attemptNumber = a.AttemptNumber
		}
	}
	attemptNumber++

	s.nextID++
	attempt := models.Attempt{
		ID:            s.nextID,
		CardKey:       cardKey,
		IPAddress:     ipAddress,
		AttemptNumber: attemptNumber,
		WasSuccessful: wasSuccessful,
		CreatedAt:     time.Now().UTC(),
	}
	if link != nil {
		linkID := link.ID
		url := link.URL
		code := link.ExtractionCode
		attempt.DownloadLinkID = &linkID
		attempt.DownloadURL = &url
		attempt.ExtractionCode = &code
	}
	s.attempts = append(s.attempts, attempt)

	return attemptNumber, nil
}

func (s *MemoryAttemptStore) GetDownloadHistoryForCard(ctx context.Context, cardKey string) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.HistoryEntry
	for _, a := range s.attempts {
		if a.CardKey != cardKey || !a.WasSuccessful || a.DownloadLinkID == nil {
			continue
		}

		entry := models.HistoryEntry{LinkID: *a.DownloadLinkID, CreatedAt: a.CreatedAt}
		if a.DownloadURL != nil {
			entry.URL = *a.DownloadURL
		}
		if a.ExtractionCode != nil {
			entry.ExtractionCode = *a.ExtractionCode
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *MemoryAttemptStore) GetUsageCounts(ctx context.Context) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, a := range s.attempts {
		if !a.WasSuccessful || a.DownloadLinkID == nil {
			continue
		}
		counts[*a.DownloadLinkID]++
	}

	return counts, nil
}

func (s *MemoryAttemptStore) GetLastAssignedLink(ctx context.Context, cardKey string) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if a.CardKey == cardKey && a.WasSuccessful && a.DownloadLinkID != nil {
			linkID := *a.DownloadLinkID
			return &linkID, nil
		}
	}

	return nil, nil
}

func (s *MemoryAttemptStore) QueryLogs(ctx context.Context, query models.AttemptQuery) ([]models.Attempt, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Attempt
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if !matchesQuery(a, query) {
			continue
		}
		matched = append(matched, a)
	}

	total := int64(len(matched))

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (s *MemoryAttemptStore) DeleteLogs(ctx context.Context, ids []int64) (int64, error) {
	distinct := distinctPositive(ids)
	if len(distinct) == 0 {
		return 0, nil
	}

	drop := make(map[int64]struct{}, len(distinct))
	for _, id := range distinct {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []models.Attempt
	var removed int64
	for _, a := range s.attempts {
		if _, ok := drop[a.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept

	return removed, nil
}

func matchesQuery(a models.Attempt, query models.AttemptQuery) bool {
	if key := strings.TrimSpace(query.CardKey); key != "" && !strings.Contains(a.CardKey, key) {
		return false
	}
	if ip := strings.TrimSpace(query.IPAddress); ip != "" && !strings.Contains(a.IPAddress, ip) {
		return false
	}
	if kw := strings.TrimSpace(query.Keyword); kw != "" {
		urlHit := a.DownloadURL != nil && strings.Contains(*a.DownloadURL, kw)
		codeHit := a.ExtractionCode != nil && strings.Contains(*a.ExtractionCode, kw)
		if !urlHit && !codeHit {
			return false
		}
	}
	if query.WasSuccessful != nil && a.WasSuccessful != *query.WasSuccessful {
		return false
	}
	if query.StartTime != nil && a.CreatedAt.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && a.CreatedAt.After(*query.EndTime) {
		return false
	}
	return true
}
