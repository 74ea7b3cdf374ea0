package models

import "time"

// Attempt is one verification call recorded in the ledger. Rows are
// append-only; the link columns are nil when no link was granted.
type Attempt struct {
	ID             int64     `json:"id"` // Primary key
	CardKey        string    `json:"card_key"`
	IPAddress      string    `json:"ip_address"`
	AttemptNumber  int64     `json:"attempt_number"` // per-card sequence, starts at 1
	WasSuccessful  bool      `json:"was_successful"`
	DownloadLinkID *int64    `json:"download_link_id"`
	DownloadURL    *string   `json:"download_url"`
	ExtractionCode *string   `json:"extraction_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// AssignedLink is the link granted by a verification call, passed to
// the ledger when recording the attempt.
type AssignedLink struct {
	ID             int64  `json:"id"`
	URL            string `json:"url"`
	ExtractionCode string `json:"extraction_code"`
}

// HistoryEntry is one successful assignment in a card's download
// history, ordered by recording order.
type HistoryEntry struct {
	LinkID         int64     `json:"link_id"`
	URL            string    `json:"url"`
	ExtractionCode string    `json:"extraction_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// AttemptQuery filters the audit listing of the ledger.
type AttemptQuery struct {
	CardKey       string     `json:"card_key"`
	IPAddress     string     `json:"ip_address"`
	Keyword       string     `json:"keyword"`
	WasSuccessful *bool      `json:"was_successful"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Page          int        `json:"page"`
	PageSize      int        `json:"page_size"`
}
