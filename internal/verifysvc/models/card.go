package models

import (
	"strings"
	"time"
)

const CardStateEnabled = "enabled"

// Card is a read-only snapshot of a license card as reported by the
// card directory. ExpireTime and ExpireTimeAlt carry the raw upstream
// expiration values, which may be Unix seconds, Unix milliseconds or an
// already formatted yyyyMMddHHmmss number; zero means no expiry.
type Card struct {
	ID            int64     `json:"id"` // Primary key
	Software      string    `json:"software"`
	CardKey       string    `json:"card_key"`
	State         string    `json:"state"`
	ExpireTime    int64     `json:"expire_time"`
	ExpireTimeAlt int64     `json:"expire_time_alt"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c *Card) Enabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.State), CardStateEnabled)
}
