package service

import (
	"strconv"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
)

const (
	momentStampLayout = "20060102150405"

	// Upstream emits placeholder expirations in the first days of 1970
	// (epoch plus one, two or three days) to mean "no expiry"; anything
	// below this stamp is treated as never-expiring. The cutoff leaves
	// a day of slack so the placeholders survive local-time formatting
	// in any timezone.
	placeholderExpiryCutoff = 19700105000000

	unixSecondsUpperBound = 100_000_000_000
	unixMillisUpperBound  = 100_000_000_000_000
)

func currentMomentStamp() int64 {
	return momentStamp(time.Now())
}

func momentStamp(t time.Time) int64 {
	value, err := strconv.ParseInt(t.Local().Format(momentStampLayout), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// normalizeExpiration converts a raw upstream expiration to the
// yyyyMMddHHmmss scale. Values below 1e11 are Unix seconds, values
// below 1e14 are Unix milliseconds, anything larger is already on the
// target scale.
func normalizeExpiration(raw int64) int64 {
	if raw < 0 {
		return raw
	}

	switch {
	case raw < unixSecondsUpperBound:
		return momentStamp(time.Unix(raw, 0))
	case raw < unixMillisUpperBound:
		return momentStamp(time.UnixMilli(raw))
	default:
		return raw
	}
}

// resolveExpiration picks the effective expiration stamp for a card.
// Zero means the card never expires; the 1970 placeholder family maps
// to zero as well.
func resolveExpiration(card *models.Card) int64 {
	if card == nil {
		return 0
	}

	var resolved int64
	for _, raw := range []int64{card.ExpireTime, card.ExpireTimeAlt} {
		if raw <= 0 {
			continue
		}
		if normalized := normalizeExpiration(raw); normalized > resolved {
			resolved = normalized
		}
	}

	if resolved <= 0 || resolved < placeholderExpiryCutoff {
		return 0
	}

	return resolved
}
