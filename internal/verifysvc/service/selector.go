package service

import (
	"crypto/rand"
	"math/big"
	"sort"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
)

// recencyWindow is how far behind the newest link a link may be created
// and still count as fresh during selection.
const recencyWindow = 24 * time.Hour

// RandSource supplies the tie-break randomness so tests can make
// selection deterministic.
type RandSource interface {
	Intn(n int) int
}

type cryptoRandSource struct{}

func (cryptoRandSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

type rankedLink struct {
	link  models.DownloadLink
	usage int
}

// LinkSelector is the pure fairness policy: given the pool, global
// usage counts and a card's prior assignments it picks the next link
// to grant.
type LinkSelector struct {
	rnd RandSource
}

func NewLinkSelector(rnd RandSource) *LinkSelector {
	if rnd == nil {
		rnd = cryptoRandSource{}
	}
	return &LinkSelector{rnd: rnd}
}

// Pick chooses one link, or nil when the pool is empty. Layered
// fallback: links created within 24h of the newest are preferred, then
// the full pool; within each set the first non-empty filter wins —
// unseen-and-not-last, then unseen, then not-last, then any — and the
// final choice is uniform among the least-used survivors.
func (s *LinkSelector) Pick(links []models.DownloadLink, usageCounts map[int64]int, usedIDs map[int64]struct{}, lastLinkID *int64) *models.DownloadLink {
	if len(links) == 0 {
		return nil
	}

	ranked := make([]rankedLink, 0, len(links))
	latest := links[0].CreatedAt
	for _, link := range links {
		ranked = append(ranked, rankedLink{link: link, usage: usageCounts[link.ID]})
		if link.CreatedAt.After(latest) {
			latest = link.CreatedAt
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].usage != ranked[j].usage {
			return ranked[i].usage < ranked[j].usage
		}
		if !ranked[i].link.CreatedAt.Equal(ranked[j].link.CreatedAt) {
			return ranked[i].link.CreatedAt.After(ranked[j].link.CreatedAt)
		}
		return ranked[i].link.ID > ranked[j].link.ID
	})

	windowStart := latest.Add(-recencyWindow)
	var window []rankedLink
	for _, item := range ranked {
		if !item.link.CreatedAt.Before(windowStart) {
			window = append(window, item)
		}
	}

	isUsed := func(item rankedLink) bool {
		_, ok := usedIDs[item.link.ID]
		return ok
	}
	isLast := func(item rankedLink) bool {
		return lastLinkID != nil && item.link.ID == *lastLinkID
	}

	filters := []func(rankedLink) bool{
		func(item rankedLink) bool { return !isUsed(item) && !isLast(item) },
		func(item rankedLink) bool { return !isUsed(item) },
		func(item rankedLink) bool { return lastLinkID != nil && !isLast(item) },
		func(item rankedLink) bool { return true },
	}

	for _, candidates := range [][]rankedLink{window, ranked} {
		for _, filter := range filters {
			if picked := s.pickRandomCandidate(candidates, filter); picked != nil {
				return picked
			}
		}
	}

	return nil
}

// pickRandomCandidate filters the candidates, restricts them to the
// minimum usage count, and picks one of the survivors at random.
func (s *LinkSelector) pickRandomCandidate(candidates []rankedLink, filter func(rankedLink) bool) *models.DownloadLink {
	var filtered []rankedLink
	for _, item := range candidates {
		if filter(item) {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	minUsage := filtered[0].usage
	for _, item := range filtered[1:] {
		if item.usage < minUsage {
			minUsage = item.usage
		}
	}

	var finalists []rankedLink
	for _, item := range filtered {
		if item.usage == minUsage {
			finalists = append(finalists, item)
		}
	}

	selected := finalists[s.rnd.Intn(len(finalists))].link
	return &selected
}
