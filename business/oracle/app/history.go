package app

import (
	"sort"
	"sync"
	"time"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
)

// history keeps the last depth accepted quotes per source and pair, ordered
// by observation time.
type history struct {
	depth int

	mu     sync.RWMutex
	quotes map[string][]domain.PriceQuote
}

func newHistory(depth int) *history {
	if depth <= 0 {
		depth = 256
	}
	return &history{depth: depth, quotes: make(map[string][]domain.PriceQuote)}
}

func historyKey(sourceID, pair string) string {
	return sourceID + "|" + pair
}

func (h *history) record(q domain.PriceQuote) {
	key := historyKey(q.SourceID, q.Pair())

	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.quotes[key]
	if n := len(list); n > 0 && !list[n-1].ObservedAt.Before(q.ObservedAt) {
		// Same observation re-served from a cache, or out of order.
		if list[n-1].ObservedAt.Equal(q.ObservedAt) {
			return
		}
		i := sort.Search(n, func(i int) bool { return list[i].ObservedAt.After(q.ObservedAt) })
		list = append(list, domain.PriceQuote{})
		copy(list[i+1:], list[i:])
		list[i] = q
	} else {
		list = append(list, q)
	}
	if len(list) > h.depth {
		list = list[len(list)-h.depth:]
	}
	h.quotes[key] = list
}

// at returns the newest quote observed at or before t.
func (h *history) at(sourceID, pair string, t time.Time) (domain.PriceQuote, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.quotes[historyKey(sourceID, pair)]
	i := sort.Search(len(list), func(i int) bool { return list[i].ObservedAt.After(t) })
	if i == 0 {
		return domain.PriceQuote{}, false
	}
	return list[i-1], true
}
