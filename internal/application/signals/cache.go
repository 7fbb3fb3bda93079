package signals

import (
	"sync"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// metaTTL es la vida de una entrada de metadata. Los flags de un mercado
// up/down cambian despacio comparado con su vida de 5-15 minutos.
const metaTTL = 60 * time.Second

// metaCache cachea metadata de mercados con TTL. Las resoluciones fallidas
// también se cachean (entrada negativa) para no martillear el CLOB con
// condition IDs que no resuelven.
type metaCache struct {
	mu      sync.Mutex
	entries map[string]metaEntry
	now     func() time.Time
	ttl     time.Duration
}

type metaEntry struct {
	meta     domain.MarketMeta
	negative bool
	storedAt time.Time
}

func newMetaCache(now func() time.Time) *metaCache {
	if now == nil {
		now = time.Now
	}
	return &metaCache{
		entries: make(map[string]metaEntry),
		now:     now,
		ttl:     metaTTL,
	}
}

// get devuelve (meta, negative, hit). Una entrada expirada cuenta como miss
// y se elimina.
func (c *metaCache) get(conditionID string) (domain.MarketMeta, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[conditionID]
	if !ok {
		return domain.MarketMeta{}, false, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, conditionID)
		return domain.MarketMeta{}, false, false
	}
	return e.meta, e.negative, true
}

func (c *metaCache) put(conditionID string, meta domain.MarketMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conditionID] = metaEntry{meta: meta, storedAt: c.now()}
}

func (c *metaCache) putNegative(conditionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conditionID] = metaEntry{negative: true, storedAt: c.now()}
}
