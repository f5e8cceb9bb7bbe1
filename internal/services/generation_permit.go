package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// GenerationPermit decides whether an owner may start another generation run.
type GenerationPermit interface {
	Allow(ownerID uuid.UUID) bool
}

type AllowAllPermit struct{}

func (AllowAllPermit) Allow(uuid.UUID) bool { return true }

type ownerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimitPermit keeps one token bucket per owner. Idle buckets are pruned.
type rateLimitPermit struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	owners    map[uuid.UUID]*ownerLimiter
	lastPrune time.Time
}

// NewGenerationPermit allows perMinute runs per owner with a burst of the same size.
// perMinute <= 0 disables admission control.
func NewGenerationPermit(perMinute int) GenerationPermit {
	if perMinute <= 0 {
		return AllowAllPermit{}
	}
	return newRateLimitPermit(perMinute, time.Now)
}

func newRateLimitPermit(perMinute int, now func() time.Time) *rateLimitPermit {
	return &rateLimitPermit{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		now:     now,
		owners:  make(map[uuid.UUID]*ownerLimiter),
	}
}

func (p *rateLimitPermit) Allow(ownerID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.prune(now)
	ol, ok := p.owners[ownerID]
	if !ok {
		ol = &ownerLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.owners[ownerID] = ol
	}
	ol.lastSeen = now
	return ol.limiter.AllowN(now, 1)
}

func (p *rateLimitPermit) prune(now time.Time) {
	if now.Sub(p.lastPrune) < p.idleTTL {
		return
	}
	p.lastPrune = now
	for id, ol := range p.owners {
		if now.Sub(ol.lastSeen) > p.idleTTL {
			delete(p.owners, id)
		}
	}
}
