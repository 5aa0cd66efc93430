package arbitrage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// Revalidator recomputes an opportunity from the current market. It returns
// the recomputed figures when they could be computed, and the reason the
// opportunity is or is not still admissible.
type Revalidator interface {
	Recompute(snapshot domain.Opportunity, now time.Time) (*domain.Opportunity, domain.ValidationReason)
}

// AdmitResult reports what AdmitOrRefresh did.
type AdmitResult struct {
	Opportunity domain.Opportunity
	// First is true when the key had no live entry.
	First bool
	// Expired holds the entry that was replaced because it had passed its
	// deadline without being swept.
	Expired *domain.Opportunity
}

// Registry owns the live opportunities, at most one per key. Callers only
// ever receive copies.
type Registry struct {
	ttl         time.Duration
	revalidator Revalidator
	newID       func() string

	mu    sync.RWMutex
	byKey map[domain.OpportunityKey]*domain.Opportunity
	byID  map[string]domain.OpportunityKey
}

// NewRegistry creates a registry whose entries live for ttl after their last
// admission. newID may be nil, in which case random UUIDs are used.
func NewRegistry(ttl time.Duration, revalidator Revalidator, newID func() string) *Registry {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Registry{
		ttl:         ttl,
		revalidator: revalidator,
		newID:       newID,
		byKey:       make(map[domain.OpportunityKey]*domain.Opportunity),
		byID:        make(map[string]domain.OpportunityKey),
	}
}

// AdmitOrRefresh inserts candidate under its key or refreshes the live entry.
// A refresh overwrites the computed fields and extends ExpiresAt but keeps
// ID and DetectedAt.
func (r *Registry) AdmitOrRefresh(candidate domain.Opportunity, now time.Time) AdmitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res AdmitResult
	key := candidate.Key
	if cur, ok := r.byKey[key]; ok {
		if !cur.Expired(now) {
			refreshed := candidate
			refreshed.ID = cur.ID
			refreshed.DetectedAt = cur.DetectedAt
			refreshed.UpdatedAt = now
			refreshed.ExpiresAt = now.Add(r.ttl)
			refreshed.Refreshes = cur.Refreshes + 1
			*cur = refreshed
			res.Opportunity = refreshed
			return res
		}
		old := *cur
		res.Expired = &old
		r.removeLocked(key)
	}

	opp := candidate
	opp.ID = r.newID()
	opp.DetectedAt = now
	opp.UpdatedAt = now
	opp.ExpiresAt = now.Add(r.ttl)
	opp.Refreshes = 0
	r.byKey[key] = &opp
	r.byID[opp.ID] = key

	res.Opportunity = opp
	res.First = true
	return res
}

// SweepExpired removes every entry with now past its ExpiresAt and returns
// them ordered by deadline.
func (r *Registry) SweepExpired(now time.Time) []domain.Opportunity {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Opportunity
	for key, opp := range r.byKey {
		if opp.Expired(now) {
			out = append(out, *opp)
			r.removeLocked(key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Invalidate removes the entry for key, if any, and returns it.
func (r *Registry) Invalidate(key domain.OpportunityKey) (domain.Opportunity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opp, ok := r.byKey[key]
	if !ok {
		return domain.Opportunity{}, false
	}
	out := *opp
	r.removeLocked(key)
	return out, true
}

func (r *Registry) removeLocked(key domain.OpportunityKey) {
	if opp, ok := r.byKey[key]; ok {
		delete(r.byID, opp.ID)
		delete(r.byKey, key)
	}
}

// Get returns a copy of the entry with the given ID, expired or not.
func (r *Registry) Get(id string) (domain.Opportunity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok {
		return domain.Opportunity{}, false
	}
	return *r.byKey[key], true
}

// Lookup returns a copy of the entry for key, expired or not.
func (r *Registry) Lookup(key domain.OpportunityKey) (domain.Opportunity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opp, ok := r.byKey[key]
	if !ok {
		return domain.Opportunity{}, false
	}
	return *opp, true
}

// Count returns 0 or 1.
func (r *Registry) Count(key domain.OpportunityKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byKey[key]; ok {
		return 1
	}
	return 0
}

// Len returns the number of stored entries, including expired ones that
// have not been swept yet.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// ListLive returns copies of the unexpired entries, least risky first and,
// at equal risk, most profitable first.
func (r *Registry) ListLive(now time.Time) []domain.Opportunity {
	r.mu.RLock()
	out := make([]domain.Opportunity, 0, len(r.byKey))
	for _, opp := range r.byKey {
		if !opp.Expired(now) {
			out = append(out, *opp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.RiskScore.Cmp(b.RiskScore); c != 0 {
			return c < 0
		}
		if c := a.NetProfitPercent.Cmp(b.NetProfitPercent); c != 0 {
			return c > 0
		}
		return a.Key.String() < b.Key.String()
	})
	return out
}

// IsValid reports whether key has an unexpired entry whose quotes still
// produce an admissible opportunity.
func (r *Registry) IsValid(key domain.OpportunityKey, now time.Time) bool {
	opp, ok := r.Lookup(key)
	if !ok {
		return false
	}
	return r.validate(opp, now).Valid
}

// Revalidate checks the entry with the given ID against the current market.
// It must be called immediately before anything acts on a snapshot.
func (r *Registry) Revalidate(id string, now time.Time) domain.ValidationResult {
	opp, ok := r.Get(id)
	if !ok {
		return domain.ValidationResult{Reason: domain.ValidationNotFound}
	}
	return r.validate(opp, now)
}

func (r *Registry) validate(opp domain.Opportunity, now time.Time) domain.ValidationResult {
	res := domain.ValidationResult{Snapshot: &opp}
	if opp.Expired(now) {
		res.Reason = domain.ValidationExpired
		return res
	}
	if r.revalidator == nil {
		res.Valid, res.Reason = true, domain.ValidationOK
		return res
	}
	res.Current, res.Reason = r.revalidator.Recompute(opp, now)
	res.Valid = res.Reason == domain.ValidationOK
	return res
}
