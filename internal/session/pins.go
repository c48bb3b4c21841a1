package session

import "time"

// Pin is a small, high-priority snippet that survives compaction
// until its TTL elapses.
type Pin struct {
	ID        string
	Content   string
	Priority  int
	CreatedAt time.Time
	TTL       *time.Duration
}

// Expired reports whether the pin's TTL has elapsed as of now.
func (p Pin) Expired(now time.Time) bool {
	if p.TTL == nil {
		return false
	}
	return now.After(p.CreatedAt.Add(*p.TTL))
}

// pinStore holds pins under a token budget; fitToBudget leaves
// lower-priority pins out of the rendered set when the budget is
// exceeded (they stay in the store).
type pinStore struct {
	pins        map[string]Pin
	budgetTokens int
}

func newPinStore(budgetTokens int) *pinStore {
	return &pinStore{pins: map[string]Pin{}, budgetTokens: budgetTokens}
}

func (s *pinStore) add(p Pin) {
	s.pins[p.ID] = p
}

func (s *pinStore) remove(id string) {
	delete(s.pins, id)
}

// pruneExpired removes pins whose TTL has elapsed and returns the
// surviving set ordered by descending priority then ascending ID.
func (s *pinStore) pruneExpired(now time.Time) []Pin {
	var alive []Pin
	for id, p := range s.pins {
		if p.Expired(now) {
			delete(s.pins, id)
			continue
		}
		alive = append(alive, p)
	}
	sortPinsByPriority(alive)
	return alive
}

func sortPinsByPriority(pins []Pin) {
	for i := 1; i < len(pins); i++ {
		for j := i; j > 0 && (pins[j].Priority > pins[j-1].Priority ||
			(pins[j].Priority == pins[j-1].Priority && pins[j].ID < pins[j-1].ID)); j-- {
			pins[j], pins[j-1] = pins[j-1], pins[j]
		}
	}
}

// fitToBudget walks a priority-sorted slice in order and keeps each
// pin whose token estimate still fits within budgetTokens, skipping
// any pin that would overflow it (a later, smaller pin can still be
// kept).
func (s *pinStore) fitToBudget(pins []Pin, counter TokenCounter) []Pin {
	if s.budgetTokens <= 0 {
		return pins
	}
	total := 0
	var kept []Pin
	for _, p := range pins {
		cost := counter.Count(p.Content)
		if total+cost > s.budgetTokens {
			continue
		}
		total += cost
		kept = append(kept, p)
	}
	return kept
}
