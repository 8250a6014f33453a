package market

import "sync"

// Registry tracks which participants have registered interest in a market.
// It implements domain.Eligibility: unregistered participants' orders are
// rejected with NotEligible.
type Registry struct {
	mu         sync.RWMutex
	registered map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{registered: make(map[string]bool)}
}

// Register records a participant's interest. Registration must happen before
// the first round the participant wishes to trade in.
func (r *Registry) Register(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[participantID] = true
}

// Unregister removes a participant.
func (r *Registry) Unregister(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, participantID)
}

// IsEligible implements domain.Eligibility.
func (r *Registry) IsEligible(participantID, _ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered[participantID]
}

// Participants returns the registered participant IDs.
func (r *Registry) Participants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.registered))
	for id := range r.registered {
		out = append(out, id)
	}
	return out
}
