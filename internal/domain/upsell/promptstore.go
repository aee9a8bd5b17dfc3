package upsell

import "sync"

// PromptStore holds at most one pending prompt per user. It is explicit
// process-scoped state with a defined lifecycle: staged when a friction
// point is hit, cleared when consumed or when the user upgrades. It is
// injected into consumers, never reached as an ambient global.
type PromptStore struct {
	mu      sync.Mutex
	pending map[string]Prompt
}

// NewPromptStore creates an empty prompt store
func NewPromptStore() *PromptStore {
	return &PromptStore{pending: make(map[string]Prompt)}
}

// Put stages the pending prompt for a user, replacing any previous one
func (s *PromptStore) Put(userID string, p Prompt) {
	s.mu.Lock()
	s.pending[userID] = p
	s.mu.Unlock()
}

// Take consumes and removes the pending prompt for a user
func (s *PromptStore) Take(userID string) (Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if ok {
		delete(s.pending, userID)
	}
	return p, ok
}

// Clear drops the pending prompt for a user, e.g. after a Prime upgrade
func (s *PromptStore) Clear(userID string) {
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
}
