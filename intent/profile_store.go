package intent

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/tripmind/tripmind/core"
)

// HistoryEntry records one processed request on a user profile.
type HistoryEntry struct {
	Request    string          `json:"request"`
	IntentType core.IntentType `json:"intent_type"`
	Confidence float64         `json:"confidence"`
	Success    bool            `json:"success"`
	Timestamp  time.Time       `json:"timestamp"`
}

// UserProfile is the per-user state the context analyzer learns over
// time. History entries older than 30 days are pruned on access.
type UserProfile struct {
	UserID             string         `json:"user_id"`
	MBTIType           string         `json:"mbti_type,omitempty"`
	Traits             *TraitProfile  `json:"traits,omitempty"`
	PreferredCuisines  []string       `json:"preferred_cuisines,omitempty"`
	PreferredDistricts []string       `json:"preferred_districts,omitempty"`
	PreferredMealTimes []string       `json:"preferred_meal_times,omitempty"`
	History            []HistoryEntry `json:"history,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// SuccessRate is the fraction of history entries flagged successful.
// Returns 1.0 for an empty history so a new user is not penalized.
func (p *UserProfile) SuccessRate() float64 {
	if len(p.History) == 0 {
		return 1.0
	}
	ok := 0
	for _, h := range p.History {
		if h.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(p.History))
}

// PruneHistory drops entries older than the retention window.
func (p *UserProfile) PruneHistory(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	kept := p.History[:0]
	for _, h := range p.History {
		if h.Timestamp.After(cutoff) {
			kept = append(kept, h)
		}
	}
	p.History = kept
}

// ProfileStore owns user-profile lifecycle. Get returns (nil, nil) when
// the user has no profile yet.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*UserProfile, error)
	Save(ctx context.Context, profile *UserProfile) error
	Delete(ctx context.Context, userID string) error
}

// InMemoryProfileStore keeps profiles in a map with LRU eviction once
// MaxProfiles is exceeded (0 disables the bound).
type InMemoryProfileStore struct {
	mu          sync.Mutex
	maxProfiles int
	profiles    map[string]*list.Element
	order       *list.List // front = most recently used
}

type profileEntry struct {
	userID  string
	profile *UserProfile
}

// DefaultMaxProfiles bounds the in-memory store so a long tail of
// inactive users cannot grow it without limit.
const DefaultMaxProfiles = 10000

// NewInMemoryProfileStore creates an LRU-bounded in-memory store.
func NewInMemoryProfileStore(maxProfiles int) *InMemoryProfileStore {
	if maxProfiles < 0 {
		maxProfiles = DefaultMaxProfiles
	}
	return &InMemoryProfileStore{
		maxProfiles: maxProfiles,
		profiles:    make(map[string]*list.Element),
		order:       list.New(),
	}
}

func (s *InMemoryProfileStore) Get(ctx context.Context, userID string) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	s.order.MoveToFront(elem)
	return elem.Value.(*profileEntry).profile, nil
}

func (s *InMemoryProfileStore) Save(ctx context.Context, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.profiles[profile.UserID]; ok {
		elem.Value.(*profileEntry).profile = profile
		s.order.MoveToFront(elem)
		return nil
	}

	elem := s.order.PushFront(&profileEntry{userID: profile.UserID, profile: profile})
	s.profiles[profile.UserID] = elem

	if s.maxProfiles > 0 && s.order.Len() > s.maxProfiles {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.profiles, oldest.Value.(*profileEntry).userID)
		}
	}
	return nil
}

func (s *InMemoryProfileStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.profiles[userID]; ok {
		s.order.Remove(elem)
		delete(s.profiles, userID)
	}
	return nil
}

// Len returns the number of stored profiles.
func (s *InMemoryProfileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
