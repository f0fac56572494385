package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/blindpair/internal/domain/model"
)

// MemoryStore is a Store held in process memory. A single mutex makes
// RecordVote atomic.
type MemoryStore struct {
	opts storeOptions

	mu          sync.RWMutex
	studies     map[string]model.Study
	categories  map[string]model.Category
	items       map[string]model.Item
	itemOrder   map[string][]string // category -> item ids in insertion order
	sessions    map[string]model.Session
	comparisons []model.Comparison
	bySession   map[string][]int
	byCategory  map[string][]int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:       o,
		studies:    make(map[string]model.Study),
		categories: make(map[string]model.Category),
		items:      make(map[string]model.Item),
		itemOrder:  make(map[string][]string),
		sessions:   make(map[string]model.Session),
		bySession:  make(map[string][]int),
		byCategory: make(map[string][]int),
	}
}

func (s *MemoryStore) CreateStudy(_ context.Context, st model.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[st.ID]; ok {
		return fmt.Errorf("study %s: %w", st.ID, ErrDuplicateID)
	}
	s.studies[st.ID] = st
	return nil
}

func (s *MemoryStore) GetStudy(_ context.Context, id string) (model.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studies[id]
	if !ok {
		return model.Study{}, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return st, nil
}

func (s *MemoryStore) ListStudies(_ context.Context) ([]model.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Study, 0, len(s.studies))
	for _, st := range s.studies {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, c model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[c.StudyID]; !ok {
		return fmt.Errorf("study %s: %w", c.StudyID, ErrNotFound)
	}
	if _, ok := s.categories[c.ID]; ok {
		return fmt.Errorf("category %s: %w", c.ID, ErrDuplicateID)
	}
	s.categories[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCategory(_ context.Context, id string) (model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return model.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) ListCategories(_ context.Context, studyID string) ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Category
	for _, c := range s.categories {
		if c.StudyID == studyID {
			out = append(out, c)
		}
	}
	model.SortCategories(out)
	return out, nil
}

func (s *MemoryStore) AddItems(_ context.Context, items ...model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, ok := s.categories[it.CategoryID]; !ok {
			return fmt.Errorf("category %s: %w", it.CategoryID, ErrNotFound)
		}
		if _, ok := s.items[it.ID]; ok {
			return fmt.Errorf("item %s: %w", it.ID, ErrDuplicateID)
		}
	}
	for _, it := range items {
		s.items[it.ID] = seedItem(it)
		s.itemOrder[it.CategoryID] = append(s.itemOrder[it.CategoryID], it.ID)
	}
	return nil
}

func (s *MemoryStore) ListItems(_ context.Context, categoryID string) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.itemOrder[categoryID]
	out := make([]model.Item, len(ids))
	for i, id := range ids {
		out[i] = s.items[id]
	}
	return out, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[sess.StudyID]; !ok {
		return fmt.Errorf("study %s: %w", sess.StudyID, ErrNotFound)
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s: %w", sess.ID, ErrDuplicateID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

func (s *MemoryStore) UpdateSessionState(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	cur.IsCompleted = sess.IsCompleted
	cur.ContinuedVoting = sess.ContinuedVoting
	cur.CompletedAt = sess.CompletedAt
	s.sessions[sess.ID] = cur
	return nil
}

func (s *MemoryStore) SessionComparisons(_ context.Context, sessionID, categoryID string) ([]model.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.bySession[sessionID], categoryID), nil
}

func (s *MemoryStore) CategoryComparisons(_ context.Context, categoryID string) ([]model.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byCategory[categoryID], ""), nil
}

func (s *MemoryStore) collect(idx []int, categoryID string) []model.Comparison {
	out := make([]model.Comparison, 0, len(idx))
	for _, i := range idx {
		c := s.comparisons[i]
		if categoryID == "" || c.CategoryID == categoryID {
			out = append(out, c)
		}
	}
	return out
}

func (s *MemoryStore) RecordVote(_ context.Context, req VoteRequest, rate RateFunc) (VoteResult, error) {
	if err := validateRequest(req); err != nil {
		return VoteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[req.SessionID]
	if !ok {
		return VoteResult{}, fmt.Errorf("session %s: %w", req.SessionID, ErrNotFound)
	}
	if !sess.Open() {
		return VoteResult{}, ErrSessionCompleted
	}

	touched := make(map[string]model.Item)
	for _, o := range req.Outcomes {
		for _, id := range []string{o.WinnerID, o.LoserID} {
			it, ok := s.items[id]
			if !ok || it.CategoryID != req.CategoryID {
				return VoteResult{}, fmt.Errorf("item %s: %w", id, ErrItemNotInCategory)
			}
			touched[id] = it
		}
	}

	if !req.AllowRepeat {
		compared := make(map[model.PairKey]struct{})
		for _, i := range s.bySession[req.SessionID] {
			compared[s.comparisons[i].Key()] = struct{}{}
		}
		for _, o := range req.Outcomes {
			if _, dup := compared[model.NewPairKey(o.WinnerID, o.LoserID)]; dup {
				return VoteResult{}, ErrAlreadyCompared
			}
		}
	}

	res := VoteResult{Items: touched}
	for _, o := range req.Outcomes {
		c := applyOutcome(touched, req, o, rate)
		c.ID = s.opts.newID()
		res.Comparisons = append(res.Comparisons, c)
	}

	for id, it := range touched {
		s.items[id] = it
	}
	for _, c := range res.Comparisons {
		s.comparisons = append(s.comparisons, c)
		i := len(s.comparisons) - 1
		s.bySession[c.SessionID] = append(s.bySession[c.SessionID], i)
		s.byCategory[c.CategoryID] = append(s.byCategory[c.CategoryID], i)
	}
	sess.ComparisonCount += len(res.Comparisons)
	s.sessions[sess.ID] = sess
	res.Session = sess
	return res, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Studies:     len(s.studies),
		Categories:  len(s.categories),
		Items:       len(s.items),
		Sessions:    len(s.sessions),
		Comparisons: len(s.comparisons),
	}, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
