package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/blindpair/internal/domain/matchmaking"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/progress"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/okian/blindpair/pkg/metrics"
)

// SessionView is a session together with its evaluated progress.
type SessionView struct {
	Session  model.Session            `json:"session"`
	Mode     model.Mode               `json:"mode"`
	Progress progress.SessionProgress `json:"progress"`
}

// Match is what a participant should judge next.
type Match struct {
	SessionID  string           `json:"session_id"`
	CategoryID string           `json:"category_id"`
	Mode       model.Mode       `json:"mode"`
	Pair       *model.MatchPair `json:"pair,omitempty"`
	Quad       *model.MatchQuad `json:"quad,omitempty"`
	Items      []model.Item     `json:"items"`
}

// snapshot is everything progress and selection need for one session.
type snapshot struct {
	study   model.Study
	session model.Session
	inputs  []progress.CategoryInput
}

func (sn snapshot) input(categoryID string) (progress.CategoryInput, bool) {
	for _, in := range sn.inputs {
		if in.Category.ID == categoryID {
			return in, true
		}
	}
	return progress.CategoryInput{}, false
}

func (s *Service) load(ctx context.Context, sessionID string) (snapshot, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return snapshot{}, err
	}
	study, err := s.store.GetStudy(ctx, sess.StudyID)
	if err != nil {
		return snapshot{}, err
	}
	cats, err := s.store.ListCategories(ctx, study.ID)
	if err != nil {
		return snapshot{}, fmt.Errorf("list categories: %w", err)
	}
	own, err := s.store.SessionComparisons(ctx, sess.ID, "")
	if err != nil {
		return snapshot{}, fmt.Errorf("session comparisons: %w", err)
	}
	byCategory := make(map[string][]model.Comparison, len(cats))
	for _, c := range own {
		byCategory[c.CategoryID] = append(byCategory[c.CategoryID], c)
	}

	sn := snapshot{study: study, session: sess, inputs: make([]progress.CategoryInput, 0, len(cats))}
	for _, cat := range cats {
		items, err := s.store.ListItems(ctx, cat.ID)
		if err != nil {
			return snapshot{}, fmt.Errorf("list items %s: %w", cat.ID, err)
		}
		global, err := s.store.CategoryComparisons(ctx, cat.ID)
		if err != nil {
			return snapshot{}, fmt.Errorf("category comparisons %s: %w", cat.ID, err)
		}
		sn.inputs = append(sn.inputs, progress.CategoryInput{
			Category: cat,
			Items:    items,
			Session:  byCategory[cat.ID],
			Global:   global,
		})
	}
	return sn, nil
}

// CreateSession starts a participant's run through a study.
func (s *Service) CreateSession(ctx context.Context, studyID, participantID string) (model.Session, error) {
	study, err := s.store.GetStudy(ctx, studyID)
	if err != nil {
		return model.Session{}, err
	}
	cats, err := s.store.ListCategories(ctx, study.ID)
	if err != nil {
		return model.Session{}, err
	}
	if len(cats) == 0 {
		return model.Session{}, fmt.Errorf("study %s: %w", study.ID, ErrNoCategories)
	}

	sess := model.Session{
		ID:            s.newID(),
		StudyID:       study.ID,
		ParticipantID: participantID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	metrics.RecordSessionStarted()
	s.logger.Info(ctx, "session started",
		logger.String("session", sess.ID),
		logger.String("study", study.ID),
	)
	return sess, nil
}

// GetSession returns the session and its current progress.
func (s *Service) GetSession(ctx context.Context, sessionID string) (SessionView, error) {
	sn, err := s.load(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{
		Session:  sn.session,
		Mode:     sn.study.Mode,
		Progress: s.orchestrator.Session(sn.study, sn.session, sn.inputs),
	}, nil
}

// ContinueSession opts a session into voting past its targets until every
// category meets the publishable threshold.
func (s *Service) ContinueSession(ctx context.Context, sessionID string) (SessionView, error) {
	sn, err := s.load(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if !sn.study.AllowContinuedVoting {
		return SessionView{}, ErrContinueNotAllowed
	}

	sn.session.ContinuedVoting = true
	sp := s.orchestrator.Session(sn.study, sn.session, sn.inputs)
	if sp.Complete {
		// Nothing left that continued voting could improve.
		return SessionView{}, ErrContinueNotAllowed
	}
	if err := s.store.UpdateSessionState(ctx, sn.session); err != nil {
		return SessionView{}, err
	}
	s.logger.Info(ctx, "session continued", logger.String("session", sessionID), logger.String("category", sp.Current))
	return SessionView{Session: sn.session, Mode: sn.study.Mode, Progress: sp}, nil
}

// NextMatch selects what the participant should judge next. It returns nil
// when the session has nothing left to show, including once it is closed.
func (s *Service) NextMatch(ctx context.Context, sessionID string) (*Match, error) {
	sn, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sn.session.Open() {
		return nil, nil
	}

	sp := s.orchestrator.Session(sn.study, sn.session, sn.inputs)
	if sp.Complete {
		s.complete(ctx, sn.session)
		return nil, nil
	}

	// Progress names the current category; later incomplete ones are the
	// fallback if its pool turns out to be exhausted.
	candidates := []string{sp.Current}
	for _, cp := range sp.Categories {
		if !cp.Complete && cp.CategoryID != sp.Current {
			candidates = append(candidates, cp.CategoryID)
		}
	}
	for _, id := range candidates {
		in, _ := sn.input(id)
		m, err := s.selectIn(sn.study.Mode, in)
		if err != nil {
			return nil, err
		}
		if m != nil {
			m.SessionID = sn.session.ID
			return m, nil
		}
	}
	return nil, nil
}

func (s *Service) selectIn(mode model.Mode, in progress.CategoryInput) (*Match, error) {
	snap := matchmakingSnapshot(in)
	start := time.Now()
	defer func() {
		metrics.RecordMatchmakingLatency(string(mode), float64(time.Since(start).Microseconds())/1000)
	}()

	m := &Match{CategoryID: in.Category.ID, Mode: mode}
	var shown []string
	switch mode {
	case model.ModeQuad:
		q, err := s.matcher.NextQuad(snap)
		if err != nil || q == nil {
			return nil, quietExhausted(err)
		}
		m.Quad = q
		shown = q.Positions
		metrics.RecordSelection(string(mode), string(q.Phase))
	default:
		p, err := s.matcher.NextPair(snap)
		if err != nil || p == nil {
			return nil, quietExhausted(err)
		}
		m.Pair = p
		shown = []string{p.LeftItemID, p.RightItemID}
		metrics.RecordSelection(string(mode), string(p.Phase))
	}

	byID := make(map[string]model.Item, len(in.Items))
	for _, it := range in.Items {
		byID[it.ID] = it
	}
	for _, id := range shown {
		m.Items = append(m.Items, byID[id])
	}
	return m, nil
}

func matchmakingSnapshot(in progress.CategoryInput) matchmaking.Snapshot {
	return matchmaking.Snapshot{
		CategoryID: in.Category.ID,
		Items:      in.Items,
		Session:    in.Session,
		Global:     in.Global,
	}
}

// quietExhausted folds "nothing to select" into a nil error so the caller can
// move to the next category.
func quietExhausted(err error) error {
	if err == nil || errors.Is(err, matchmaking.ErrInsufficientItems) {
		metrics.RecordCategoryExhausted()
		return nil
	}
	return err
}

// complete marks the session terminal. A continued session also drops its
// continued flag once nothing is left to improve.
func (s *Service) complete(ctx context.Context, sess model.Session) {
	if sess.IsCompleted && !sess.ContinuedVoting {
		return
	}
	firstTime := !sess.IsCompleted
	sess.IsCompleted = true
	sess.ContinuedVoting = false
	if sess.CompletedAt == nil {
		now := s.now().UTC()
		sess.CompletedAt = &now
	}
	if err := s.store.UpdateSessionState(ctx, sess); err != nil {
		s.logger.Error(ctx, "failed to mark session complete", logger.String("session", sess.ID), logger.Error(err))
		return
	}
	if firstTime {
		metrics.RecordSessionCompleted()
		s.logger.Info(ctx, "session completed", logger.String("session", sess.ID))
	}
}
