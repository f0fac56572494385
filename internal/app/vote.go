package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/blindpair/internal/adapters/repository"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/progress"
	"github.com/okian/blindpair/internal/domain/rating"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/okian/blindpair/pkg/metrics"
)

// Flag reasons attached to suspicious votes.
const (
	FlagTooFast        = "too_fast"
	FlagPositionStreak = "position_streak"
)

// Vote is a participant's answer to a Match.
type Vote struct {
	// VoteID is the client's idempotency key. A missing id is generated and
	// the vote cannot be deduplicated.
	VoteID     string `json:"vote_id"`
	SessionID  string `json:"session_id"`
	CategoryID string `json:"category_id"`
	WinnerID   string `json:"winner_id"`
	// LoserID, LeftItemID and RightItemID describe a pair vote.
	LoserID     string `json:"loser_id,omitempty"`
	LeftItemID  string `json:"left_item_id,omitempty"`
	RightItemID string `json:"right_item_id,omitempty"`
	// ItemIDs lists the four items of a quad vote, winner included.
	ItemIDs        []string `json:"item_ids,omitempty"`
	ResponseTimeMs *int     `json:"response_time_ms,omitempty"`
	// IsTest marks a host-issued calibration vote. It is not accepted from
	// clients.
	IsTest bool `json:"-"`
}

// VoteReceipt reports what a vote did.
type VoteReceipt struct {
	VoteID      string                   `json:"vote_id"`
	Comparisons []model.Comparison       `json:"comparisons"`
	Flagged     bool                     `json:"flagged"`
	FlagReason  string                   `json:"flag_reason,omitempty"`
	Session     model.Session            `json:"session"`
	Progress    progress.SessionProgress `json:"progress"`
}

// SubmitVote records a vote. The rating update, counter bumps and session
// repeat check run inside one store call.
func (s *Service) SubmitVote(ctx context.Context, v Vote) (VoteReceipt, error) {
	if v.SessionID == "" || v.CategoryID == "" || v.WinnerID == "" {
		metrics.RecordVoteRejected("invalid")
		return VoteReceipt{}, fmt.Errorf("%w: session, category and winner are required", ErrInvalidVote)
	}
	if v.VoteID == "" {
		v.VoteID = s.newID()
	}
	if s.deduper.SeenAndRecord(ctx, v.VoteID) {
		metrics.RecordVoteDuplicate()
		return VoteReceipt{}, ErrDuplicateVote
	}

	receipt, err := s.submit(ctx, v)
	if err != nil {
		// Let the client retry a vote that was not stored.
		s.deduper.Unrecord(ctx, v.VoteID)
		metrics.RecordVoteRejected(rejectReason(err))
		return VoteReceipt{}, err
	}
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, v Vote) (VoteReceipt, error) {
	sess, err := s.store.GetSession(ctx, v.SessionID)
	if err != nil {
		return VoteReceipt{}, err
	}
	if !sess.Open() {
		return VoteReceipt{}, repository.ErrSessionCompleted
	}
	study, err := s.store.GetStudy(ctx, sess.StudyID)
	if err != nil {
		return VoteReceipt{}, err
	}
	cat, err := s.store.GetCategory(ctx, v.CategoryID)
	if err != nil {
		return VoteReceipt{}, err
	}
	if cat.StudyID != study.ID {
		return VoteReceipt{}, fmt.Errorf("category %s: %w", cat.ID, ErrCategoryNotInStudy)
	}

	outcomes, err := outcomesFor(study.Mode, v)
	if err != nil {
		return VoteReceipt{}, err
	}

	req := repository.VoteRequest{
		VoteID:         v.VoteID,
		SessionID:      sess.ID,
		CategoryID:     cat.ID,
		Outcomes:       outcomes,
		ResponseTimeMs: v.ResponseTimeMs,
		IsTest:         v.IsTest,
		AllowRepeat:    study.Mode == model.ModeQuad,
		CreatedAt:      s.now().UTC(),
	}
	if reason, err := s.fraudCheck(ctx, study.Mode, v); err != nil {
		return VoteReceipt{}, err
	} else if reason != "" {
		req.IsFlagged, req.FlagReason = true, reason
	}

	engine := rating.NewEngine(rating.WithKFactor(study.KFactor), rating.WithAdaptiveK(study.AdaptiveK))
	res, err := s.store.RecordVote(ctx, req, func(w, l model.Item) rating.Change {
		return engine.Rate(w.EloRating, w.ComparisonCount, l.EloRating, l.ComparisonCount)
	})
	if err != nil {
		return VoteReceipt{}, fmt.Errorf("record vote: %w", err)
	}

	metrics.RecordVote(string(study.Mode))
	metrics.RecordComparisonsCreated(len(res.Comparisons))
	if req.IsFlagged {
		metrics.RecordVoteFlagged(req.FlagReason)
		s.logger.Warn(ctx, "vote flagged",
			logger.String("vote", v.VoteID),
			logger.String("session", sess.ID),
			logger.String("reason", req.FlagReason),
		)
	}

	receipt := VoteReceipt{
		VoteID:      v.VoteID,
		Comparisons: res.Comparisons,
		Flagged:     req.IsFlagged,
		FlagReason:  req.FlagReason,
		Session:     res.Session,
	}

	sn, err := s.load(ctx, sess.ID)
	if err != nil {
		// The vote is stored; progress is recomputed on the next read.
		s.logger.Error(ctx, "reload after vote failed", logger.Error(err))
		return receipt, nil
	}
	sp := s.orchestrator.Session(sn.study, sn.session, sn.inputs)
	for _, cp := range sp.Categories {
		if cp.CategoryID != cat.ID || !cp.Complete {
			continue
		}
		if cp.Threshold != nil {
			metrics.UpdateCategoryPublishable(cat.ID, cp.Threshold.Publishable())
		}
		s.enqueueAnalysis(ctx, cat.ID, "category_complete")
	}
	if sp.Complete {
		s.complete(ctx, sn.session)
		if updated, err := s.store.GetSession(ctx, sess.ID); err == nil {
			receipt.Session = updated
		}
	}
	receipt.Progress = sp
	return receipt, nil
}

// outcomesFor expands a vote into decided pairs. A quad winner beats each of
// the other three shown items.
func outcomesFor(mode model.Mode, v Vote) ([]repository.Outcome, error) {
	switch mode {
	case model.ModeQuad:
		if len(v.ItemIDs) != 4 {
			return nil, fmt.Errorf("%w: quad vote needs 4 items", ErrInvalidVote)
		}
		seen := make(map[string]struct{}, 4)
		hasWinner := false
		out := make([]repository.Outcome, 0, 3)
		for _, id := range v.ItemIDs {
			if _, dup := seen[id]; dup || id == "" {
				return nil, fmt.Errorf("%w: quad items must be distinct", ErrInvalidVote)
			}
			seen[id] = struct{}{}
			if id == v.WinnerID {
				hasWinner = true
				continue
			}
			out = append(out, repository.Outcome{WinnerID: v.WinnerID, LoserID: id})
		}
		if !hasWinner {
			return nil, fmt.Errorf("%w: winner not among quad items", ErrInvalidVote)
		}
		return out, nil
	default:
		if v.LoserID == "" || v.LoserID == v.WinnerID {
			return nil, fmt.Errorf("%w: pair vote needs a distinct loser", ErrInvalidVote)
		}
		if v.LeftItemID != "" || v.RightItemID != "" {
			if model.NewPairKey(v.LeftItemID, v.RightItemID) != model.NewPairKey(v.WinnerID, v.LoserID) {
				return nil, fmt.Errorf("%w: positions do not match the pair", ErrInvalidVote)
			}
		}
		return []repository.Outcome{{
			WinnerID:    v.WinnerID,
			LoserID:     v.LoserID,
			LeftItemID:  v.LeftItemID,
			RightItemID: v.RightItemID,
		}}, nil
	}
}

// fraudCheck returns the flag reason for a suspicious vote, or "".
func (s *Service) fraudCheck(ctx context.Context, mode model.Mode, v Vote) (string, error) {
	if v.ResponseTimeMs != nil && s.minResponseTime > 0 &&
		time.Duration(*v.ResponseTimeMs)*time.Millisecond < s.minResponseTime {
		return FlagTooFast, nil
	}
	if mode != model.ModePair || s.positionStreakLimit < 2 || v.LeftItemID == "" {
		return "", nil
	}

	side := pickedSide(v.WinnerID, v.LeftItemID, v.RightItemID)
	history, err := s.store.SessionComparisons(ctx, v.SessionID, "")
	if err != nil {
		return "", fmt.Errorf("session comparisons: %w", err)
	}
	streak := 1
	for i := len(history) - 1; i >= 0 && streak < s.positionStreakLimit; i-- {
		c := history[i]
		if pickedSide(c.WinnerID, c.LeftItemID, c.RightItemID) != side {
			break
		}
		streak++
	}
	if streak >= s.positionStreakLimit {
		return FlagPositionStreak, nil
	}
	return "", nil
}

func pickedSide(winner, left, right string) string {
	switch winner {
	case "":
		return ""
	case left:
		return "left"
	case right:
		return "right"
	}
	return ""
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidVote), errors.Is(err, repository.ErrInvalidVote):
		return "invalid"
	case errors.Is(err, repository.ErrSessionCompleted):
		return "session_completed"
	case errors.Is(err, repository.ErrAlreadyCompared):
		return "already_compared"
	case errors.Is(err, repository.ErrItemNotInCategory), errors.Is(err, ErrCategoryNotInStudy):
		return "foreign_item"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	}
	return "internal"
}
