package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/pkg/metrics"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// MemoryDSN opens a private in-memory database.
	MemoryDSN = ":memory:"
)

// SQLiteStore is a Store backed by a SQLite file. All access goes through a
// single connection so transactions never interleave within the process.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts storeOptions
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", dsn(path, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, opts: o}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	if path != MemoryDSN {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// mapConstraint turns constraint failures into sentinel errors.
func mapConstraint(what string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY"):
		return fmt.Errorf("%s: %w", what, ErrDuplicateID)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLiteStore) CreateStudy(ctx context.Context, st model.Study) error {
	defer observe("create_study", time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO studies
		(id, name, mode, k_factor, adaptive_k, min_exposures_per_item, min_total_comparisons, expected_reviewers, allow_continued_voting)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, string(st.Mode), st.KFactor, st.AdaptiveK,
		st.Thresholds.MinExposuresPerItem, st.Thresholds.MinTotalComparisons,
		st.ExpectedReviewers, st.AllowContinuedVoting,
	)
	return mapConstraint("study "+st.ID, err)
}

const studyColumns = "id, name, mode, k_factor, adaptive_k, min_exposures_per_item, min_total_comparisons, expected_reviewers, allow_continued_voting"

func scanStudy(sc interface{ Scan(dest ...any) error }) (model.Study, error) {
	var (
		st   model.Study
		mode string
	)
	err := sc.Scan(&st.ID, &st.Name, &mode, &st.KFactor, &st.AdaptiveK,
		&st.Thresholds.MinExposuresPerItem, &st.Thresholds.MinTotalComparisons,
		&st.ExpectedReviewers, &st.AllowContinuedVoting)
	st.Mode = model.Mode(mode)
	return st, err
}

func (s *SQLiteStore) GetStudy(ctx context.Context, id string) (model.Study, error) {
	defer observe("get_study", time.Now())
	st, err := scanStudy(s.db.QueryRowContext(ctx, "SELECT "+studyColumns+" FROM studies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Study{}, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return st, err
}

func (s *SQLiteStore) ListStudies(ctx context.Context) ([]model.Study, error) {
	defer observe("list_studies", time.Now())
	rows, err := s.db.QueryContext(ctx, "SELECT "+studyColumns+" FROM studies ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, c model.Category) error {
	defer observe("create_category", time.Now())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (id, study_id, name, display_order) VALUES (?, ?, ?, ?)",
		c.ID, c.StudyID, c.Name, c.DisplayOrder)
	return mapConstraint("category "+c.ID, err)
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (model.Category, error) {
	defer observe("get_category", time.Now())
	var c model.Category
	err := s.db.QueryRowContext(ctx,
		"SELECT id, study_id, name, display_order FROM categories WHERE id = ?", id,
	).Scan(&c.ID, &c.StudyID, &c.Name, &c.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *SQLiteStore) ListCategories(ctx context.Context, studyID string) ([]model.Category, error) {
	defer observe("list_categories", time.Now())
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, study_id, name, display_order FROM categories WHERE study_id = ? ORDER BY display_order, id", studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.StudyID, &c.Name, &c.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddItems(ctx context.Context, items ...model.Item) error {
	defer observe("add_items", time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range items {
		it = seedItem(it)
		var rank sql.NullInt64
		if it.ArtistRank != nil {
			rank = sql.NullInt64{Int64: int64(*it.ArtistRank), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO items
			(id, category_id, title, elo_rating, comparison_count, win_count, loss_count, left_count, right_count, artist_rank, artist_elo_boost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.CategoryID, it.Title, it.EloRating, it.ComparisonCount, it.WinCount, it.LossCount,
			it.LeftCount, it.RightCount, rank, it.ArtistEloBoost)
		if err != nil {
			return mapConstraint("item "+it.ID, err)
		}
	}
	return tx.Commit()
}

const itemColumns = "id, category_id, title, elo_rating, comparison_count, win_count, loss_count, left_count, right_count, artist_rank, artist_elo_boost"

func scanItem(sc interface{ Scan(dest ...any) error }) (model.Item, error) {
	var (
		it   model.Item
		rank sql.NullInt64
	)
	if err := sc.Scan(&it.ID, &it.CategoryID, &it.Title, &it.EloRating, &it.ComparisonCount,
		&it.WinCount, &it.LossCount, &it.LeftCount, &it.RightCount, &rank, &it.ArtistEloBoost); err != nil {
		return model.Item{}, err
	}
	if rank.Valid {
		r := int(rank.Int64)
		it.ArtistRank = &r
	}
	return it, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, categoryID string) ([]model.Item, error) {
	defer observe("list_items", time.Now())
	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM items WHERE category_id = ? ORDER BY seq", categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.Session) error {
	defer observe("create_session", time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions
		(id, study_id, participant_id, comparison_count, is_completed, continued_voting, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StudyID, sess.ParticipantID, sess.ComparisonCount, sess.IsCompleted, sess.ContinuedVoting,
		formatTime(sess.CreatedAt))
	return mapConstraint("session "+sess.ID, err)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q queryRower, id string) (model.Session, error) {
	var (
		sess      model.Session
		created   string
		completed sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT id, study_id, participant_id, comparison_count, is_completed, continued_voting, created_at, completed_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.StudyID, &sess.ParticipantID, &sess.ComparisonCount, &sess.IsCompleted,
		&sess.ContinuedVoting, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, err
	}
	sess.CreatedAt = parseTime(created)
	if completed.Valid {
		t := parseTime(completed.String)
		sess.CompletedAt = &t
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	defer observe("get_session", time.Now())
	return getSession(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateSessionState(ctx context.Context, sess model.Session) error {
	defer observe("update_session", time.Now())
	var completed sql.NullString
	if sess.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*sess.CompletedAt), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET is_completed = ?, continued_voting = ?, completed_at = ? WHERE id = ?",
		sess.IsCompleted, sess.ContinuedVoting, completed, sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

const comparisonColumns = "id, vote_id, session_id, category_id, item_a_id, item_b_id, winner_id, left_item_id, right_item_id, response_time_ms, is_flagged, flag_reason, is_test, created_at"

func (s *SQLiteStore) queryComparisons(ctx context.Context, where string, args ...any) ([]model.Comparison, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+comparisonColumns+" FROM comparisons WHERE "+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comparison{}
	for rows.Next() {
		var (
			c                 model.Comparison
			left, right, flag sql.NullString
			rt                sql.NullInt64
			created           string
		)
		if err := rows.Scan(&c.ID, &c.VoteID, &c.SessionID, &c.CategoryID, &c.ItemAID, &c.ItemBID, &c.WinnerID,
			&left, &right, &rt, &c.IsFlagged, &flag, &c.IsTest, &created); err != nil {
			return nil, err
		}
		c.LeftItemID, c.RightItemID, c.FlagReason = left.String, right.String, flag.String
		if rt.Valid {
			v := int(rt.Int64)
			c.ResponseTimeMs = &v
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SessionComparisons(ctx context.Context, sessionID, categoryID string) ([]model.Comparison, error) {
	defer observe("session_comparisons", time.Now())
	if categoryID == "" {
		return s.queryComparisons(ctx, "session_id = ?", sessionID)
	}
	return s.queryComparisons(ctx, "session_id = ? AND category_id = ?", sessionID, categoryID)
}

func (s *SQLiteStore) CategoryComparisons(ctx context.Context, categoryID string) ([]model.Comparison, error) {
	defer observe("category_comparisons", time.Now())
	return s.queryComparisons(ctx, "category_id = ?", categoryID)
}

func (s *SQLiteStore) RecordVote(ctx context.Context, req VoteRequest, rate RateFunc) (VoteResult, error) {
	defer observe("record_vote", time.Now())
	if err := validateRequest(req); err != nil {
		return VoteResult{}, err
	}
	var res VoteResult
	err := retryOnBusy(ctx, func() error {
		var err error
		res, err = s.recordVoteTx(ctx, req, rate)
		return err
	})
	return res, err
}

func (s *SQLiteStore) recordVoteTx(ctx context.Context, req VoteRequest, rate RateFunc) (VoteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return VoteResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := getSession(ctx, tx, req.SessionID)
	if err != nil {
		return VoteResult{}, err
	}
	if !sess.Open() {
		return VoteResult{}, ErrSessionCompleted
	}

	touched := make(map[string]model.Item)
	for _, o := range req.Outcomes {
		for _, id := range []string{o.WinnerID, o.LoserID} {
			if _, ok := touched[id]; ok {
				continue
			}
			it, err := scanItem(tx.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id))
			if errors.Is(err, sql.ErrNoRows) || (err == nil && it.CategoryID != req.CategoryID) {
				return VoteResult{}, fmt.Errorf("item %s: %w", id, ErrItemNotInCategory)
			}
			if err != nil {
				return VoteResult{}, err
			}
			touched[id] = it
		}
	}

	if !req.AllowRepeat {
		for _, o := range req.Outcomes {
			var n int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM comparisons WHERE session_id = ?
				AND ((item_a_id = ? AND item_b_id = ?) OR (item_a_id = ? AND item_b_id = ?))`,
				req.SessionID, o.WinnerID, o.LoserID, o.LoserID, o.WinnerID).Scan(&n)
			if err != nil {
				return VoteResult{}, err
			}
			if n > 0 {
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

	for _, it := range touched {
		if _, err := tx.ExecContext(ctx, `UPDATE items SET elo_rating = ?, comparison_count = ?, win_count = ?,
			loss_count = ?, left_count = ?, right_count = ? WHERE id = ?`,
			it.EloRating, it.ComparisonCount, it.WinCount, it.LossCount, it.LeftCount, it.RightCount, it.ID); err != nil {
			return VoteResult{}, fmt.Errorf("update item %s: %w", it.ID, err)
		}
	}
	for _, c := range res.Comparisons {
		var rt sql.NullInt64
		if c.ResponseTimeMs != nil {
			rt = sql.NullInt64{Int64: int64(*c.ResponseTimeMs), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO comparisons ("+comparisonColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			c.ID, c.VoteID, c.SessionID, c.CategoryID, c.ItemAID, c.ItemBID, c.WinnerID,
			nullString(c.LeftItemID), nullString(c.RightItemID), rt, c.IsFlagged, nullString(c.FlagReason),
			c.IsTest, formatTime(c.CreatedAt)); err != nil {
			return VoteResult{}, mapConstraint("comparison "+c.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET comparison_count = comparison_count + ? WHERE id = ?",
		len(res.Comparisons), req.SessionID); err != nil {
		return VoteResult{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return VoteResult{}, fmt.Errorf("commit vote: %w", err)
	}

	sess.ComparisonCount += len(res.Comparisons)
	res.Session = sess
	return res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	defer observe("stats", time.Now())
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM studies),
		(SELECT COUNT(1) FROM categories),
		(SELECT COUNT(1) FROM items),
		(SELECT COUNT(1) FROM sessions),
		(SELECT COUNT(1) FROM comparisons)`,
	).Scan(&st.Studies, &st.Categories, &st.Items, &st.Sessions, &st.Comparisons)
	return st, err
}
