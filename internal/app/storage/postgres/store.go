// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math/big"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. The caller
// owns the database handle; run Apply before first use.
type Store struct {
	db *sql.DB
}

var _ storage.FeedStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- FeedStore --------------------------------------------------------------

func (s *Store) CreateFeed(ctx context.Context, f feed.Feed) (feed.Feed, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (id, decimals, description, enabled)
		VALUES ($1, $2, $3, $4)
	`, f.ID, int16(f.Decimals), f.Description, f.Enabled)
	if err != nil {
		if isUniqueViolation(err) {
			return feed.Feed{}, feed.ErrAlreadyRegistered
		}
		return feed.Feed{}, err
	}
	return f, nil
}

func (s *Store) SetFeedEnabled(ctx context.Context, id string, enabled bool) (feed.Feed, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET enabled = $2 WHERE id = $1
	`, id, enabled)
	if err != nil {
		return feed.Feed{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return feed.Feed{}, feed.ErrFeedNotFound
	}
	return s.GetFeed(ctx, id)
}

const feedColumns = `id, decimals, description, enabled, total_updates,
	last_update_block, last_update_timestamp,
	latest_round_id, latest_answer, latest_started_at, latest_updated_at, latest_answered_in`

func (s *Store) GetFeed(ctx context.Context, id string) (feed.Feed, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+` FROM feeds WHERE id = $1
	`, id)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Feed{}, feed.ErrFeedNotFound
	}
	return f, err
}

func (s *Store) ListFeeds(ctx context.Context) ([]feed.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+feedColumns+` FROM feeds ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) CountFeeds(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&count)
	return count, err
}

func (s *Store) CommitRound(ctx context.Context, commit storage.RoundCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if commit.Register {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feeds (id, decimals, description, enabled)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (id) DO NOTHING
		`, commit.FeedID, int16(commit.Decimals), commit.Description)
		if err != nil {
			return err
		}
	}

	round := commit.Round
	res, err := tx.ExecContext(ctx, `
		UPDATE feeds SET
			total_updates = total_updates + 1,
			last_update_block = $2,
			last_update_timestamp = $3,
			latest_round_id = $4,
			latest_answer = $5,
			latest_started_at = $6,
			latest_updated_at = $7,
			latest_answered_in = $8
		WHERE id = $1
	`, commit.FeedID, int64(commit.Block), int64(commit.Timestamp),
		numeric(round.RoundID), numeric(round.Answer),
		int64(round.StartedAt), int64(round.UpdatedAt), numeric(round.AnsweredInRound))
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return feed.ErrFeedNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feed_rounds (row_id, feed_id, round_id, answer, started_at, updated_at, answered_in_round)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), commit.FeedID, numeric(round.RoundID), numeric(round.Answer),
		int64(round.StartedAt), int64(round.UpdatedAt), numeric(round.AnsweredInRound))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE registry_globals SET total_updates = total_updates + 1 WHERE id = 1
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) RoundAt(ctx context.Context, id string, roundID *big.Int) (feed.Round, error) {
	if _, err := s.GetFeed(ctx, id); err != nil {
		return feed.Round{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT round_id, answer, started_at, updated_at, answered_in_round
		FROM feed_rounds WHERE feed_id = $1 AND round_id = $2
	`, id, numeric(roundID))

	var (
		rid, answer, answeredIn string
		startedAt, updatedAt    int64
	)
	err := row.Scan(&rid, &answer, &startedAt, &updatedAt, &answeredIn)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Round{}, feed.ErrRoundNotFound
	}
	if err != nil {
		return feed.Round{}, err
	}
	return feed.Round{
		RoundID:         mustBig(rid),
		Answer:          mustBig(answer),
		StartedAt:       uint64(startedAt),
		UpdatedAt:       uint64(updatedAt),
		AnsweredInRound: mustBig(answeredIn),
	}, nil
}

func (s *Store) TotalGlobalUpdates(ctx context.Context) (uint64, error) {
	var total uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_updates FROM registry_globals WHERE id = 1
	`).Scan(&total)
	return total, err
}

// --- TreasuryStore ----------------------------------------------------------

func (s *Store) TreasuryBalance(ctx context.Context) (uint64, error) {
	var balance uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT treasury_balance FROM registry_globals WHERE id = 1
	`).Scan(&balance)
	return balance, err
}

func (s *Store) TreasuryDeposit(ctx context.Context, amount uint64) (uint64, error) {
	var balance uint64
	err := s.db.QueryRowContext(ctx, `
		UPDATE registry_globals SET treasury_balance = treasury_balance + $1
		WHERE id = 1 RETURNING treasury_balance
	`, int64(amount)).Scan(&balance)
	return balance, err
}

func (s *Store) TreasuryWithdraw(ctx context.Context, amount uint64) (uint64, uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var balance uint64
	if err := tx.QueryRowContext(ctx, `
		SELECT treasury_balance FROM registry_globals WHERE id = 1 FOR UPDATE
	`).Scan(&balance); err != nil {
		return 0, 0, err
	}
	if balance == 0 || amount > balance {
		return 0, balance, feed.ErrNoFunds
	}
	if amount == 0 {
		amount = balance
	}
	remaining := balance - amount
	if _, err := tx.ExecContext(ctx, `
		UPDATE registry_globals SET treasury_balance = $1 WHERE id = 1
	`, int64(remaining)); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return amount, remaining, nil
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (feed.Feed, error) {
	var (
		f                            feed.Feed
		decimals                     int16
		block, ts                    int64
		roundID, answer, answeredIn  sql.NullString
		latestStarted, latestUpdated sql.NullInt64
	)
	err := row.Scan(&f.ID, &decimals, &f.Description, &f.Enabled, &f.TotalUpdates,
		&block, &ts, &roundID, &answer, &latestStarted, &latestUpdated, &answeredIn)
	if err != nil {
		return feed.Feed{}, err
	}
	f.Decimals = uint8(decimals)
	f.LastUpdateBlock = uint64(block)
	f.LastUpdateTimestamp = uint64(ts)

	if roundID.Valid {
		f.Latest = &feed.Round{
			RoundID:         mustBig(roundID.String),
			Answer:          mustBig(answer.String),
			StartedAt:       uint64(latestStarted.Int64),
			UpdatedAt:       uint64(latestUpdated.Int64),
			AnsweredInRound: mustBig(answeredIn.String),
		}
	}
	return f, nil
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
