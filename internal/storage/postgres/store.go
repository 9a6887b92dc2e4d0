package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rewardScope/internal/model"
)

// Store provides Postgres persistence for reward state snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPoolStates inserts or updates per-pool accumulator and pipeline state.
func (s *Store) UpsertPoolStates(ctx context.Context, states []model.PoolRewardState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range states {
		batch.Queue(`
			INSERT INTO reward_pools (
				pool_id, reward_token, tick_spacing, active_tick, active_liquidity,
				last_sync, window_start, window_end, stream_rate, next_stream_rate,
				queued_rate, snapshot_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				reward_token = EXCLUDED.reward_token,
				tick_spacing = EXCLUDED.tick_spacing,
				active_tick = EXCLUDED.active_tick,
				active_liquidity = EXCLUDED.active_liquidity,
				last_sync = EXCLUDED.last_sync,
				window_start = EXCLUDED.window_start,
				window_end = EXCLUDED.window_end,
				stream_rate = EXCLUDED.stream_rate,
				next_stream_rate = EXCLUDED.next_stream_rate,
				queued_rate = EXCLUDED.queued_rate,
				snapshot_at = EXCLUDED.snapshot_at,
				updated_at = now()
		`,
			st.PoolID,
			st.RewardToken,
			st.TickSpacing,
			st.ActiveTick,
			st.ActiveLiquidity,
			int64(st.LastSync),
			int64(st.WindowStart),
			int64(st.WindowEnd),
			st.StreamRate,
			st.NextStreamRate,
			st.QueuedRate,
			st.SnapshotAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range states {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPositions inserts or updates per-position, per-token accrual rows.
func (s *Store) UpsertPositions(ctx context.Context, rows []model.PositionRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO reward_positions (
				position_key, pool_id, owner, tick_lower, tick_upper, liquidity,
				token, snapshot_x128, rewards_accrued, snapshot_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (position_key, token)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				snapshot_x128 = EXCLUDED.snapshot_x128,
				rewards_accrued = EXCLUDED.rewards_accrued,
				snapshot_at = EXCLUDED.snapshot_at,
				updated_at = now()
		`,
			row.PositionKey,
			row.PoolID,
			row.Owner,
			row.TickLower,
			row.TickUpper,
			row.Liquidity,
			row.Token,
			row.SnapshotX128,
			row.RewardsAccrued,
			row.SnapshotAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertStreams inserts or updates incentive stream rows.
func (s *Store) UpsertStreams(ctx context.Context, rows []model.StreamRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO reward_streams (
				pool_id, token, rate_per_second, finish, remaining, snapshot_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
			ON CONFLICT (pool_id, token)
			DO UPDATE SET
				rate_per_second = EXCLUDED.rate_per_second,
				finish = EXCLUDED.finish,
				remaining = EXCLUDED.remaining,
				snapshot_at = EXCLUDED.snapshot_at,
				updated_at = now()
		`,
			row.PoolID,
			row.Token,
			row.RatePerSecond,
			int64(row.Finish),
			row.Remaining,
			row.SnapshotAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertClaims records executed claim payouts. Replays are deduplicated on
// (seq, token).
func (s *Store) InsertClaims(ctx context.Context, rows []model.ClaimRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO reward_claims (
				pool_id, owner, recipient, token, amount, claimed_at_ts, seq, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,now())
			ON CONFLICT (seq, token) DO NOTHING
		`,
			row.PoolID,
			row.Owner,
			row.Recipient,
			row.Token,
			row.Amount,
			int64(row.Timestamp),
			int64(row.Seq),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_seq for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM rewarder_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts last_processed_seq for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rewarder_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, seq)
	return err
}
