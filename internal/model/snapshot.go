package model

import "time"

// PoolRewardState is the persisted per-pool accumulator and pipeline state.
// Fixed-point and token amounts are decimal strings.
type PoolRewardState struct {
	PoolID          string
	RewardToken     string
	TickSpacing     int32
	ActiveTick      int32
	ActiveLiquidity string
	LastSync        uint64
	WindowStart     uint64
	WindowEnd       uint64
	StreamRate      string
	NextStreamRate  string
	QueuedRate      string
	SnapshotAt      time.Time
}

// PositionRow is the persisted per-position accrual record for one token.
type PositionRow struct {
	PositionKey    string
	PoolID         string
	Owner          string
	TickLower      int32
	TickUpper      int32
	Liquidity      string
	Token          string
	SnapshotX128   string
	RewardsAccrued string
	SnapshotAt     time.Time
}

// StreamRow is the persisted state of one incentive stream.
type StreamRow struct {
	PoolID        string
	Token         string
	RatePerSecond string
	Finish        uint64
	Remaining     string
	SnapshotAt    time.Time
}

// ClaimRow records one executed claim payout.
type ClaimRow struct {
	PoolID    string
	Owner     string
	Recipient string
	Token     string
	Amount    string
	Timestamp uint64
	Seq       uint64
}
