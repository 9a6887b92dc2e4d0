package model

// StatusResponse reports engine progress.
type StatusResponse struct {
	Pools      int    `json:"pools"`
	Positions  int    `json:"positions"`
	LastSeq    uint64 `json:"last_seq"`
	LastAction uint64 `json:"last_action_ts"`
}

// PoolRewardsResponse reports one pool's reward pipeline state.
type PoolRewardsResponse struct {
	PoolID          string            `json:"pool_id"`
	RewardToken     string            `json:"reward_token"`
	ActiveTick      int32             `json:"active_tick"`
	ActiveLiquidity string            `json:"active_liquidity"`
	LastSync        uint64            `json:"last_sync"`
	WindowStart     uint64            `json:"window_start"`
	WindowEnd       uint64            `json:"window_end"`
	StreamRate      string            `json:"stream_rate"`
	NextStreamRate  string            `json:"next_stream_rate"`
	QueuedRate      string            `json:"queued_rate"`
	Buckets         map[uint64]string `json:"scheduled_buckets,omitempty"`
}

// StreamResponse reports one incentive stream.
type StreamResponse struct {
	Token         string `json:"token"`
	RatePerSecond string `json:"rate_per_second"`
	Finish        uint64 `json:"finish"`
	Remaining     string `json:"remaining"`
}

// PendingResponse reports an owner's pending rewards across positions.
type PendingResponse struct {
	Owner   string                       `json:"owner"`
	Pending map[string]map[string]string `json:"pending"` // pool -> token -> amount
}
