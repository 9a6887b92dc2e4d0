package model

// Action kinds recorded in the journal and accepted by replay.
const (
	ActionRegisterPool    = "register_pool"
	ActionSubscribe       = "subscribe"
	ActionModifyLiquidity = "modify_liquidity"
	ActionUnsubscribe     = "unsubscribe"
	ActionBurn            = "burn"
	ActionDepositRewards  = "deposit_rewards"
	ActionWhitelistToken  = "whitelist_token"
	ActionCreateIncentive = "create_incentive"
	ActionPoke            = "poke"
	ActionClaim           = "claim"
	ActionClaimAll        = "claim_all"
)

// ActionRecord is one journal line: an externally observed event applied to
// the reward engine during replay. Amounts are decimal strings.
type ActionRecord struct {
	Seq            uint64 `json:"seq"`
	Timestamp      uint64 `json:"timestamp"`
	Kind           string `json:"kind"`
	PoolID         string `json:"pool_id"`
	Caller         string `json:"caller,omitempty"`
	Owner          string `json:"owner,omitempty"`
	Recipient      string `json:"recipient,omitempty"`
	Salt           string `json:"salt,omitempty"`
	TickLower      int32  `json:"tick_lower,omitempty"`
	TickUpper      int32  `json:"tick_upper,omitempty"`
	TickSpacing    int32  `json:"tick_spacing,omitempty"`
	ActiveTick     int32  `json:"active_tick,omitempty"`
	RewardToken    string `json:"reward_token,omitempty"`
	LiquidityDelta string `json:"liquidity_delta,omitempty"`
	Token          string `json:"token,omitempty"`
	Amount         string `json:"amount,omitempty"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	IngestedAt     string `json:"ingested_at,omitempty"`
}

// SwapEventData is the decoded Swap event payload from a followed pool.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

// MintEventData is the decoded Mint event payload.
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// BurnEventData is the decoded Burn event payload.
type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}
