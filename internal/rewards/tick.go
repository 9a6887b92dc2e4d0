package rewards

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TickInfo carries the liquidity bookkeeping and per-token outside snapshots
// for one initialized tick boundary.
type TickInfo struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int

	// RewardsOutsideX128 is the per-token snapshot of the global accumulator
	// taken the last time this tick was crossed. Tokens absent from the map
	// have an outside value of zero.
	RewardsOutsideX128 map[common.Address]*big.Int
}

func newTickInfo() *TickInfo {
	return &TickInfo{
		LiquidityGross:     new(big.Int),
		LiquidityNet:       new(big.Int),
		RewardsOutsideX128: make(map[common.Address]*big.Int),
	}
}

func (t *TickInfo) outside(token common.Address) *big.Int {
	if v, ok := t.RewardsOutsideX128[token]; ok {
		return v
	}
	return new(big.Int)
}

// cross flips every outside snapshot against the current global values:
// outside' = cumulative - outside. Tokens tracked globally but never snapshot
// on this tick flip from zero.
func (t *TickInfo) cross(cumulative map[common.Address]*big.Int) {
	for token, cum := range cumulative {
		out := t.outside(token)
		t.RewardsOutsideX128[token] = new(big.Int).Sub(cum, out)
	}
}
