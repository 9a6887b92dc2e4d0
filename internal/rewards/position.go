package rewards

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"rewardScope/internal/model"
)

// Position is the per-range accrual record of one owner. Created on the
// first liquidity deposit into a range, pruned once liquidity is zero and
// every accrued balance has been claimed.
type Position struct {
	Key       model.PositionKey
	Pool      model.PoolID
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Liquidity *big.Int

	// SnapshotX128 is the last observed range value per token; Accrued is
	// the claimable balance per token.
	SnapshotX128 map[common.Address]*big.Int
	Accrued      map[common.Address]*big.Int
}

func newPosition(key model.PositionKey, pool model.PoolID, owner common.Address, tickLower, tickUpper int32) *Position {
	return &Position{
		Key:          key,
		Pool:         pool,
		Owner:        owner,
		TickLower:    tickLower,
		TickUpper:    tickUpper,
		Liquidity:    new(big.Int),
		SnapshotX128: make(map[common.Address]*big.Int),
		Accrued:      make(map[common.Address]*big.Int),
	}
}

// Accrue folds the growth since the last snapshot into the claimable balance
// and advances the snapshot. Callers must pass a range value freshly derived
// from the synced pool state; a stale value silently under-accrues.
func (p *Position) Accrue(token common.Address, rangeValueX128 *big.Int) error {
	snapshot, ok := p.SnapshotX128[token]
	if !ok {
		snapshot = new(big.Int)
	}
	delta := new(big.Int).Sub(rangeValueX128, snapshot)
	if delta.Sign() < 0 {
		return fmt.Errorf("%w: token %s", ErrAccrualRegression, token.Hex())
	}

	if delta.Sign() > 0 && p.Liquidity.Sign() > 0 {
		owed := delta.Mul(delta, p.Liquidity)
		owed.Div(owed, Q128)
		acc, ok := p.Accrued[token]
		if !ok {
			acc = new(big.Int)
			p.Accrued[token] = acc
		}
		acc.Add(acc, owed)
	}
	p.SnapshotX128[token] = new(big.Int).Set(rangeValueX128)
	return nil
}

// Claim returns and zeroes the accrued balance for a token. The snapshot is
// untouched; transferring the returned amount is the caller's concern.
func (p *Position) Claim(token common.Address) *big.Int {
	acc, ok := p.Accrued[token]
	if !ok || acc.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Set(acc)
	acc.SetInt64(0)
	return out
}

// Pending computes accrued plus unfolded growth against the given range
// value, without mutating the position. At zero liquidity only the accrued
// balance remains claimable, and the stale snapshot is ignored: once the
// boundary ticks are deleted and the price leaves the old range, the range
// value can legitimately fall below it.
func (p *Position) Pending(token common.Address, rangeValueX128 *big.Int) (*big.Int, error) {
	pending := new(big.Int)
	if acc, ok := p.Accrued[token]; ok {
		pending.Set(acc)
	}
	if p.Liquidity.Sign() == 0 {
		return pending, nil
	}

	snapshot, ok := p.SnapshotX128[token]
	if !ok {
		snapshot = new(big.Int)
	}
	delta := new(big.Int).Sub(rangeValueX128, snapshot)
	if delta.Sign() < 0 {
		return nil, fmt.Errorf("%w: token %s", ErrAccrualRegression, token.Hex())
	}
	if delta.Sign() > 0 {
		owed := delta.Mul(delta, p.Liquidity)
		owed.Div(owed, Q128)
		pending.Add(pending, owed)
	}
	return pending, nil
}

// hasAccrued reports whether any token still holds a claimable balance.
func (p *Position) hasAccrued() bool {
	for _, acc := range p.Accrued {
		if acc.Sign() > 0 {
			return true
		}
	}
	return false
}
