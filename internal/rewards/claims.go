package rewards

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rewardScope/internal/model"
)

// claimPortion remembers one position's contribution to a payout so a failed
// transfer can be re-credited exactly.
type claimPortion struct {
	key    model.PositionKey
	amount *big.Int
}

// Claim pays out one position's accrued rewards to recipient. All internal
// state (accrued zeroing, balance debit, index pruning) is committed before
// the transferrer runs; a re-entered claim fails with ErrOperationInProgress.
func (d *Distributor) Claim(now uint64, caller common.Address, key model.PositionKey, recipient common.Address) (map[common.Address]*big.Int, error) {
	if d.claiming {
		return nil, ErrOperationInProgress
	}
	d.claiming = true
	defer func() { d.claiming = false }()

	pos, err := d.position(key)
	if err != nil {
		return nil, err
	}
	if pos.Owner != caller {
		return nil, fmt.Errorf("%w: %s", ErrNotPositionOwner, key.Hex())
	}
	p, err := d.pool(pos.Pool)
	if err != nil {
		return nil, err
	}
	if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
		return nil, err
	}

	totals, portions, prunable, err := d.sweepPosition(p, pos)
	if err != nil {
		return nil, err
	}
	if err := d.payout(totals, portions, recipient); err != nil {
		return nil, err
	}
	d.prune(prunable)
	return totals, nil
}

// ClaimAllForOwner claims across every indexed position of the owner in the
// given pools (all indexed pools when the list is empty), aggregating one
// transfer per token.
func (d *Distributor) ClaimAllForOwner(now uint64, owner common.Address, poolIDs []model.PoolID, recipient common.Address) (map[common.Address]*big.Int, error) {
	if d.claiming {
		return nil, ErrOperationInProgress
	}
	d.claiming = true
	defer func() { d.claiming = false }()

	if len(poolIDs) == 0 {
		for id := range d.ownerIndex[owner] {
			poolIDs = append(poolIDs, id)
		}
	}

	totals := make(map[common.Address]*big.Int)
	portions := make(map[common.Address][]claimPortion)
	var prunable []*Position
	for _, id := range poolIDs {
		p, err := d.pool(id)
		if err != nil {
			return nil, err
		}
		if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
			return nil, err
		}

		for _, key := range d.ownerIndex[owner][id] {
			pos, err := d.position(key)
			if err != nil {
				return nil, err
			}
			posTotals, posPortions, posPrunable, err := d.sweepPosition(p, pos)
			if err != nil {
				return nil, err
			}
			for token, amount := range posTotals {
				total, ok := totals[token]
				if !ok {
					total = new(big.Int)
					totals[token] = total
				}
				total.Add(total, amount)
				portions[token] = append(portions[token], posPortions[token]...)
			}
			prunable = append(prunable, posPrunable...)
		}
	}
	if err := d.payout(totals, portions, recipient); err != nil {
		return nil, err
	}
	d.prune(prunable)
	return totals, nil
}

// sweepPosition accrues, validates against held balances, zeroes accrued,
// and debits balances. Returns the per-token payout plus the position itself
// when it has nothing left to claim or earn and can be pruned after a
// successful payout.
func (d *Distributor) sweepPosition(p *Pool, pos *Position) (map[common.Address]*big.Int, map[common.Address][]claimPortion, []*Position, error) {
	if pos.Liquidity.Sign() > 0 {
		if err := d.accrueAll(p, pos); err != nil {
			return nil, nil, nil, err
		}
	}

	// Validate the whole sweep before committing anything: paying out more
	// than held is a correctness bug, never clamped to the balance.
	for token, acc := range pos.Accrued {
		if acc.Sign() == 0 {
			continue
		}
		bal := d.balances[token]
		if bal == nil || bal.Cmp(acc) < 0 {
			return nil, nil, nil, fmt.Errorf("%w: token %s owes %s", ErrInsufficientBalance, token.Hex(), acc.String())
		}
	}

	totals := make(map[common.Address]*big.Int)
	portions := make(map[common.Address][]claimPortion)
	for token := range pos.Accrued {
		amount := pos.Claim(token)
		if amount.Sign() == 0 {
			continue
		}
		d.balances[token].Sub(d.balances[token], amount)
		totals[token] = amount
		portions[token] = []claimPortion{{key: pos.Key, amount: new(big.Int).Set(amount)}}
	}

	var prunable []*Position
	if pos.Liquidity.Sign() == 0 && !pos.hasAccrued() {
		prunable = append(prunable, pos)
	}
	return totals, portions, prunable, nil
}

// prune drops fully-settled position records and their index entries. Runs
// only after a successful payout, so an unsubscribed position keeps its
// unclaimed rewards until they are actually paid.
func (d *Distributor) prune(positions []*Position) {
	for _, pos := range positions {
		delete(d.positions, pos.Key)
		d.unindexPosition(pos.Owner, pos.Pool, pos.Key)
		d.logger.Debug("position pruned", zap.String("key", pos.Key.Hex()))
	}
}

// payout runs the external transfers after state is committed. On a failed
// transfer the failed and unattempted tokens are re-credited so no reward is
// lost or double-paid.
func (d *Distributor) payout(totals map[common.Address]*big.Int, portions map[common.Address][]claimPortion, recipient common.Address) error {
	tokens := make([]common.Address, 0, len(totals))
	for token, amount := range totals {
		if amount.Sign() > 0 {
			tokens = append(tokens, token)
		}
	}
	for i, token := range tokens {
		if err := d.transfer.Transfer(token, recipient, totals[token]); err != nil {
			for _, unpaid := range tokens[i:] {
				d.recredit(unpaid, portions[unpaid])
			}
			return fmt.Errorf("transfer %s of token %s: %w", totals[token].String(), token.Hex(), err)
		}
	}
	return nil
}

// recredit undoes one token's debits after a failed transfer. Pruning is
// deferred past payout, so every position in the portions still exists.
func (d *Distributor) recredit(token common.Address, portions []claimPortion) {
	for _, portion := range portions {
		pos, ok := d.positions[portion.key]
		if !ok {
			continue
		}
		acc, ok := pos.Accrued[token]
		if !ok {
			acc = new(big.Int)
			pos.Accrued[token] = acc
		}
		acc.Add(acc, portion.amount)

		bal, ok := d.balances[token]
		if !ok {
			bal = new(big.Int)
			d.balances[token] = bal
		}
		bal.Add(bal, portion.amount)
	}
}

// PendingRewards projects a position's claimable rewards at now without
// mutating state, using the same accrual formula as a claim would. The
// projection extrapolates the rates as of the pool's last rotation; between a
// day boundary and the next poke it does not simulate the roll, so a read in
// that window sees the previous day's rate.
func (d *Distributor) PendingRewards(now uint64, key model.PositionKey) (map[common.Address]*big.Int, error) {
	pos, err := d.position(key)
	if err != nil {
		return nil, err
	}
	p, err := d.pool(pos.Pool)
	if err != nil {
		return nil, err
	}

	rates := p.currentRates(now)
	out := make(map[common.Address]*big.Int)
	for _, token := range p.rewardTokens() {
		rv, err := p.Acc.ProjectedRangeValue(token, pos.TickLower, pos.TickUpper, now, rates[token])
		if err != nil {
			return nil, err
		}
		pending, err := pos.Pending(token, rv)
		if err != nil {
			return nil, err
		}
		if pending.Sign() > 0 {
			out[token] = pending
		}
	}
	return out, nil
}

// PendingRewardsOwner projects pending rewards across all indexed positions
// of an owner, grouped by pool and token.
func (d *Distributor) PendingRewardsOwner(now uint64, owner common.Address) (map[model.PoolID]map[common.Address]*big.Int, error) {
	out := make(map[model.PoolID]map[common.Address]*big.Int)
	for id, keys := range d.ownerIndex[owner] {
		for _, key := range keys {
			pending, err := d.PendingRewards(now, key)
			if err != nil {
				return nil, err
			}
			for token, amount := range pending {
				perPool, ok := out[id]
				if !ok {
					perPool = make(map[common.Address]*big.Int)
					out[id] = perPool
				}
				total, ok := perPool[token]
				if !ok {
					total = new(big.Int)
					perPool[token] = total
				}
				total.Add(total, amount)
			}
		}
	}
	return out, nil
}

// PoolRewards renders a pool's pipeline state for the query API.
func (d *Distributor) PoolRewards(id model.PoolID) (model.PoolRewardsResponse, error) {
	p, err := d.pool(id)
	if err != nil {
		return model.PoolRewardsResponse{}, err
	}
	buckets := make(map[uint64]string)
	for day, amount := range p.Epoch.ScheduledBuckets() {
		buckets[day] = amount.String()
	}
	return model.PoolRewardsResponse{
		PoolID:          id.Hex(),
		RewardToken:     p.RewardToken.Hex(),
		ActiveTick:      p.Acc.ActiveTick,
		ActiveLiquidity: p.Acc.ActiveLiquidity.String(),
		LastSync:        p.Acc.LastSync,
		WindowStart:     p.Epoch.WindowStart,
		WindowEnd:       p.Epoch.WindowEnd,
		StreamRate:      p.Epoch.StreamRate.String(),
		NextStreamRate:  p.Epoch.NextRate.String(),
		QueuedRate:      p.Epoch.QueuedRate.String(),
		Buckets:         buckets,
	}, nil
}

// PoolStreams renders a pool's incentive streams for the query API.
func (d *Distributor) PoolStreams(now uint64, id model.PoolID) ([]model.StreamResponse, error) {
	p, err := d.pool(id)
	if err != nil {
		return nil, err
	}
	out := make([]model.StreamResponse, 0, MaxRewardTokens)
	for _, token := range p.Streams.WhitelistedTokens() {
		s := p.Streams.StreamFor(token)
		if s == nil {
			continue
		}
		out = append(out, model.StreamResponse{
			Token:         token.Hex(),
			RatePerSecond: s.RatePerSecond.String(),
			Finish:        s.Finish,
			Remaining:     s.Remaining.String(),
		})
	}
	return out, nil
}
