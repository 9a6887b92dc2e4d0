package rewards

import (
	"time"

	"rewardScope/internal/model"
)

// SnapshotPoolStates renders every pool's accumulator and pipeline state as
// persistence rows.
func (d *Distributor) SnapshotPoolStates(at time.Time) []model.PoolRewardState {
	out := make([]model.PoolRewardState, 0, len(d.pools))
	for id, p := range d.pools {
		out = append(out, model.PoolRewardState{
			PoolID:          id.Hex(),
			RewardToken:     p.RewardToken.Hex(),
			TickSpacing:     p.Acc.TickSpacing,
			ActiveTick:      p.Acc.ActiveTick,
			ActiveLiquidity: p.Acc.ActiveLiquidity.String(),
			LastSync:        p.Acc.LastSync,
			WindowStart:     p.Epoch.WindowStart,
			WindowEnd:       p.Epoch.WindowEnd,
			StreamRate:      p.Epoch.StreamRate.String(),
			NextStreamRate:  p.Epoch.NextRate.String(),
			QueuedRate:      p.Epoch.QueuedRate.String(),
			SnapshotAt:      at,
		})
	}
	return out
}

// SnapshotPositions renders one row per position per reward token.
func (d *Distributor) SnapshotPositions(at time.Time) []model.PositionRow {
	out := make([]model.PositionRow, 0, len(d.positions))
	for key, pos := range d.positions {
		p, ok := d.pools[pos.Pool]
		if !ok {
			continue
		}
		for _, token := range p.rewardTokens() {
			row := model.PositionRow{
				PositionKey:    key.Hex(),
				PoolID:         pos.Pool.Hex(),
				Owner:          pos.Owner.Hex(),
				TickLower:      pos.TickLower,
				TickUpper:      pos.TickUpper,
				Liquidity:      pos.Liquidity.String(),
				Token:          token.Hex(),
				SnapshotX128:   "0",
				RewardsAccrued: "0",
				SnapshotAt:     at,
			}
			if snap, ok := pos.SnapshotX128[token]; ok {
				row.SnapshotX128 = snap.String()
			}
			if acc, ok := pos.Accrued[token]; ok {
				row.RewardsAccrued = acc.String()
			}
			out = append(out, row)
		}
	}
	return out
}

// SnapshotStreams renders every live incentive stream as persistence rows.
func (d *Distributor) SnapshotStreams(at time.Time) []model.StreamRow {
	var out []model.StreamRow
	for id, p := range d.pools {
		for _, token := range p.Streams.WhitelistedTokens() {
			s := p.Streams.StreamFor(token)
			if s == nil {
				continue
			}
			out = append(out, model.StreamRow{
				PoolID:        id.Hex(),
				Token:         token.Hex(),
				RatePerSecond: s.RatePerSecond.String(),
				Finish:        s.Finish,
				Remaining:     s.Remaining.String(),
				SnapshotAt:    at,
			})
		}
	}
	return out
}
