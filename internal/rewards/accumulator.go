package rewards

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Q128 is the fixed-point scale of all rewards-per-liquidity values.
var Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Accumulator is the per-pool tick-indexed rewards-per-liquidity state.
// All mutation goes through Sync and ModifyLiquidity; both must be called
// with non-decreasing timestamps and in the order the caller observed the
// underlying pool events.
type Accumulator struct {
	TickSpacing     int32
	ActiveTick      int32
	ActiveLiquidity *big.Int
	LastSync        uint64

	// CumulativeX128 is the global rewards-per-liquidity per token, Q128.
	// Monotonically non-decreasing for every token.
	CumulativeX128 map[common.Address]*big.Int

	ticks  map[int32]*TickInfo
	bitmap TickBitmap
}

// NewAccumulator builds an empty accumulator for a pool.
func NewAccumulator(tickSpacing int32, activeTick int32, now uint64) (*Accumulator, error) {
	if tickSpacing <= 0 {
		return nil, fmt.Errorf("tick spacing must be positive, got %d", tickSpacing)
	}
	return &Accumulator{
		TickSpacing:     tickSpacing,
		ActiveTick:      activeTick,
		ActiveLiquidity: new(big.Int),
		LastSync:        now,
		CumulativeX128:  make(map[common.Address]*big.Int),
		ticks:           make(map[int32]*TickInfo),
		bitmap:          make(TickBitmap),
	}, nil
}

func floorDiv(tick, spacing int32) int32 {
	q := tick / spacing
	if tick%spacing != 0 && (tick < 0) != (spacing < 0) {
		q--
	}
	return q
}

// Sync advances the accumulator to now, accruing rate*dt per unit of active
// liquidity for each token, then crosses every initialized tick between the
// previous and new active tick. LastSync always advances, so intervals with
// zero active liquidity never accrue retroactively.
func (a *Accumulator) Sync(now uint64, tokens []common.Address, ratesPerSecond []*big.Int, newActiveTick int32) error {
	if now < a.LastSync {
		return fmt.Errorf("%w: last %d, got %d", ErrTimestampRegression, a.LastSync, now)
	}
	if len(tokens) != len(ratesPerSecond) {
		return fmt.Errorf("tokens and rates length mismatch: %d != %d", len(tokens), len(ratesPerSecond))
	}

	dt := now - a.LastSync
	if dt > 0 && a.ActiveLiquidity.Sign() > 0 {
		for i, token := range tokens {
			rate := ratesPerSecond[i]
			if rate == nil || rate.Sign() <= 0 {
				continue
			}
			delta := new(big.Int).SetUint64(dt)
			delta.Mul(delta, rate)
			delta.Mul(delta, Q128)
			delta.Div(delta, a.ActiveLiquidity)
			a.addCumulative(token, delta)
		}
	}
	a.LastSync = now

	if newActiveTick != a.ActiveTick {
		if err := a.crossTo(newActiveTick); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accumulator) addCumulative(token common.Address, delta *big.Int) {
	cum, ok := a.CumulativeX128[token]
	if !ok {
		cum = new(big.Int)
		a.CumulativeX128[token] = cum
	}
	cum.Add(cum, delta)
}

func (a *Accumulator) crossTo(newActiveTick int32) error {
	from := floorDiv(a.ActiveTick, a.TickSpacing)
	to := floorDiv(newActiveTick, a.TickSpacing)

	if newActiveTick > a.ActiveTick {
		for c, ok := a.bitmap.NextAbove(from, to); ok; c, ok = a.bitmap.NextAbove(c, to) {
			if err := a.crossTick(c*a.TickSpacing, true); err != nil {
				return err
			}
		}
	} else {
		for c, ok := a.bitmap.NextBelow(from, to); ok; c, ok = a.bitmap.NextBelow(c-1, to) {
			if err := a.crossTick(c*a.TickSpacing, false); err != nil {
				return err
			}
		}
	}
	a.ActiveTick = newActiveTick
	return nil
}

func (a *Accumulator) crossTick(tick int32, upward bool) error {
	info, ok := a.ticks[tick]
	if !ok {
		return fmt.Errorf("initialized bitmap bit without tick state at %d", tick)
	}
	info.cross(a.CumulativeX128)

	if upward {
		a.ActiveLiquidity.Add(a.ActiveLiquidity, info.LiquidityNet)
	} else {
		a.ActiveLiquidity.Sub(a.ActiveLiquidity, info.LiquidityNet)
	}
	if a.ActiveLiquidity.Sign() < 0 {
		return fmt.Errorf("%w: active liquidity negative after crossing %d", ErrLiquidityUnderflow, tick)
	}
	return nil
}

// ModifyLiquidity applies a signed liquidity delta to the range
// [tickLower, tickUpper), updating both boundary ticks, the bitmap, and the
// active liquidity when the range straddles the active tick. Callers must
// invoke it before any Sync meant to observe the new liquidity.
func (a *Accumulator) ModifyLiquidity(tickLower, tickUpper int32, liquidityDelta *big.Int) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if tickLower%a.TickSpacing != 0 || tickUpper%a.TickSpacing != 0 {
		return fmt.Errorf("%w: ticks must align to spacing %d", ErrInvalidTickRange, a.TickSpacing)
	}
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return nil
	}

	if liquidityDelta.Sign() < 0 {
		need := new(big.Int).Neg(liquidityDelta)
		for _, tick := range []int32{tickLower, tickUpper} {
			info, ok := a.ticks[tick]
			if !ok || info.LiquidityGross.Cmp(need) < 0 {
				return fmt.Errorf("%w: tick %d", ErrLiquidityUnderflow, tick)
			}
		}
	}

	a.updateTick(tickLower, liquidityDelta, false)
	a.updateTick(tickUpper, liquidityDelta, true)

	if tickLower <= a.ActiveTick && a.ActiveTick < tickUpper {
		a.ActiveLiquidity.Add(a.ActiveLiquidity, liquidityDelta)
		if a.ActiveLiquidity.Sign() < 0 {
			// Unreachable given the gross checks above, kept as a hard stop.
			a.ActiveLiquidity.Sub(a.ActiveLiquidity, liquidityDelta)
			return ErrLiquidityUnderflow
		}
	}
	return nil
}

func (a *Accumulator) updateTick(tick int32, liquidityDelta *big.Int, isUpper bool) {
	info, ok := a.ticks[tick]
	if !ok {
		info = newTickInfo()
		a.ticks[tick] = info
	}

	wasInitialized := info.LiquidityGross.Sign() != 0
	info.LiquidityGross.Add(info.LiquidityGross, liquidityDelta)
	if isUpper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}
	isInitialized := info.LiquidityGross.Sign() != 0

	if wasInitialized != isInitialized {
		a.bitmap.Flip(floorDiv(tick, a.TickSpacing))
		if isInitialized {
			// Convention on first initialization: ticks at or below the
			// active tick start with outside = cumulative, ticks above
			// start with outside = 0.
			if tick <= a.ActiveTick {
				for token, cum := range a.CumulativeX128 {
					info.RewardsOutsideX128[token] = new(big.Int).Set(cum)
				}
			}
		} else {
			delete(a.ticks, tick)
		}
	}
}

// RangeValue returns the in-range accumulator for [tickLower, tickUpper):
// cumulative minus the growth below the lower tick and above the upper tick.
func (a *Accumulator) RangeValue(token common.Address, tickLower, tickUpper int32) (*big.Int, error) {
	if tickLower >= tickUpper {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidTickRange, tickLower, tickUpper)
	}

	cum, ok := a.CumulativeX128[token]
	if !ok {
		return new(big.Int), nil
	}

	below := a.outsideOrDefault(token, tickLower)
	if a.ActiveTick < tickLower {
		below = new(big.Int).Sub(cum, below)
	}
	above := a.outsideOrDefault(token, tickUpper)
	if a.ActiveTick >= tickUpper {
		above = new(big.Int).Sub(cum, above)
	}

	inside := new(big.Int).Sub(cum, below)
	inside.Sub(inside, above)
	if inside.Sign() < 0 {
		return nil, fmt.Errorf("negative range value for token %s over [%d, %d)", token.Hex(), tickLower, tickUpper)
	}
	return inside, nil
}

func (a *Accumulator) outsideOrDefault(token common.Address, tick int32) *big.Int {
	if info, ok := a.ticks[tick]; ok {
		return new(big.Int).Set(info.outside(token))
	}
	return new(big.Int)
}

// ProjectedRangeValue extends RangeValue with the accrual a Sync at now would
// add, without mutating state. Used by read-only pending queries.
func (a *Accumulator) ProjectedRangeValue(token common.Address, tickLower, tickUpper int32, now uint64, ratePerSecond *big.Int) (*big.Int, error) {
	inside, err := a.RangeValue(token, tickLower, tickUpper)
	if err != nil {
		return nil, err
	}
	if now <= a.LastSync || a.ActiveLiquidity.Sign() == 0 {
		return inside, nil
	}
	if ratePerSecond == nil || ratePerSecond.Sign() <= 0 {
		return inside, nil
	}
	if a.ActiveTick < tickLower || a.ActiveTick >= tickUpper {
		return inside, nil
	}

	delta := new(big.Int).SetUint64(now - a.LastSync)
	delta.Mul(delta, ratePerSecond)
	delta.Mul(delta, Q128)
	delta.Div(delta, a.ActiveLiquidity)
	return inside.Add(inside, delta), nil
}

// TickLiquidityGross returns the gross liquidity referencing a tick, zero if
// the tick is uninitialized.
func (a *Accumulator) TickLiquidityGross(tick int32) *big.Int {
	if info, ok := a.ticks[tick]; ok {
		return new(big.Int).Set(info.LiquidityGross)
	}
	return new(big.Int)
}

// TickInitialized reports the bitmap bit for a tick.
func (a *Accumulator) TickInitialized(tick int32) bool {
	return a.bitmap.IsSet(floorDiv(tick, a.TickSpacing))
}
