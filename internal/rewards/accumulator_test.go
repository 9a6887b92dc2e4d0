package rewards

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func mustAccumulator(t *testing.T, spacing, activeTick int32, now uint64) *Accumulator {
	t.Helper()
	acc, err := NewAccumulator(spacing, activeTick, now)
	if err != nil {
		t.Fatalf("new accumulator: %v", err)
	}
	return acc
}

// rplDelta computes rate*dt*Q128/liquidity, the expected accrual increment.
func rplDelta(rate, dt, liquidity int64) *big.Int {
	v := big.NewInt(rate)
	v.Mul(v, big.NewInt(dt))
	v.Mul(v, Q128)
	v.Div(v, big.NewInt(liquidity))
	return v
}

func TestSyncAccruesProRata(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)
	if err := acc.ModifyLiquidity(-120, 120, big.NewInt(1000)); err != nil {
		t.Fatalf("modify: %v", err)
	}

	if err := acc.Sync(100, []common.Address{tokenA}, []*big.Int{big.NewInt(7)}, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}

	want := rplDelta(7, 100, 1000)
	if got := acc.CumulativeX128[tokenA]; got.Cmp(want) != 0 {
		t.Fatalf("cumulative = %s, want %s", got, want)
	}

	inside, err := acc.RangeValue(tokenA, -120, 120)
	if err != nil {
		t.Fatalf("range value: %v", err)
	}
	if inside.Cmp(want) != 0 {
		t.Fatalf("range value = %s, want %s", inside, want)
	}
}

func TestSyncZeroDtIsNoOp(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 50)
	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(500)); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if err := acc.Sync(50, []common.Address{tokenA}, []*big.Int{big.NewInt(9)}, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cum, ok := acc.CumulativeX128[tokenA]; ok && cum.Sign() != 0 {
		t.Fatalf("cumulative = %s, want 0", cum)
	}
}

func TestSyncTimestampRegression(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 100)
	err := acc.Sync(99, nil, nil, 0)
	if err == nil {
		t.Fatal("expected timestamp regression error")
	}
}

func TestIdleIntervalNeverAccruesRetroactively(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)

	// No liquidity for the first 1000 seconds.
	if err := acc.Sync(1000, []common.Address{tokenA}, []*big.Int{big.NewInt(5)}, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cum, ok := acc.CumulativeX128[tokenA]; ok && cum.Sign() != 0 {
		t.Fatalf("accrued %s with zero active liquidity", cum)
	}

	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(100)); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if err := acc.Sync(1100, []common.Address{tokenA}, []*big.Int{big.NewInt(5)}, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Only the 100 seconds with liquidity accrue.
	want := rplDelta(5, 100, 100)
	if got := acc.CumulativeX128[tokenA]; got.Cmp(want) != 0 {
		t.Fatalf("cumulative = %s, want %s", got, want)
	}
}

func TestCrossingSplitsRangeValues(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)
	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(1000)); err != nil {
		t.Fatalf("modify A: %v", err)
	}
	if err := acc.ModifyLiquidity(60, 120, big.NewInt(500)); err != nil {
		t.Fatalf("modify B: %v", err)
	}

	rate := []*big.Int{big.NewInt(6)}
	tokens := []common.Address{tokenA}

	// 100s in [-60, 60), then cross up past tick 60, then 100s in [60, 120).
	if err := acc.Sync(100, tokens, rate, 70); err != nil {
		t.Fatalf("sync cross: %v", err)
	}
	if got, want := acc.ActiveLiquidity, big.NewInt(500); got.Cmp(want) != 0 {
		t.Fatalf("active liquidity = %s, want %s", got, want)
	}
	if err := acc.Sync(200, tokens, rate, 70); err != nil {
		t.Fatalf("sync: %v", err)
	}

	deltaA := rplDelta(6, 100, 1000)
	deltaB := rplDelta(6, 100, 500)

	insideA, err := acc.RangeValue(tokenA, -60, 60)
	if err != nil {
		t.Fatalf("range A: %v", err)
	}
	if insideA.Cmp(deltaA) != 0 {
		t.Fatalf("inside A = %s, want %s", insideA, deltaA)
	}

	insideB, err := acc.RangeValue(tokenA, 60, 120)
	if err != nil {
		t.Fatalf("range B: %v", err)
	}
	if insideB.Cmp(deltaB) != 0 {
		t.Fatalf("inside B = %s, want %s", insideB, deltaB)
	}
}

func TestCrossingDownRestoresLiquidity(t *testing.T) {
	acc := mustAccumulator(t, 60, 70, 0)
	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(1000)); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if acc.ActiveLiquidity.Sign() != 0 {
		t.Fatalf("active liquidity = %s, want 0", acc.ActiveLiquidity)
	}

	// Cross down into the range.
	if err := acc.Sync(10, nil, nil, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got, want := acc.ActiveLiquidity, big.NewInt(1000); got.Cmp(want) != 0 {
		t.Fatalf("active liquidity = %s, want %s", got, want)
	}

	// And back out below the lower bound.
	if err := acc.Sync(20, nil, nil, -70); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if acc.ActiveLiquidity.Sign() != 0 {
		t.Fatalf("active liquidity = %s, want 0", acc.ActiveLiquidity)
	}
}

func TestOutOfRangeStall(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)
	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(1000)); err != nil {
		t.Fatalf("modify in-range: %v", err)
	}
	if err := acc.ModifyLiquidity(120, 180, big.NewInt(700)); err != nil {
		t.Fatalf("modify out-of-range: %v", err)
	}

	tokens := []common.Address{tokenA}
	rate := []*big.Int{big.NewInt(4)}
	if err := acc.Sync(500, tokens, rate, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}

	outside, err := acc.RangeValue(tokenA, 120, 180)
	if err != nil {
		t.Fatalf("range value: %v", err)
	}
	if outside.Sign() != 0 {
		t.Fatalf("out-of-range position accrued %s, want 0", outside)
	}

	// Move into [120, 180) and verify accrual resumes there.
	if err := acc.Sync(500, tokens, rate, 150); err != nil {
		t.Fatalf("sync cross: %v", err)
	}
	if err := acc.Sync(600, tokens, rate, 150); err != nil {
		t.Fatalf("sync: %v", err)
	}
	resumed, err := acc.RangeValue(tokenA, 120, 180)
	if err != nil {
		t.Fatalf("range value: %v", err)
	}
	if want := rplDelta(4, 100, 700); resumed.Cmp(want) != 0 {
		t.Fatalf("resumed accrual = %s, want %s", resumed, want)
	}
}

func TestBitmapTracksLiquidityGross(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)

	checkTick := func(tick int32, wantGross int64) {
		t.Helper()
		gross := acc.TickLiquidityGross(tick)
		if gross.Cmp(big.NewInt(wantGross)) != 0 {
			t.Fatalf("tick %d gross = %s, want %d", tick, gross, wantGross)
		}
		wantSet := wantGross != 0
		if acc.TickInitialized(tick) != wantSet {
			t.Fatalf("tick %d initialized = %v, want %v", tick, !wantSet, wantSet)
		}
	}

	if err := acc.ModifyLiquidity(-60, 120, big.NewInt(300)); err != nil {
		t.Fatalf("add: %v", err)
	}
	checkTick(-60, 300)
	checkTick(120, 300)

	if err := acc.ModifyLiquidity(-60, 120, big.NewInt(200)); err != nil {
		t.Fatalf("add more: %v", err)
	}
	checkTick(-60, 500)

	if err := acc.ModifyLiquidity(-60, 120, big.NewInt(-500)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	checkTick(-60, 0)
	checkTick(120, 0)
}

func TestModifyLiquidityUnderflow(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)
	if err := acc.ModifyLiquidity(-60, 60, big.NewInt(100)); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := acc.ModifyLiquidity(-60, 60, big.NewInt(-101))
	if err == nil {
		t.Fatal("expected liquidity underflow error")
	}
	// Failed removal must leave state intact.
	if got := acc.TickLiquidityGross(-60); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("gross after failed removal = %s, want 100", got)
	}
}

func TestModifyLiquidityRejectsBadRanges(t *testing.T) {
	acc := mustAccumulator(t, 60, 0, 0)
	if err := acc.ModifyLiquidity(60, 60, big.NewInt(1)); err == nil {
		t.Fatal("expected error for empty range")
	}
	if err := acc.ModifyLiquidity(-30, 60, big.NewInt(1)); err == nil {
		t.Fatal("expected error for misaligned lower tick")
	}
}

// TestCumulativeMonotonicRandom drives a random mix of liquidity changes,
// tick moves and syncs and checks the global accumulator never decreases.
func TestCumulativeMonotonicRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	acc := mustAccumulator(t, 10, 0, 0)

	type rangeRef struct {
		lower, upper int32
		liquidity    *big.Int
	}
	var ranges []rangeRef

	now := uint64(0)
	prev := map[common.Address]*big.Int{
		tokenA: new(big.Int),
		tokenB: new(big.Int),
	}
	tokens := []common.Address{tokenA, tokenB}

	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0:
			lower := int32(rng.Intn(40)-20) * 10
			upper := lower + int32(rng.Intn(5)+1)*10
			amount := big.NewInt(int64(rng.Intn(5000) + 1))
			if err := acc.ModifyLiquidity(lower, upper, amount); err != nil {
				t.Fatalf("op %d add: %v", i, err)
			}
			ranges = append(ranges, rangeRef{lower, upper, amount})
		case 1:
			if len(ranges) == 0 {
				continue
			}
			j := rng.Intn(len(ranges))
			r := ranges[j]
			if err := acc.ModifyLiquidity(r.lower, r.upper, new(big.Int).Neg(r.liquidity)); err != nil {
				t.Fatalf("op %d remove: %v", i, err)
			}
			ranges[j] = ranges[len(ranges)-1]
			ranges = ranges[:len(ranges)-1]
		default:
			now += uint64(rng.Intn(1000))
			tick := int32(rng.Intn(60)-30) * 10
			rates := []*big.Int{
				big.NewInt(int64(rng.Intn(50))),
				big.NewInt(int64(rng.Intn(50))),
			}
			if err := acc.Sync(now, tokens, rates, tick); err != nil {
				t.Fatalf("op %d sync: %v", i, err)
			}
		}

		for _, token := range tokens {
			cum, ok := acc.CumulativeX128[token]
			if !ok {
				continue
			}
			if cum.Cmp(prev[token]) < 0 {
				t.Fatalf("op %d: cumulative for %s decreased: %s -> %s", i, token.Hex(), prev[token], cum)
			}
			prev[token].Set(cum)
		}
	}
}
