package rewards

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"rewardScope/internal/model"
)

var (
	authority = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	depositor = common.HexToAddress("0x000000000000000000000000000000000000d0d0")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000001111")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000002222")
	poolOne   = model.PoolID(common.HexToHash("0x01"))
)

// recordingTransferrer tallies payouts per token and recipient.
type recordingTransferrer struct {
	payouts map[common.Address]map[common.Address]*big.Int
	failOn  map[common.Address]bool
}

func newRecordingTransferrer() *recordingTransferrer {
	return &recordingTransferrer{
		payouts: make(map[common.Address]map[common.Address]*big.Int),
		failOn:  make(map[common.Address]bool),
	}
}

func (r *recordingTransferrer) Transfer(token, recipient common.Address, amount *big.Int) error {
	if r.failOn[token] {
		return fmt.Errorf("token rejected transfer")
	}
	perToken, ok := r.payouts[token]
	if !ok {
		perToken = make(map[common.Address]*big.Int)
		r.payouts[token] = perToken
	}
	total, ok := perToken[recipient]
	if !ok {
		total = new(big.Int)
		perToken[recipient] = total
	}
	total.Add(total, amount)
	return nil
}

func (r *recordingTransferrer) paid(token, recipient common.Address) *big.Int {
	if perToken, ok := r.payouts[token]; ok {
		if total, ok := perToken[recipient]; ok {
			return new(big.Int).Set(total)
		}
	}
	return new(big.Int)
}

func newTestDistributor(t *testing.T) (*Distributor, *recordingTransferrer) {
	t.Helper()
	sink := newRecordingTransferrer()
	d := NewDistributor(Config{Authority: authority, Depositor: depositor}, sink, nil)
	require.NoError(t, d.RegisterPool(0, poolOne, tokenA, 60, 0))
	return d, sink
}

func requireApprox(t *testing.T, want, got *big.Int, tol int64) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)
	require.LessOrEqualf(t, diff.Int64(), tol, "want %s ± %d, got %s", want, tol, got)
}

// The canonical flow: one full-range position, a bucket deposited on day 0,
// streaming from day 2, claimed after 12 hours of emission.
func TestDailyPipelineEndToEnd(t *testing.T) {
	d, sink := newTestDistributor(t)

	liquidity := big.NewInt(1_000_000)
	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, liquidity)
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(1000)) // 1000/s once active
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))

	// Days 0 and 1: no emission.
	require.NoError(t, d.PokePool(day(1), poolOne, 0))
	pending, err := d.PendingRewards(day(1), key)
	require.NoError(t, err)
	require.Empty(t, pending)

	// Day 2: streaming at 1000/s; 12 hours accrue to the sole position.
	require.NoError(t, d.PokePool(day(2), poolOne, 0))
	halfDay := day(2) + DaySeconds/2
	require.NoError(t, d.PokePool(halfDay, poolOne, 0))

	balanceBefore := d.Balance(tokenA)
	claimed, err := d.Claim(halfDay, alice, key, alice)
	require.NoError(t, err)

	want := big.NewInt(1000 * (DaySeconds / 2))
	requireApprox(t, want, claimed[tokenA], 2)
	require.Equal(t, claimed[tokenA].String(), sink.paid(tokenA, alice).String())

	balanceAfter := d.Balance(tokenA)
	require.Equal(t, new(big.Int).Sub(balanceBefore, claimed[tokenA]).String(), balanceAfter.String())
}

// A poke that arrives days late must not retro-apply the activated rate to
// the zero-rate delay days.
func TestLatePokeDoesNotRetroApplyRate(t *testing.T) {
	d, _ := newTestDistributor(t)

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1_000_000))
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(10))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))

	// First poke only on day 3: emission covered day 2 alone.
	require.NoError(t, d.PokePool(day(3), poolOne, 0))
	pending, err := d.PendingRewards(day(3), key)
	require.NoError(t, err)
	requireApprox(t, new(big.Int).Mul(big.NewInt(10), big.NewInt(DaySeconds)), pending[tokenA], 2)
}

func TestOutOfRangePositionStalls(t *testing.T) {
	d, _ := newTestDistributor(t)

	inRange, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)
	outOfRange, err := d.NotifySubscribe(0, poolOne, bob, [32]byte{1}, 1200, 1800, big.NewInt(1000))
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(100))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))
	require.NoError(t, d.PokePool(day(2)+3600, poolOne, 0))

	pendingOut, err := d.PendingRewards(day(2)+3600, outOfRange)
	require.NoError(t, err)
	require.Empty(t, pendingOut)

	pendingIn, err := d.PendingRewards(day(2)+3600, inRange)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(100*3600), pendingIn[tokenA], 2)

	// Price moves into [1200, 1800): the stalled position starts earning.
	require.NoError(t, d.PokePool(day(2)+7200, poolOne, 1500))
	require.NoError(t, d.PokePool(day(2)+10800, poolOne, 1500))

	pendingOut, err = d.PendingRewards(day(2)+10800, outOfRange)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(100*3600), pendingOut[tokenA], 2)
	// The in-range position earned nothing while excluded.
	pendingIn2, err := d.PendingRewards(day(2)+10800, inRange)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(100*7200), pendingIn2[tokenA], 4)
}

func TestMultiTokenStreamsAccrueIndependently(t *testing.T) {
	d, _ := newTestDistributor(t)

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(500_000))
	require.NoError(t, err)

	require.NoError(t, d.WhitelistToken(authority, poolOne, tokenB))
	amount := new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(20))
	require.NoError(t, d.CreateIncentive(0, authority, poolOne, tokenB, amount))

	require.NoError(t, d.PokePool(3600, poolOne, 0))
	pending, err := d.PendingRewards(3600, key)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(20*3600), pending[tokenB], 2)
	require.NotContains(t, pending, tokenA)
}

func TestClaimAllForOwnerSweepsAndPrunes(t *testing.T) {
	d, sink := newTestDistributor(t)

	keyOne, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)
	keyTwo, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{2}, -1200, 1200, big.NewInt(3000))
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(400))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))
	require.NoError(t, d.PokePool(day(2)+3600, poolOne, 0))

	// Unsubscribing the first position must not forfeit its accrued share.
	require.NoError(t, d.NotifyUnsubscribe(day(2)+3600, keyOne))

	claimed, err := d.ClaimAllForOwner(day(2)+3600, alice, nil, alice)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(400*3600), claimed[tokenA], 4)
	require.Equal(t, claimed[tokenA].String(), sink.paid(tokenA, alice).String())

	// The emptied position was pruned, the live one kept.
	_, err = d.PositionLiquidity(keyOne)
	require.ErrorIs(t, err, ErrUnknownPosition)
	liquidity, err := d.PositionLiquidity(keyTwo)
	require.NoError(t, err)
	require.Equal(t, "3000", liquidity.String())
}

// An unsubscribed position keeps its accrued balance queryable even after its
// boundary ticks are gone and the price has left the old range, where the
// live range value falls below the stale snapshot.
func TestPendingSurvivesUnsubscribeAndPriceExit(t *testing.T) {
	d, sink := newTestDistributor(t)

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(100))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))
	require.NoError(t, d.PokePool(day(2)+3600, poolOne, 0))

	require.NoError(t, d.NotifyUnsubscribe(day(2)+3600, key))
	// Both boundary ticks were deleted with the last liquidity; the price
	// then exits the old range entirely.
	require.NoError(t, d.PokePool(day(2)+7200, poolOne, -1200))

	pending, err := d.PendingRewards(day(2)+7200, key)
	require.NoError(t, err)
	requireApprox(t, big.NewInt(100*3600), pending[tokenA], 2)

	byPool, err := d.PendingRewardsOwner(day(2)+7200, alice)
	require.NoError(t, err)
	require.Equal(t, pending[tokenA].String(), byPool[poolOne][tokenA].String())

	claimed, err := d.Claim(day(2)+7200, alice, key, alice)
	require.NoError(t, err)
	require.Equal(t, pending[tokenA].String(), claimed[tokenA].String())
	require.Equal(t, claimed[tokenA].String(), sink.paid(tokenA, alice).String())
}

func TestClaimAuthorization(t *testing.T) {
	d, _ := newTestDistributor(t)

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)

	_, err = d.Claim(100, bob, key, bob)
	require.ErrorIs(t, err, ErrNotPositionOwner)

	err = d.AddRewards(100, alice, poolOne, big.NewInt(1000))
	require.ErrorIs(t, err, ErrUnauthorized)

	err = d.WhitelistToken(alice, poolOne, tokenB)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = d.CreateIncentive(100, alice, poolOne, tokenB, big.NewInt(1000))
	require.ErrorIs(t, err, ErrUnauthorized)
}

// reentrantTransferrer plays a malicious token that re-enters Claim from
// inside the payout.
type reentrantTransferrer struct {
	d        *Distributor
	key      model.PositionKey
	owner    common.Address
	attempts int
	inner    error
}

func (r *reentrantTransferrer) Transfer(token, recipient common.Address, amount *big.Int) error {
	r.attempts++
	_, r.inner = r.d.Claim(0, r.owner, r.key, recipient)
	return nil
}

func TestReentrantClaimRejected(t *testing.T) {
	hook := &reentrantTransferrer{}
	d := NewDistributor(Config{Authority: authority, Depositor: depositor}, hook, nil)
	require.NoError(t, d.RegisterPool(0, poolOne, tokenA, 60, 0))
	hook.d = d
	hook.owner = alice

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)
	hook.key = key

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(50))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))
	require.NoError(t, d.PokePool(day(2)+3600, poolOne, 0))

	claimed, err := d.Claim(day(2)+3600, alice, key, alice)
	require.NoError(t, err)
	require.Positive(t, claimed[tokenA].Sign())
	require.Equal(t, 1, hook.attempts)
	require.ErrorIs(t, hook.inner, ErrOperationInProgress)

	// The nested rejection left the accrued balance zeroed exactly once.
	pending, err := d.PendingRewards(day(2)+3600, key)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestFailedTransferRecredits(t *testing.T) {
	d, sink := newTestDistributor(t)
	sink.failOn[tokenA] = true

	key, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(1000))
	require.NoError(t, err)

	bucket := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(50))
	require.NoError(t, d.AddRewards(0, depositor, poolOne, bucket))
	require.NoError(t, d.PokePool(day(2)+3600, poolOne, 0))

	pendingBefore, err := d.PendingRewards(day(2)+3600, key)
	require.NoError(t, err)

	_, err = d.Claim(day(2)+3600, alice, key, alice)
	require.Error(t, err)

	// Nothing paid, nothing lost: the reward is still claimable in full.
	pendingAfter, err := d.PendingRewards(day(2)+3600, key)
	require.NoError(t, err)
	require.Equal(t, pendingBefore[tokenA].String(), pendingAfter[tokenA].String())

	sink.failOn[tokenA] = false
	claimed, err := d.Claim(day(2)+3600, alice, key, alice)
	require.NoError(t, err)
	require.Equal(t, pendingBefore[tokenA].String(), claimed[tokenA].String())
}

// Conservation: whatever the interleaving, claims plus still-accrued plus
// still-scheduled never exceed what was deposited.
func TestConservationAcrossInterleavings(t *testing.T) {
	d, sink := newTestDistributor(t)

	keyA, err := d.NotifySubscribe(0, poolOne, alice, [32]byte{1}, -600, 600, big.NewInt(2500))
	require.NoError(t, err)
	_, err = d.NotifySubscribe(0, poolOne, bob, [32]byte{1}, -1200, 0, big.NewInt(7500))
	require.NoError(t, err)

	total := new(big.Int)
	deposit := func(now uint64, perSecond int64) {
		amount := new(big.Int).Mul(big.NewInt(DaySeconds), big.NewInt(perSecond))
		require.NoError(t, d.AddRewards(now, depositor, poolOne, amount))
		total.Add(total, amount)
	}

	deposit(0, 11)
	require.NoError(t, d.PokePool(day(1)+300, poolOne, -300))
	deposit(day(1)+300, 7)
	require.NoError(t, d.PokePool(day(2)+100, poolOne, 300))
	require.NoError(t, d.PokePool(day(3)+100, poolOne, -100))
	claimedA, err := d.Claim(day(3)+200, alice, keyA, alice)
	require.NoError(t, err)
	require.NoError(t, d.PokePool(day(4)+100, poolOne, 0))
	claimedBob, err := d.ClaimAllForOwner(day(4)+200, bob, nil, bob)
	require.NoError(t, err)

	paidOut := new(big.Int).Add(sink.paid(tokenA, alice), sink.paid(tokenA, bob))
	if amt, ok := claimedA[tokenA]; ok {
		require.Positive(t, amt.Sign())
	}
	if amt, ok := claimedBob[tokenA]; ok {
		require.Positive(t, amt.Sign())
	}
	require.LessOrEqual(t, paidOut.Cmp(total), 0)

	// held balance + payouts == deposits, always.
	sum := new(big.Int).Add(paidOut, d.Balance(tokenA))
	require.Equal(t, total.String(), sum.String())
	require.Equal(t, total.String(), d.Deposited(tokenA).String())
}
