package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func newLedgerWithToken(t *testing.T, token common.Address) *StreamLedger {
	t.Helper()
	l := NewStreamLedger(0)
	if err := l.Whitelist(token); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	return l
}

func TestFreshStream(t *testing.T) {
	l := newLedgerWithToken(t, tokenA)

	amount := new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(3))
	s, err := l.CreateIncentive(1000, tokenA, amount)
	if err != nil {
		t.Fatalf("create incentive: %v", err)
	}
	if want := big.NewInt(3); s.RatePerSecond.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", s.RatePerSecond, want)
	}
	if want := uint64(1000 + DefaultStreamDuration); s.Finish != want {
		t.Fatalf("finish = %d, want %d", s.Finish, want)
	}
	if s.Remaining.Cmp(amount) != 0 {
		t.Fatalf("remaining = %s, want %s", s.Remaining, amount)
	}
}

func TestTopUpExtendsActiveStream(t *testing.T) {
	l := newLedgerWithToken(t, tokenA)

	first := new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(10))
	if _, err := l.CreateIncentive(0, tokenA, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Half-way through, top up. Remaining halves to 5*duration, plus the
	// top-up of 5*duration: the rate holds at 10 over a fresh full window.
	topUp := new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(5))
	half := uint64(DefaultStreamDuration / 2)
	s, err := l.CreateIncentive(half, tokenA, topUp)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}

	wantRemaining := new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(10))
	if s.Remaining.Cmp(wantRemaining) != 0 {
		t.Fatalf("remaining = %s, want %s", s.Remaining, wantRemaining)
	}
	if want := big.NewInt(10); s.RatePerSecond.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", s.RatePerSecond, want)
	}
	if want := half + DefaultStreamDuration; s.Finish != want {
		t.Fatalf("finish = %d, want %d", s.Finish, want)
	}
	if total := l.RemainingTotal(half); total.Cmp(wantRemaining) != 0 {
		t.Fatalf("remaining total = %s, want %s", total, wantRemaining)
	}
}

func TestExpiredStreamRestartsFresh(t *testing.T) {
	l := newLedgerWithToken(t, tokenA)

	if _, err := l.CreateIncentive(0, tokenA, big.NewInt(DefaultStreamDuration)); err != nil {
		t.Fatalf("create: %v", err)
	}
	after := uint64(DefaultStreamDuration + 5000)
	s, err := l.CreateIncentive(after, tokenA, new(big.Int).Mul(big.NewInt(DefaultStreamDuration), big.NewInt(2)))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if want := big.NewInt(2); s.RatePerSecond.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", s.RatePerSecond, want)
	}
	if want := after + DefaultStreamDuration; s.Finish != want {
		t.Fatalf("finish = %d, want %d", s.Finish, want)
	}
}

func TestSettleZeroesRateAtExpiry(t *testing.T) {
	l := newLedgerWithToken(t, tokenA)
	if _, err := l.CreateIncentive(0, tokenA, big.NewInt(DefaultStreamDuration*4)); err != nil {
		t.Fatalf("create: %v", err)
	}

	tokens, rates := l.ActiveRates(100)
	if len(tokens) != 1 || rates[0].Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("active rates before expiry = %v %v", tokens, rates)
	}

	l.Settle(DefaultStreamDuration + 1)
	s := l.StreamFor(tokenA)
	if s.RatePerSecond.Sign() != 0 {
		t.Fatalf("rate after expiry = %s, want 0", s.RatePerSecond)
	}
	if tokens, _ := l.ActiveRates(DefaultStreamDuration + 1); len(tokens) != 0 {
		t.Fatalf("expired stream still active: %v", tokens)
	}
	if s.Remaining.Sign() != 0 {
		t.Fatalf("remaining after full run = %s, want 0", s.Remaining)
	}
}

func TestCreateIncentiveRequiresWhitelist(t *testing.T) {
	l := NewStreamLedger(0)
	_, err := l.CreateIncentive(0, tokenA, big.NewInt(1000))
	if !errors.Is(err, ErrTokenNotWhitelisted) {
		t.Fatalf("err = %v, want ErrTokenNotWhitelisted", err)
	}
}

func TestWhitelistCap(t *testing.T) {
	l := NewStreamLedger(0)
	for i := 0; i < MaxRewardTokens; i++ {
		token := common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
		if err := l.Whitelist(token); err != nil {
			t.Fatalf("whitelist %d: %v", i, err)
		}
	}
	overflow := common.HexToAddress(fmt.Sprintf("0x%040x", MaxRewardTokens+1))
	if err := l.Whitelist(overflow); !errors.Is(err, ErrTooManyRewardTokens) {
		t.Fatalf("err = %v, want ErrTooManyRewardTokens", err)
	}
	// Re-admitting an existing token is a no-op, not an overflow.
	if err := l.Whitelist(common.HexToAddress("0x" + fmt.Sprintf("%040x", 1))); err != nil {
		t.Fatalf("re-whitelist: %v", err)
	}
}
