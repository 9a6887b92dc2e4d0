package rewards

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultStreamDuration is the emission window of a fresh incentive stream.
const DefaultStreamDuration = 7 * DaySeconds

// MaxRewardTokens bounds the token set iterated on every sync.
const MaxRewardTokens = 8

// Stream is one token's constant-rate emission. Remaining decays linearly to
// zero at Finish; the rate is zeroed by the first settle that observes expiry.
type Stream struct {
	Token         common.Address
	RatePerSecond *big.Int
	Finish        uint64
	Remaining     *big.Int

	lastSettle uint64
}

// StreamLedger holds the per-token incentive streams of one pool, keyed by
// whitelisted reward token.
type StreamLedger struct {
	Duration uint64

	whitelist []common.Address
	streams   map[common.Address]*Stream
}

// NewStreamLedger builds an empty ledger with the given stream duration,
// falling back to the default when zero.
func NewStreamLedger(duration uint64) *StreamLedger {
	if duration == 0 {
		duration = DefaultStreamDuration
	}
	return &StreamLedger{
		Duration: duration,
		streams:  make(map[common.Address]*Stream),
	}
}

// Whitelist admits a reward token. The set is append-only and capped so the
// per-sync token iteration stays small.
func (l *StreamLedger) Whitelist(token common.Address) error {
	if l.isWhitelisted(token) {
		return nil
	}
	if len(l.whitelist) >= MaxRewardTokens {
		return ErrTooManyRewardTokens
	}
	l.whitelist = append(l.whitelist, token)
	return nil
}

func (l *StreamLedger) isWhitelisted(token common.Address) bool {
	for _, t := range l.whitelist {
		if t == token {
			return true
		}
	}
	return false
}

// WhitelistedTokens returns the admitted tokens in admission order.
func (l *StreamLedger) WhitelistedTokens() []common.Address {
	out := make([]common.Address, len(l.whitelist))
	copy(out, l.whitelist)
	return out
}

// CreateIncentive starts or extends the token's stream. A fresh stream emits
// amount/duration for the full duration. Extending an active stream adds the
// new amount to what is still undistributed and restarts the window from now,
// so a top-up can never lower the effective payout below the in-flight rate.
func (l *StreamLedger) CreateIncentive(now uint64, token common.Address, amount *big.Int) (*Stream, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if !l.isWhitelisted(token) {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token.Hex())
	}

	s, ok := l.streams[token]
	if !ok {
		s = &Stream{Token: token, RatePerSecond: new(big.Int), Remaining: new(big.Int)}
		l.streams[token] = s
	}
	s.settle(now)

	remaining := new(big.Int).Set(amount)
	if s.Finish > now && s.RatePerSecond.Sign() > 0 {
		remaining.Add(remaining, s.Remaining)
	}
	s.Remaining = remaining
	s.RatePerSecond = new(big.Int).Div(remaining, new(big.Int).SetUint64(l.Duration))
	s.Finish = now + l.Duration
	s.lastSettle = now
	return s, nil
}

// settle advances Remaining to now and zeroes the rate once expired. Elapsed
// time counts against the stream whether or not any liquidity was in range;
// undistributed amounts stay in the pool's held balance.
func (s *Stream) settle(now uint64) {
	if now <= s.lastSettle || s.RatePerSecond.Sign() == 0 {
		if now > s.lastSettle {
			s.lastSettle = now
		}
		return
	}

	until := now
	if until > s.Finish {
		until = s.Finish
	}
	if until > s.lastSettle {
		spent := new(big.Int).SetUint64(until - s.lastSettle)
		spent.Mul(spent, s.RatePerSecond)
		s.Remaining.Sub(s.Remaining, spent)
		if s.Remaining.Sign() < 0 {
			s.Remaining.SetInt64(0)
		}
	}
	s.lastSettle = now

	if now >= s.Finish {
		s.RatePerSecond = new(big.Int)
	}
}

// Settle advances every stream to now.
func (l *StreamLedger) Settle(now uint64) {
	for _, token := range l.whitelist {
		if s, ok := l.streams[token]; ok {
			s.settle(now)
		}
	}
}

// ActiveRates returns tokens and rates with live emission at now, in
// whitelist order, for handing straight to Accumulator.Sync.
func (l *StreamLedger) ActiveRates(now uint64) ([]common.Address, []*big.Int) {
	tokens := make([]common.Address, 0, len(l.whitelist))
	rates := make([]*big.Int, 0, len(l.whitelist))
	for _, token := range l.whitelist {
		s, ok := l.streams[token]
		if !ok || s.RatePerSecond.Sign() == 0 || now >= s.Finish {
			continue
		}
		tokens = append(tokens, token)
		rates = append(rates, new(big.Int).Set(s.RatePerSecond))
	}
	return tokens, rates
}

// StreamFor returns the token's stream, nil if none was ever created.
func (l *StreamLedger) StreamFor(token common.Address) *Stream {
	return l.streams[token]
}

// RemainingTotal sums the undistributed amount across all streams at now.
func (l *StreamLedger) RemainingTotal(now uint64) *big.Int {
	total := new(big.Int)
	for _, token := range l.whitelist {
		s, ok := l.streams[token]
		if !ok || s.RatePerSecond.Sign() == 0 {
			continue
		}
		until := now
		if until > s.Finish {
			until = s.Finish
		}
		left := new(big.Int).Set(s.Remaining)
		if until > s.lastSettle {
			spent := new(big.Int).SetUint64(until - s.lastSettle)
			spent.Mul(spent, s.RatePerSecond)
			left.Sub(left, spent)
		}
		if left.Sign() > 0 {
			total.Add(total, left)
		}
	}
	return total
}
