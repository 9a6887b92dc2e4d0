package rewards

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rewardScope/internal/model"
)

// Transferrer pays out claimed rewards. Implementations may run arbitrary
// external code (token hooks), so the distributor commits all internal state
// before calling it and rejects re-entered claims.
type Transferrer interface {
	Transfer(token common.Address, recipient common.Address, amount *big.Int) error
}

// Pool bundles one pool's accumulator with its two reward pipelines.
type Pool struct {
	ID          model.PoolID
	RewardToken common.Address
	Acc         *Accumulator
	Epoch       *EpochPipeline
	Streams     *StreamLedger
}

// Config carries the distributor's authorization and pipeline settings.
type Config struct {
	// Authority may whitelist tokens and create incentive streams.
	Authority common.Address
	// Depositor is the sole caller allowed to deposit pipeline rewards.
	Depositor common.Address
	// StreamDuration overrides the default incentive stream window.
	StreamDuration uint64
}

// Distributor owns every pool's reward state, all position accrual records,
// and the owner claim index. It is not safe for concurrent use; callers
// serialize access and feed events in observed order.
type Distributor struct {
	cfg      Config
	transfer Transferrer
	logger   *zap.Logger

	pools      map[model.PoolID]*Pool
	positions  map[model.PositionKey]*Position
	ownerIndex map[common.Address]map[model.PoolID][]model.PositionKey

	// balances is what each reward token's deposits minus claims leave held;
	// deposited is the all-time deposit total per token.
	balances  map[common.Address]*big.Int
	deposited map[common.Address]*big.Int

	claiming bool
}

// NewDistributor builds a distributor with an injected payout transferrer.
func NewDistributor(cfg Config, transfer Transferrer, logger *zap.Logger) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributor{
		cfg:        cfg,
		transfer:   transfer,
		logger:     logger,
		pools:      make(map[model.PoolID]*Pool),
		positions:  make(map[model.PositionKey]*Position),
		ownerIndex: make(map[common.Address]map[model.PoolID][]model.PositionKey),
		balances:   make(map[common.Address]*big.Int),
		deposited:  make(map[common.Address]*big.Int),
	}
}

// RegisterPool adds a pool with its pipeline reward token.
func (d *Distributor) RegisterPool(now uint64, id model.PoolID, rewardToken common.Address, tickSpacing, activeTick int32) error {
	if _, ok := d.pools[id]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, id.Hex())
	}
	acc, err := NewAccumulator(tickSpacing, activeTick, now)
	if err != nil {
		return err
	}
	d.pools[id] = &Pool{
		ID:          id,
		RewardToken: rewardToken,
		Acc:         acc,
		Epoch:       NewEpochPipeline(now),
		Streams:     NewStreamLedger(d.cfg.StreamDuration),
	}
	d.logger.Info("pool registered",
		zap.String("pool", id.Hex()),
		zap.String("reward_token", rewardToken.Hex()),
		zap.Int32("tick_spacing", tickSpacing),
		zap.Int32("active_tick", activeTick),
	)
	return nil
}

func (d *Distributor) pool(id model.PoolID) (*Pool, error) {
	p, ok := d.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, id.Hex())
	}
	return p, nil
}

// rewardTokens returns the pipeline token plus the stream whitelist, deduped,
// in a stable order.
func (p *Pool) rewardTokens() []common.Address {
	tokens := make([]common.Address, 0, 1+MaxRewardTokens)
	tokens = append(tokens, p.RewardToken)
	for _, t := range p.Streams.WhitelistedTokens() {
		if t != p.RewardToken {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// currentRates sums the pipeline rate and any live stream rate per token.
func (p *Pool) currentRates(now uint64) map[common.Address]*big.Int {
	rates := make(map[common.Address]*big.Int)
	if p.Epoch.StreamRate.Sign() > 0 {
		rates[p.RewardToken] = new(big.Int).Set(p.Epoch.StreamRate)
	}
	tokens, streamRates := p.Streams.ActiveRates(now)
	for i, token := range tokens {
		r, ok := rates[token]
		if !ok {
			r = new(big.Int)
			rates[token] = r
		}
		r.Add(r, streamRates[i])
	}
	return rates
}

// syncPool advances a pool to now. The elapsed interval is cut at every day
// boundary so each segment accrues under the stream rate that was active
// during it, with the epoch rotation applied exactly at the boundary; a poke
// after a long gap can therefore never apply a freshly-activated rate to
// days that streamed at zero.
func (d *Distributor) syncPool(p *Pool, now uint64, newActiveTick int32) error {
	for p.Epoch.WindowEnd <= now {
		boundary := p.Epoch.WindowEnd
		if err := d.syncStep(p, boundary, p.Acc.ActiveTick); err != nil {
			return err
		}
		p.Epoch.RollIfNeeded(boundary)
	}
	return d.syncStep(p, now, newActiveTick)
}

// syncStep drives one accumulator sync at ts with every rate live at ts,
// then settles the streams. Streams whose finish has passed contribute
// nothing; their rate is zeroed by the settle.
func (d *Distributor) syncStep(p *Pool, ts uint64, newActiveTick int32) error {
	tokens := []common.Address{p.RewardToken}
	rates := []*big.Int{p.Epoch.StreamRate}
	streamTokens, streamRates := p.Streams.ActiveRates(ts)
	tokens = append(tokens, streamTokens...)
	rates = append(rates, streamRates...)

	if err := p.Acc.Sync(ts, tokens, rates, newActiveTick); err != nil {
		return fmt.Errorf("sync pool %s: %w", p.ID.Hex(), err)
	}
	p.Streams.Settle(ts)
	return nil
}

// PokePool advances a pool to now with the active tick reported by the pool
// manager. Idempotent and safe to call redundantly.
func (d *Distributor) PokePool(now uint64, id model.PoolID, activeTick int32) error {
	p, err := d.pool(id)
	if err != nil {
		return err
	}
	return d.syncPool(p, now, activeTick)
}

// AddRewards deposits amount into the pool's day-quantized pipeline. Only the
// configured depositor may call it; it is the sole writer of the day buckets.
func (d *Distributor) AddRewards(now uint64, caller common.Address, id model.PoolID, amount *big.Int) error {
	if caller != d.cfg.Depositor {
		return fmt.Errorf("%w: depositor only", ErrUnauthorized)
	}
	p, err := d.pool(id)
	if err != nil {
		return err
	}
	if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
		return err
	}
	if err := p.Epoch.AddRewards(now, amount); err != nil {
		return err
	}
	d.credit(p.RewardToken, amount)
	d.logger.Info("rewards deposited",
		zap.String("pool", id.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("stream_day", dayIndex(now)+bucketDelayDays),
	)
	return nil
}

// WhitelistToken admits a reward token for incentive streams on a pool.
func (d *Distributor) WhitelistToken(caller common.Address, id model.PoolID, token common.Address) error {
	if caller != d.cfg.Authority {
		return fmt.Errorf("%w: authority only", ErrUnauthorized)
	}
	p, err := d.pool(id)
	if err != nil {
		return err
	}
	return p.Streams.Whitelist(token)
}

// CreateIncentive starts or extends the token's incentive stream on a pool.
func (d *Distributor) CreateIncentive(now uint64, caller common.Address, id model.PoolID, token common.Address, amount *big.Int) error {
	if caller != d.cfg.Authority {
		return fmt.Errorf("%w: authority only", ErrUnauthorized)
	}
	p, err := d.pool(id)
	if err != nil {
		return err
	}
	if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
		return err
	}
	s, err := p.Streams.CreateIncentive(now, token, amount)
	if err != nil {
		return err
	}
	d.credit(token, amount)
	d.logger.Info("incentive created",
		zap.String("pool", id.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
		zap.String("rate", s.RatePerSecond.String()),
		zap.Uint64("finish", s.Finish),
	)
	return nil
}

func (d *Distributor) credit(token common.Address, amount *big.Int) {
	bal, ok := d.balances[token]
	if !ok {
		bal = new(big.Int)
		d.balances[token] = bal
	}
	bal.Add(bal, amount)

	dep, ok := d.deposited[token]
	if !ok {
		dep = new(big.Int)
		d.deposited[token] = dep
	}
	dep.Add(dep, amount)
}

// NotifySubscribe registers liquidity for an owner's range, creating the
// position record on first deposit and indexing it for owner-wide claims.
func (d *Distributor) NotifySubscribe(now uint64, id model.PoolID, owner common.Address, salt [32]byte, tickLower, tickUpper int32, liquidity *big.Int) (model.PositionKey, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return model.PositionKey{}, ErrZeroAmount
	}
	p, err := d.pool(id)
	if err != nil {
		return model.PositionKey{}, err
	}
	if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
		return model.PositionKey{}, err
	}

	key := model.DerivePositionKey(owner, id, tickLower, tickUpper, salt)
	pos, exists := d.positions[key]
	if exists && pos.Liquidity.Sign() > 0 {
		if err := d.accrueAll(p, pos); err != nil {
			return model.PositionKey{}, err
		}
	}

	if err := p.Acc.ModifyLiquidity(tickLower, tickUpper, liquidity); err != nil {
		return model.PositionKey{}, err
	}

	if !exists {
		pos = newPosition(key, id, owner, tickLower, tickUpper)
		d.positions[key] = pos
		d.indexPosition(owner, id, key)
	}
	if pos.Liquidity.Sign() == 0 {
		// First liquidity for this record (or a re-subscription after a
		// burn): the snapshot starts at the live range value so no past
		// interval is credited.
		if err := d.resetSnapshots(p, pos); err != nil {
			return model.PositionKey{}, err
		}
	}
	pos.Liquidity.Add(pos.Liquidity, liquidity)
	return key, nil
}

// NotifyModifyLiquidity applies a signed liquidity change to a subscribed
// position, accruing its rewards first so no interval is attributed to the
// wrong liquidity amount.
func (d *Distributor) NotifyModifyLiquidity(now uint64, key model.PositionKey, liquidityDelta *big.Int) error {
	pos, err := d.position(key)
	if err != nil {
		return err
	}
	p, err := d.pool(pos.Pool)
	if err != nil {
		return err
	}
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return nil
	}
	if liquidityDelta.Sign() < 0 {
		need := new(big.Int).Neg(liquidityDelta)
		if pos.Liquidity.Cmp(need) < 0 {
			return fmt.Errorf("%w: position %s", ErrLiquidityUnderflow, key.Hex())
		}
	}

	if err := d.syncPool(p, now, p.Acc.ActiveTick); err != nil {
		return err
	}
	if pos.Liquidity.Sign() > 0 {
		if err := d.accrueAll(p, pos); err != nil {
			return err
		}
	}
	if err := p.Acc.ModifyLiquidity(pos.TickLower, pos.TickUpper, liquidityDelta); err != nil {
		return err
	}
	if pos.Liquidity.Sign() == 0 {
		if err := d.resetSnapshots(p, pos); err != nil {
			return err
		}
	}
	pos.Liquidity.Add(pos.Liquidity, liquidityDelta)
	return nil
}

// NotifyUnsubscribe removes all of a position's liquidity. Accrued, unclaimed
// rewards survive; the index entry is pruned lazily on the next claim.
func (d *Distributor) NotifyUnsubscribe(now uint64, key model.PositionKey) error {
	pos, err := d.position(key)
	if err != nil {
		return err
	}
	if pos.Liquidity.Sign() == 0 {
		return nil
	}
	return d.NotifyModifyLiquidity(now, key, new(big.Int).Neg(pos.Liquidity))
}

// NotifyBurn is unsubscription on NFT burn; same deferred-cleanup policy.
func (d *Distributor) NotifyBurn(now uint64, key model.PositionKey) error {
	return d.NotifyUnsubscribe(now, key)
}

func (d *Distributor) position(key model.PositionKey) (*Position, error) {
	pos, ok := d.positions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, key.Hex())
	}
	return pos, nil
}

func (d *Distributor) accrueAll(p *Pool, pos *Position) error {
	for _, token := range p.rewardTokens() {
		rv, err := p.Acc.RangeValue(token, pos.TickLower, pos.TickUpper)
		if err != nil {
			return err
		}
		if err := pos.Accrue(token, rv); err != nil {
			return err
		}
	}
	return nil
}

func (d *Distributor) resetSnapshots(p *Pool, pos *Position) error {
	for _, token := range p.rewardTokens() {
		rv, err := p.Acc.RangeValue(token, pos.TickLower, pos.TickUpper)
		if err != nil {
			return err
		}
		pos.SnapshotX128[token] = rv
	}
	return nil
}

func (d *Distributor) indexPosition(owner common.Address, id model.PoolID, key model.PositionKey) {
	pools, ok := d.ownerIndex[owner]
	if !ok {
		pools = make(map[model.PoolID][]model.PositionKey)
		d.ownerIndex[owner] = pools
	}
	pools[id] = append(pools[id], key)
}

func (d *Distributor) unindexPosition(owner common.Address, id model.PoolID, key model.PositionKey) {
	pools, ok := d.ownerIndex[owner]
	if !ok {
		return
	}
	keys := pools[id]
	for i, k := range keys {
		if k == key {
			keys[i] = keys[len(keys)-1]
			pools[id] = keys[:len(keys)-1]
			break
		}
	}
	if len(pools[id]) == 0 {
		delete(pools, id)
	}
	if len(pools) == 0 {
		delete(d.ownerIndex, owner)
	}
}

// Balance returns the held balance for a reward token.
func (d *Distributor) Balance(token common.Address) *big.Int {
	if bal, ok := d.balances[token]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Deposited returns the all-time deposit total for a reward token.
func (d *Distributor) Deposited(token common.Address) *big.Int {
	if dep, ok := d.deposited[token]; ok {
		return new(big.Int).Set(dep)
	}
	return new(big.Int)
}

// PositionLiquidity returns a position's current liquidity.
func (d *Distributor) PositionLiquidity(key model.PositionKey) (*big.Int, error) {
	pos, err := d.position(key)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pos.Liquidity), nil
}

// Pools lists registered pool ids.
func (d *Distributor) Pools() []model.PoolID {
	out := make([]model.PoolID, 0, len(d.pools))
	for id := range d.pools {
		out = append(out, id)
	}
	return out
}

// PositionCount reports how many position records exist.
func (d *Distributor) PositionCount() int {
	return len(d.positions)
}
