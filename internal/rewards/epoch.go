package rewards

import "math/big"

// DaySeconds is the epoch quantum of the single-token pipeline.
const DaySeconds = 86400

// bucketDelayDays is how many day boundaries a deposit waits before it
// streams. A deposit on day N is queued through day N+1 and activates on day
// N+2, so a last-second deposit is never immediately streamable.
const bucketDelayDays = 2

// EpochPipeline is the per-pool day-quantized reward pipeline. Deposits land
// in a future day bucket; each day-boundary roll rotates the bucket's derived
// rate through queued -> next -> stream. The pipeline never terminates, it
// decays to a zero rate once buckets run out.
type EpochPipeline struct {
	WindowStart uint64
	WindowEnd   uint64

	// StreamRate is the active emission in token units per second. NextRate
	// activates at the coming roll, QueuedRate at the roll after that.
	StreamRate *big.Int
	NextRate   *big.Int
	QueuedRate *big.Int

	// buckets holds scheduled amounts by day index, cleared as each bucket's
	// rate is promoted into the rotation. Rate conversion floors; the
	// residue stays in the pool's held balance and is never streamed.
	buckets map[uint64]*big.Int
}

// NewEpochPipeline starts an idle pipeline on the day window containing now.
func NewEpochPipeline(now uint64) *EpochPipeline {
	start := now - now%DaySeconds
	return &EpochPipeline{
		WindowStart: start,
		WindowEnd:   start + DaySeconds,
		StreamRate:  new(big.Int),
		NextRate:    new(big.Int),
		QueuedRate:  new(big.Int),
		buckets:     make(map[uint64]*big.Int),
	}
}

func dayIndex(ts uint64) uint64 {
	return ts / DaySeconds
}

// AddRewards schedules amount into the bucket two day boundaries out and
// refreshes the queued rate. Rolls first so a long-idle pipeline lands the
// deposit relative to the current day.
func (e *EpochPipeline) AddRewards(now uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	e.RollIfNeeded(now)

	day := dayIndex(now) + bucketDelayDays
	bucket, ok := e.buckets[day]
	if !ok {
		bucket = new(big.Int)
		e.buckets[day] = bucket
	}
	bucket.Add(bucket, amount)
	e.QueuedRate = new(big.Int).Div(bucket, big.NewInt(DaySeconds))
	return nil
}

// RollIfNeeded performs one rate rotation per day boundary crossed since the
// last roll. Idempotent; long gaps fast-forward in a single call, consuming
// missed buckets in order.
func (e *EpochPipeline) RollIfNeeded(now uint64) {
	current := dayIndex(now)
	for day := dayIndex(e.WindowStart); day < current; day++ {
		newDay := day + 1
		e.StreamRate = e.NextRate
		e.NextRate = e.promoteBucket(newDay + 1)
		e.WindowStart += DaySeconds
		e.WindowEnd += DaySeconds
	}
	if dayIndex(e.WindowStart) == current {
		e.QueuedRate = e.bucketRate(current + bucketDelayDays)
	}
}

func (e *EpochPipeline) promoteBucket(day uint64) *big.Int {
	rate := e.bucketRate(day)
	delete(e.buckets, day)
	return rate
}

func (e *EpochPipeline) bucketRate(day uint64) *big.Int {
	bucket, ok := e.buckets[day]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Div(bucket, big.NewInt(DaySeconds))
}

// ScheduledBuckets returns a copy of the pending day buckets.
func (e *EpochPipeline) ScheduledBuckets() map[uint64]*big.Int {
	out := make(map[uint64]*big.Int, len(e.buckets))
	for day, amount := range e.buckets {
		out[day] = new(big.Int).Set(amount)
	}
	return out
}

// ScheduledTotal sums every bucket not yet promoted into the rotation.
func (e *EpochPipeline) ScheduledTotal() *big.Int {
	total := new(big.Int)
	for _, amount := range e.buckets {
		total.Add(total, amount)
	}
	return total
}
