package follow

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"rewardScope/internal/model"
)

// PoolBinding maps an on-chain pool contract to the engine pool it drives.
type PoolBinding struct {
	Address     string
	PoolID      model.PoolID
	RewardToken string
	TickSpacing int32
}

func registerRecord(seq, ts uint64, binding PoolBinding, ingestedAt time.Time) model.ActionRecord {
	return model.ActionRecord{
		Seq:         seq,
		Timestamp:   ts,
		Kind:        model.ActionRegisterPool,
		PoolID:      binding.PoolID.Hex(),
		RewardToken: binding.RewardToken,
		TickSpacing: binding.TickSpacing,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func pokeRecord(seq, ts uint64, binding PoolBinding, swap model.SwapEventData, log types.Log, ingestedAt time.Time) model.ActionRecord {
	return model.ActionRecord{
		Seq:         seq,
		Timestamp:   ts,
		Kind:        model.ActionPoke,
		PoolID:      binding.PoolID.Hex(),
		ActiveTick:  swap.Tick,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func subscribeRecord(seq, ts uint64, binding PoolBinding, mint model.MintEventData, log types.Log, ingestedAt time.Time) model.ActionRecord {
	return model.ActionRecord{
		Seq:            seq,
		Timestamp:      ts,
		Kind:           model.ActionSubscribe,
		PoolID:         binding.PoolID.Hex(),
		Owner:          mint.Owner,
		TickLower:      mint.TickLower,
		TickUpper:      mint.TickUpper,
		LiquidityDelta: mint.Amount,
		BlockNumber:    log.BlockNumber,
		TxHash:         log.TxHash.Hex(),
		IngestedAt:     ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func burnRecord(seq, ts uint64, binding PoolBinding, burn model.BurnEventData, log types.Log, ingestedAt time.Time) model.ActionRecord {
	return model.ActionRecord{
		Seq:            seq,
		Timestamp:      ts,
		Kind:           model.ActionModifyLiquidity,
		PoolID:         binding.PoolID.Hex(),
		Owner:          burn.Owner,
		TickLower:      burn.TickLower,
		TickUpper:      burn.TickUpper,
		LiquidityDelta: "-" + burn.Amount,
		BlockNumber:    log.BlockNumber,
		TxHash:         log.TxHash.Hex(),
		IngestedAt:     ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
