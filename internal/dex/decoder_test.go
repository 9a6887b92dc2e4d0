package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3PoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{
			poolABI.Events["Swap"].ID,
			topicFromAddress(sender),
			topicFromAddress(recipient),
		},
		Data: data,
	}

	swap, err := decoder.DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if swap.Amount0 != "-1000" || swap.Amount1 != "2000" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Sender != sender.Hex() || swap.Recipient != recipient.Hex() {
		t.Fatalf("address mismatch")
	}
}

func TestDecodeMintAndBurn(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3PoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	owner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	mintData, err := poolABI.Events["Mint"].Inputs.NonIndexed().Pack(
		sender,
		big.NewInt(5000),
		big.NewInt(100),
		big.NewInt(200),
	)
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}

	mint, err := decoder.DecodeMint(types.Log{
		Topics: []common.Hash{
			poolABI.Events["Mint"].ID,
			topicFromAddress(owner),
			topicFromInt24(-120),
			topicFromInt24(120),
		},
		Data: mintData,
	})
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	if mint.TickLower != -120 || mint.TickUpper != 120 {
		t.Fatalf("mint tick mismatch: %+v", mint)
	}
	if mint.Amount != "5000" || mint.Owner != owner.Hex() {
		t.Fatalf("mint mismatch: %+v", mint)
	}

	burnData, err := poolABI.Events["Burn"].Inputs.NonIndexed().Pack(
		big.NewInt(7000),
		big.NewInt(300),
		big.NewInt(400),
	)
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}

	burn, err := decoder.DecodeBurn(types.Log{
		Topics: []common.Hash{
			poolABI.Events["Burn"].ID,
			topicFromAddress(owner),
			topicFromInt24(-60),
			topicFromInt24(60),
		},
		Data: burnData,
	})
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}
	if burn.Amount != "7000" {
		t.Fatalf("burn amount mismatch: %+v", burn)
	}
	if burn.TickLower != -60 || burn.TickUpper != 60 {
		t.Fatalf("burn tick mismatch: %+v", burn)
	}
}

func TestEventNameLookup(t *testing.T) {
	decoder, err := NewV3PoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if topics := decoder.Topics(); len(topics) != 3 {
		t.Fatalf("topics = %d, want 3", len(topics))
	}
	for _, topic := range decoder.Topics() {
		if _, ok := decoder.EventName(topic); !ok {
			t.Fatalf("topic %s not resolvable", topic.Hex())
		}
	}
	if _, ok := decoder.EventName(common.Hash{0xff}); ok {
		t.Fatalf("unknown topic resolved")
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}
