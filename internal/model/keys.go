package model

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolID identifies a pool by its 32-byte manager id.
type PoolID = common.Hash

// PositionKey identifies one liquidity range of one owner within a pool.
type PositionKey = common.Hash

// DerivePositionKey hashes owner, pool, tick range and salt into a stable key.
// The salt distinguishes multiple positions an owner holds over the same range.
func DerivePositionKey(owner common.Address, pool PoolID, tickLower, tickUpper int32, salt [32]byte) PositionKey {
	buf := make([]byte, 0, 20+32+4+4+32)
	buf = append(buf, owner.Bytes()...)
	buf = append(buf, pool.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(tickLower))
	buf = binary.BigEndian.AppendUint32(buf, uint32(tickUpper))
	buf = append(buf, salt[:]...)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// ParsePoolID parses a 0x-prefixed 32-byte hex pool id.
func ParsePoolID(s string) (PoolID, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return PoolID{}, fmt.Errorf("invalid pool id: %s", s)
	}
	return common.BytesToHash(b), nil
}
