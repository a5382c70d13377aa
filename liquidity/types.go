// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package liquidity implements the cross-chain liquidity orchestrator
// precompile: a hook in front of the pool ledger that splits liquidity
// removals across chains according to registered strategies, withholds the
// non-local shares as pending cross-chain orders, and settles the locally
// applied remainder through the ledger's flash-accounting session.
package liquidity

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Gas costs for orchestrator operations
const (
	GasRegisterStrategy uint64 = 30_000 // Persist a splitting strategy
	GasStrategyLookup   uint64 = 300    // Strategy read
	GasSetController    uint64 = 20_000 // Controller transfer
	GasControllerLookup uint64 = 100    // Controller read
	GasModifyLiquidity  uint64 = 60_000 // Split + ledger apply + settlement
	GasOrderLookup      uint64 = 300    // Pending order read
	GasOrderCount       uint64 = 100    // Per-pool order count read
	GasDispatchOrder    uint64 = 45_000 // Build + send remainder order message
)

// MaxStrategyEntries bounds a strategy's target list. Percentages are
// whole numbers summing to 100, so more entries than that cannot carry a
// nonzero share anyway.
const MaxStrategyEntries = 100

// Errors - strategy registry and access gate
var (
	ErrDuplicateStrategy   = errors.New("strategy already registered")
	ErrLengthMismatch      = errors.New("targets and percentages length mismatch")
	ErrInvalidDistribution = errors.New("percentages must be in (0,100] and sum to 100")
	ErrStrategyTooLarge    = errors.New("too many strategy entries")
	ErrUnauthorized        = errors.New("caller is not the controller")
)

// Errors - settlement engine and order tracker
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPending = errors.New("order is not pending")
)

// Strategy describes how a liquidity removal is split across chains.
// Targets[i] is an EVM chain ID and Percentages[i] its whole-number share.
// The arrays are parallel; duplicate targets are allowed, each entry is an
// independent split.
type Strategy struct {
	Targets     []uint32
	Percentages []uint16
}

// Validate checks the structural rules a strategy must satisfy before it
// can be persisted: parallel non-empty arrays, every percentage in (0,100],
// and an exact sum of 100.
func (s Strategy) Validate() error {
	if len(s.Targets) == 0 || len(s.Targets) != len(s.Percentages) {
		return ErrLengthMismatch
	}
	if len(s.Targets) > MaxStrategyEntries {
		return ErrStrategyTooLarge
	}
	sum := uint32(0)
	for _, pct := range s.Percentages {
		if pct == 0 || pct > 100 {
			return ErrInvalidDistribution
		}
		sum += uint32(pct)
	}
	if sum != 100 {
		return ErrInvalidDistribution
	}
	return nil
}

// OrderStatus tracks a pending order's lifecycle.
type OrderStatus uint8

const (
	OrderPending    OrderStatus = iota // Withheld, not yet sent cross-chain
	OrderDispatched                    // Remainder order message sent
	OrderFulfilled                     // Remote application confirmed
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderDispatched:
		return "dispatched"
	case OrderFulfilled:
		return "fulfilled"
	default:
		return "unknown"
	}
}

// PendingOrder records a withheld non-local share of a liquidity removal.
// Liquidity and the quoted amounts are positive magnitudes; the order says
// "this much still has to come out on TargetChainID".
type PendingOrder struct {
	OrderID       common.Hash
	PoolID        [32]byte
	Sequence      uint64
	TargetChainID uint32
	Requester     common.Address
	Liquidity     *big.Int
	Amount0       *big.Int
	Amount1       *big.Int
	TickLower     int32
	TickUpper     int32
	Status        OrderStatus
	CreatedAt     uint64
	MessageID     common.Hash // Set once dispatched
}

// OrderIDFor derives the globally unique order identifier for the
// [sequence]-th order of pool [poolId]. The ID travels in cross-chain
// messages, so remote application can be idempotent.
func OrderIDFor(poolId [32]byte, sequence uint64) common.Hash {
	buf := make([]byte, 0, 40)
	buf = append(buf, poolId[:]...)
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	return makeStorageKey(orderPrefix, buf)
}

// Storage key prefixes
var (
	strategyPrefix  = []byte("strategy") // strategy header + entry slots
	orderPrefix     = []byte("order")    // order IDs
	orderDataPrefix = []byte("ordata")   // order record slots
	orderSeqPrefix  = []byte("ordseq")   // per-pool sequence counters
	configPrefix    = []byte("conf")     // controller, chain ID, holder
)

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	copy(key[:], h.Sum(nil))
	return key
}

// slotAdd returns the storage slot [offset] words after [base]. Multi-word
// records occupy consecutive slots derived this way.
func slotAdd(base common.Hash, offset uint64) common.Hash {
	n := new(big.Int).SetBytes(base[:])
	n.Add(n, new(big.Int).SetUint64(offset))
	return common.BigToHash(n)
}
