// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package poolmgr implements the singleton pool ledger precompile the
// liquidity orchestrator settles against. It keeps Uniswap v4-style pool and
// position bookkeeping with flash accounting, but carries no swap or price
// math: liquidity changes are quoted from tick-range occupancy alone.
package poolmgr

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Gas costs for pool ledger operations
const (
	GasPoolCreate     uint64 = 50_000 // Create new pool
	GasModifyLiq      uint64 = 20_000 // Add or remove liquidity
	GasSettlement     uint64 = 8_000  // Settle one currency leg
	GasPoolLookup     uint64 = 100    // Pool state lookup
	GasPositionLookup uint64 = 100    // Position state lookup
	GasQuote          uint64 = 500    // Liquidity amount quote
	GasTokenLookup    uint64 = 100    // Token book balance lookup
)

// Pool fee tiers (hundredths of a bip)
const (
	Fee001 uint32 = 100    // 0.01% - stablecoins
	Fee005 uint32 = 500    // 0.05% - stable pairs
	Fee030 uint32 = 3000   // 0.30% - standard
	Fee100 uint32 = 10000  // 1.00% - exotic pairs
	FeeMax uint32 = 100000 // 10% max fee
)

// Tick spacing for the standard fee tiers
const (
	TickSpacing001 int32 = 1
	TickSpacing005 int32 = 10
	TickSpacing030 int32 = 60
	TickSpacing100 int32 = 200
)

// Tick bounds
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Errors - pool ledger
var (
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrMaxPoolsReached        = errors.New("max pools reached")
	ErrInvalidTickRange       = errors.New("invalid tick range")
	ErrTickOutOfRange         = errors.New("tick out of range")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrCurrencyNotSorted      = errors.New("currencies not sorted")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNotUnlocked            = errors.New("pool ledger not unlocked")
	ErrInvalidUnlockToken     = errors.New("invalid unlock token")
	ErrNonZeroDelta           = errors.New("non-zero balance delta after settlement")
	ErrZeroLiquidityDelta     = errors.New("zero liquidity delta")
)

// Currency represents a token (native or ERC20).
// Address(0) represents the native asset.
type Currency struct {
	Address common.Address
}

// NativeCurrency is the native asset (no wrapping needed)
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the native asset
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes currency for storage
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// CurrencyFromBytes deserializes currency from storage
func CurrencyFromBytes(data []byte) Currency {
	return Currency{Address: common.BytesToAddress(data)}
}

// PoolKey uniquely identifies a pool.
// Currencies must be sorted by address (currency0 < currency1).
type PoolKey struct {
	Currency0   Currency       // Lower address token
	Currency1   Currency       // Higher address token
	Fee         uint32         // Fee in hundredths of a bip
	TickSpacing int32          // Tick spacing for concentrated liquidity
	Hooks       common.Address // Hook contract address (zero = no hooks)
}

// ID computes the unique pool identifier from the pool configuration.
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], pk.Fee)
	h.Write(feeBytes[:])

	var tickBytes [4]byte
	binary.BigEndian.PutUint32(tickBytes[:], uint32(pk.TickSpacing))
	h.Write(tickBytes[:])

	h.Write(pk.Hooks.Bytes())

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// ToBytes serializes the pool key for storage: 20+20+4+4+20 bytes.
func (pk PoolKey) ToBytes() []byte {
	data := make([]byte, 68)
	copy(data[0:20], pk.Currency0.ToBytes())
	copy(data[20:40], pk.Currency1.ToBytes())
	binary.BigEndian.PutUint32(data[40:44], pk.Fee)
	binary.BigEndian.PutUint32(data[44:48], uint32(pk.TickSpacing))
	copy(data[48:68], pk.Hooks.Bytes())
	return data
}

// PoolKeyFromBytes deserializes a pool key from storage
func PoolKeyFromBytes(data []byte) (PoolKey, error) {
	if len(data) < 68 {
		return PoolKey{}, errors.New("invalid pool key data length")
	}
	return PoolKey{
		Currency0:   CurrencyFromBytes(data[0:20]),
		Currency1:   CurrencyFromBytes(data[20:40]),
		Fee:         binary.BigEndian.Uint32(data[40:44]),
		TickSpacing: int32(binary.BigEndian.Uint32(data[44:48])),
		Hooks:       common.BytesToAddress(data[48:68]),
	}, nil
}

// BalanceDelta represents the net token changes from a ledger operation.
// Positive = owed to the pool, negative = owed to the requester.
type BalanceDelta struct {
	Amount0 *big.Int // Currency0 delta (positive = requester owes pool)
	Amount1 *big.Int // Currency1 delta (positive = requester owes pool)
}

// NewBalanceDelta creates a new balance delta
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	}
}

// ZeroBalanceDelta returns a zero balance delta
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{
		Amount0: big.NewInt(0),
		Amount1: big.NewInt(0),
	}
}

// Add combines two balance deltas
func (bd BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(bd.Amount1, other.Amount1),
	}
}

// Negate inverts the balance delta signs
func (bd BalanceDelta) Negate() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(bd.Amount0),
		Amount1: new(big.Int).Neg(bd.Amount1),
	}
}

// IsZero returns true if both amounts are zero
func (bd BalanceDelta) IsZero() bool {
	return bd.Amount0.Sign() == 0 && bd.Amount1.Sign() == 0
}

// Pool is the ledger state of a single pool
type Pool struct {
	Initialized bool
	Tick        int32    // Current tick, fixed at initialization
	Liquidity   *big.Int // Total in-range liquidity
}

// NewPool creates a new uninitialized pool
func NewPool() *Pool {
	return &Pool{Liquidity: big.NewInt(0)}
}

// Position is a single liquidity position
type Position struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// PositionKey computes the unique position identifier. Positions are scoped
// to a pool, so the pool id participates in the hash.
func PositionKey(poolId [32]byte, owner common.Address, tickLower, tickUpper int32, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(poolId[:])
	h.Write(owner.Bytes())

	var tickBytes [8]byte
	binary.BigEndian.PutUint32(tickBytes[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(tickBytes[4:], uint32(tickUpper))
	h.Write(tickBytes[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// ModifyLiquidityParams contains parameters for adding/removing liquidity
type ModifyLiquidityParams struct {
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int // Positive = add, Negative = remove
	Salt           [32]byte // Position salt for uniqueness
}
