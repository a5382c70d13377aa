// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/zeebo/blake3"

	"github.com/zekiblue/cclo/contract"
)

// Storage key prefixes for ledger state
var (
	poolStatePrefix     = []byte("pool")
	poolLiquidityPrefix = []byte("pliq")
	positionPrefix      = []byte("posn")
	tokenBookPrefix     = []byte("tokn")
	configPrefix        = []byte("conf")
)

// PoolLedger is the singleton pool bookkeeper. All pools live behind one
// address, so settlement nets against a single custodial balance and the
// token book. Liquidity can only be applied inside an Unlock session: the
// session hands out an UnlockToken, and every mutating operation demands the
// token of the innermost active session.
type PoolLedger struct {
	// addr is the precompile address holding pooled funds
	addr common.Address

	mu       sync.Mutex
	sessions []*UnlockToken
	nextID   uint64
}

// UnlockToken is the capability issued by Unlock. It cannot be forged or
// reused: the ledger only honors the token of the innermost live session.
type UnlockToken struct {
	sender common.Address
	id     uint64
	deltas map[Currency]*big.Int
}

// Sender returns the account the session was opened for.
func (t *UnlockToken) Sender() common.Address {
	return t.sender
}

// Delta returns a copy of the session's outstanding delta for [currency].
func (t *UnlockToken) Delta(currency Currency) *big.Int {
	if d, ok := t.deltas[currency]; ok {
		return new(big.Int).Set(d)
	}
	return big.NewInt(0)
}

// NewPoolLedger creates a pool ledger custodied at [addr].
func NewPoolLedger(addr common.Address) *PoolLedger {
	return &PoolLedger{addr: addr}
}

// Address returns the ledger's custodial address.
func (pl *PoolLedger) Address() common.Address {
	return pl.addr
}

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// =========================================================================
// Flash Accounting - Unlock Sessions
// =========================================================================

// Unlock opens a flash-accounting session for [sender] and runs [fn] with the
// session's capability token. When [fn] returns, every currency delta the
// session accumulated must have been settled back to zero.
func (pl *PoolLedger) Unlock(
	stateDB contract.StateDB,
	sender common.Address,
	fn func(*UnlockToken) error,
) error {
	pl.mu.Lock()
	pl.nextID++
	tok := &UnlockToken{
		sender: sender,
		id:     pl.nextID,
		deltas: make(map[Currency]*big.Int),
	}
	pl.sessions = append(pl.sessions, tok)
	pl.mu.Unlock()

	defer func() {
		pl.mu.Lock()
		if n := len(pl.sessions); n > 0 && pl.sessions[n-1] == tok {
			pl.sessions = pl.sessions[:n-1]
		}
		pl.mu.Unlock()
	}()

	if err := fn(tok); err != nil {
		return err
	}

	return pl.verifySettlement(tok)
}

// requireActive returns an error unless [tok] is the innermost live session.
func (pl *PoolLedger) requireActive(tok *UnlockToken) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(pl.sessions) == 0 {
		return ErrNotUnlocked
	}
	if tok == nil || pl.sessions[len(pl.sessions)-1] != tok {
		return ErrInvalidUnlockToken
	}
	return nil
}

// verifySettlement ensures all deltas of the session are zero
func (pl *PoolLedger) verifySettlement(tok *UnlockToken) error {
	for currency, delta := range tok.deltas {
		if delta.Sign() != 0 {
			return fmt.Errorf("%w: currency=%s, delta=%s",
				ErrNonZeroDelta, currency.Address.Hex(), delta.String())
		}
	}
	return nil
}

// updateDelta accumulates a session delta for a currency
func (t *UnlockToken) updateDelta(currency Currency, delta *big.Int) {
	current, ok := t.deltas[currency]
	if !ok {
		current = big.NewInt(0)
	}
	t.deltas[currency] = new(big.Int).Add(current, delta)
}

// =========================================================================
// Pool Initialization
// =========================================================================

// Initialize creates a new pool at the given starting tick. It may be called
// outside an unlock session.
func (pl *PoolLedger) Initialize(
	stateDB contract.StateDB,
	key PoolKey,
	initialTick int32,
) error {
	if !currenciesSorted(key.Currency0, key.Currency1) {
		return ErrCurrencyNotSorted
	}
	if key.Fee > FeeMax {
		return ErrInvalidFee
	}
	if key.TickSpacing <= 0 {
		return ErrInvalidTickRange
	}
	if initialTick < MinTick || initialTick > MaxTick {
		return ErrTickOutOfRange
	}

	poolId := key.ID()
	pool := pl.getPool(stateDB, poolId)
	if pool.Initialized {
		return ErrPoolAlreadyInitialized
	}

	if max := pl.maxPools(stateDB); max > 0 && pl.poolCount(stateDB) >= max {
		return ErrMaxPoolsReached
	}

	pool.Initialized = true
	pool.Tick = initialTick
	pool.Liquidity = big.NewInt(0)
	pl.setPool(stateDB, poolId, pool)
	pl.setPoolCount(stateDB, pl.poolCount(stateDB)+1)

	return nil
}

// =========================================================================
// Liquidity
// =========================================================================

// ModifyLiquidity applies a liquidity change to the session sender's position
// and returns the balance delta the session now owes (positive) or is owed
// (negative). Only callable with the active session's token.
func (pl *PoolLedger) ModifyLiquidity(
	stateDB contract.StateDB,
	tok *UnlockToken,
	key PoolKey,
	params ModifyLiquidityParams,
) (BalanceDelta, error) {
	if err := pl.requireActive(tok); err != nil {
		return ZeroBalanceDelta(), err
	}

	if params.LiquidityDelta == nil || params.LiquidityDelta.Sign() == 0 {
		return ZeroBalanceDelta(), ErrZeroLiquidityDelta
	}
	if params.TickLower >= params.TickUpper {
		return ZeroBalanceDelta(), ErrInvalidTickRange
	}
	if params.TickLower < MinTick || params.TickUpper > MaxTick {
		return ZeroBalanceDelta(), ErrTickOutOfRange
	}

	poolId := key.ID()
	pool := pl.getPool(stateDB, poolId)
	if !pool.Initialized {
		return ZeroBalanceDelta(), ErrPoolNotInitialized
	}

	positionKey := PositionKey(poolId, tok.sender, params.TickLower, params.TickUpper, params.Salt)
	position := pl.getPosition(stateDB, positionKey)

	newLiquidity := new(big.Int).Add(position.Liquidity, params.LiquidityDelta)
	if newLiquidity.Sign() < 0 {
		return ZeroBalanceDelta(), ErrInsufficientLiquidity
	}

	amount0, amount1 := quoteAmounts(pool.Tick, params.TickLower, params.TickUpper, params.LiquidityDelta)

	if params.TickLower <= pool.Tick && pool.Tick < params.TickUpper {
		pool.Liquidity = new(big.Int).Add(pool.Liquidity, params.LiquidityDelta)
		if pool.Liquidity.Sign() < 0 {
			return ZeroBalanceDelta(), ErrInsufficientLiquidity
		}
	}

	position.Liquidity = newLiquidity
	position.Owner = tok.sender
	position.TickLower = params.TickLower
	position.TickUpper = params.TickUpper
	pl.setPosition(stateDB, positionKey, position)
	pl.setPool(stateDB, poolId, pool)

	callerDelta := NewBalanceDelta(amount0, amount1)
	tok.updateDelta(key.Currency0, callerDelta.Amount0)
	tok.updateDelta(key.Currency1, callerDelta.Amount1)

	return callerDelta, nil
}

// QuoteLiquidity quotes the token amounts a liquidity change would move,
// without touching any state. The sign convention matches ModifyLiquidity.
func (pl *PoolLedger) QuoteLiquidity(
	stateDB contract.StateDB,
	key PoolKey,
	tickLower, tickUpper int32,
	liquidityDelta *big.Int,
) (*big.Int, *big.Int, error) {
	pool := pl.getPool(stateDB, key.ID())
	if !pool.Initialized {
		return nil, nil, ErrPoolNotInitialized
	}
	if tickLower >= tickUpper {
		return nil, nil, ErrInvalidTickRange
	}
	amount0, amount1 := quoteAmounts(pool.Tick, tickLower, tickUpper, liquidityDelta)
	return amount0, amount1, nil
}

// quoteAmounts converts a liquidity delta into token amounts from tick-range
// occupancy. In-range liquidity is funded half per side; out-of-range
// liquidity is single-sided, token0 below the range and token1 above.
func quoteAmounts(currentTick, tickLower, tickUpper int32, liquidityDelta *big.Int) (*big.Int, *big.Int) {
	isActive := tickLower <= currentTick && currentTick < tickUpper

	var amount0, amount1 *big.Int
	switch {
	case isActive:
		if liquidityDelta.Sign() > 0 {
			amount0 = new(big.Int).Div(liquidityDelta, big.NewInt(2))
			amount1 = new(big.Int).Div(liquidityDelta, big.NewInt(2))
		} else {
			half := new(big.Int).Div(new(big.Int).Neg(liquidityDelta), big.NewInt(2))
			amount0 = new(big.Int).Neg(half)
			amount1 = new(big.Int).Neg(half)
		}
	case currentTick < tickLower:
		amount0 = new(big.Int).Set(liquidityDelta)
		amount1 = big.NewInt(0)
	default:
		amount0 = big.NewInt(0)
		amount1 = new(big.Int).Set(liquidityDelta)
	}
	return amount0, amount1
}

// =========================================================================
// Settlement
// =========================================================================

// Settle pays [amount] of [currency] from [payer] into the pool, reducing the
// session's outstanding delta. Amount must be positive.
func (pl *PoolLedger) Settle(
	stateDB contract.StateDB,
	tok *UnlockToken,
	payer common.Address,
	currency Currency,
	amount *big.Int,
) error {
	if err := pl.requireActive(tok); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	if currency.IsNative() {
		if err := pl.moveNative(stateDB, payer, pl.addr, amount); err != nil {
			return err
		}
	} else {
		if err := pl.moveToken(stateDB, currency.Address, payer, pl.addr, amount); err != nil {
			return err
		}
	}

	tok.updateDelta(currency, new(big.Int).Neg(amount))
	return nil
}

// Take pays [amount] of [currency] out of the pool to [recipient], increasing
// the session's outstanding delta. Amount must be positive.
func (pl *PoolLedger) Take(
	stateDB contract.StateDB,
	tok *UnlockToken,
	recipient common.Address,
	currency Currency,
	amount *big.Int,
) error {
	if err := pl.requireActive(tok); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	if currency.IsNative() {
		if err := pl.moveNative(stateDB, pl.addr, recipient, amount); err != nil {
			return err
		}
	} else {
		if err := pl.moveToken(stateDB, currency.Address, pl.addr, recipient, amount); err != nil {
			return err
		}
	}

	tok.updateDelta(currency, amount)
	return nil
}

// moveNative transfers native balance with an underflow check.
func (pl *PoolLedger) moveNative(stateDB contract.StateDB, from, to common.Address, amount *big.Int) error {
	amountU256, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInsufficientBalance
	}
	if stateDB.GetBalance(from).Cmp(amountU256) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientBalance, from.Hex())
	}
	stateDB.SubBalance(from, amountU256, tracing.BalanceChangeTransfer)
	stateDB.AddBalance(to, amountU256, tracing.BalanceChangeTransfer)
	return nil
}

// =========================================================================
// Token Book
// =========================================================================

// TokenBalance returns [holder]'s book balance of [token].
func (pl *PoolLedger) TokenBalance(stateDB contract.StateDB, token, holder common.Address) *big.Int {
	val := stateDB.GetState(pl.addr, tokenBalanceKey(token, holder))
	return new(big.Int).SetBytes(val[:])
}

// CreditToken records a deposit of [amount] of [token] to [holder]'s book
// balance. Used by genesis seeding and inbound bridge credits.
func (pl *PoolLedger) CreditToken(stateDB contract.StateDB, token, holder common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	bal := pl.TokenBalance(stateDB, token, holder)
	bal.Add(bal, amount)
	pl.setTokenBalance(stateDB, token, holder, bal)
}

// moveToken moves book balance between holders with an underflow check.
func (pl *PoolLedger) moveToken(stateDB contract.StateDB, token, from, to common.Address, amount *big.Int) error {
	fromBal := pl.TokenBalance(stateDB, token, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s account %s", ErrInsufficientBalance, token.Hex(), from.Hex())
	}
	fromBal.Sub(fromBal, amount)
	pl.setTokenBalance(stateDB, token, from, fromBal)

	toBal := pl.TokenBalance(stateDB, token, to)
	toBal.Add(toBal, amount)
	pl.setTokenBalance(stateDB, token, to, toBal)
	return nil
}

func (pl *PoolLedger) setTokenBalance(stateDB contract.StateDB, token, holder common.Address, amount *big.Int) {
	var val common.Hash
	amount.FillBytes(val[:])
	stateDB.SetState(pl.addr, tokenBalanceKey(token, holder), val)
}

func tokenBalanceKey(token, holder common.Address) common.Hash {
	id := make([]byte, 0, 40)
	id = append(id, token.Bytes()...)
	id = append(id, holder.Bytes()...)
	return makeStorageKey(tokenBookPrefix, id)
}

// =========================================================================
// State Access
// =========================================================================

// GetPool returns the pool for [key], or an error if it does not exist.
func (pl *PoolLedger) GetPool(stateDB contract.StateDB, key PoolKey) (*Pool, error) {
	pool := pl.getPool(stateDB, key.ID())
	if !pool.Initialized {
		return nil, ErrPoolNotInitialized
	}
	return pool, nil
}

// GetPosition returns [owner]'s position in the given range, which may have
// zero liquidity if never touched.
func (pl *PoolLedger) GetPosition(
	stateDB contract.StateDB,
	key PoolKey,
	owner common.Address,
	tickLower, tickUpper int32,
	salt [32]byte,
) *Position {
	pos := pl.getPosition(stateDB, PositionKey(key.ID(), owner, tickLower, tickUpper, salt))
	pos.Owner = owner
	pos.TickLower = tickLower
	pos.TickUpper = tickUpper
	return pos
}

// Pool state is two slots: a meta word (marker byte + tick) and a liquidity
// word. There is deliberately no memory cache; reads always reflect the
// StateDB so snapshot/revert stays authoritative.
func (pl *PoolLedger) getPool(stateDB contract.StateDB, poolId [32]byte) *Pool {
	pool := NewPool()

	meta := stateDB.GetState(pl.addr, poolMetaKey(poolId))
	if meta == (common.Hash{}) {
		return pool
	}
	pool.Initialized = meta[0] == 1
	pool.Tick = int32(binary.BigEndian.Uint32(meta[28:32]))

	liq := stateDB.GetState(pl.addr, poolLiquidityKey(poolId))
	pool.Liquidity = new(big.Int).SetBytes(liq[:])
	return pool
}

func (pl *PoolLedger) setPool(stateDB contract.StateDB, poolId [32]byte, pool *Pool) {
	var meta common.Hash
	if pool.Initialized {
		meta[0] = 1
	}
	binary.BigEndian.PutUint32(meta[28:32], uint32(pool.Tick))
	stateDB.SetState(pl.addr, poolMetaKey(poolId), meta)

	var liq common.Hash
	pool.Liquidity.FillBytes(liq[:])
	stateDB.SetState(pl.addr, poolLiquidityKey(poolId), liq)
}

func (pl *PoolLedger) getPosition(stateDB contract.StateDB, positionKey [32]byte) *Position {
	pos := &Position{Liquidity: big.NewInt(0)}
	liq := stateDB.GetState(pl.addr, positionLiquidityKey(positionKey))
	if liq != (common.Hash{}) {
		pos.Liquidity = new(big.Int).SetBytes(liq[:])
	}
	return pos
}

func (pl *PoolLedger) setPosition(stateDB contract.StateDB, positionKey [32]byte, pos *Position) {
	var liq common.Hash
	pos.Liquidity.FillBytes(liq[:])
	stateDB.SetState(pl.addr, positionLiquidityKey(positionKey), liq)
}

func (pl *PoolLedger) poolCount(stateDB contract.StateDB) uint64 {
	val := stateDB.GetState(pl.addr, poolCountKey())
	return binary.BigEndian.Uint64(val[24:32])
}

func (pl *PoolLedger) setPoolCount(stateDB contract.StateDB, count uint64) {
	var val common.Hash
	binary.BigEndian.PutUint64(val[24:32], count)
	stateDB.SetState(pl.addr, poolCountKey(), val)
}

func (pl *PoolLedger) maxPools(stateDB contract.StateDB) uint64 {
	val := stateDB.GetState(pl.addr, maxPoolsKey())
	return binary.BigEndian.Uint64(val[24:32])
}

func (pl *PoolLedger) setMaxPools(stateDB contract.StateDB, max uint64) {
	var val common.Hash
	binary.BigEndian.PutUint64(val[24:32], max)
	stateDB.SetState(pl.addr, maxPoolsKey(), val)
}

func poolMetaKey(poolId [32]byte) common.Hash {
	return makeStorageKey(poolStatePrefix, append(poolId[:], []byte("meta")...))
}

func poolLiquidityKey(poolId [32]byte) common.Hash {
	return makeStorageKey(poolLiquidityPrefix, poolId[:])
}

func positionLiquidityKey(positionKey [32]byte) common.Hash {
	return makeStorageKey(positionPrefix, append(positionKey[:], []byte("liq")...))
}

func poolCountKey() common.Hash {
	return makeStorageKey(poolStatePrefix, []byte("count"))
}

func maxPoolsKey() common.Hash {
	return makeStorageKey(configPrefix, []byte("maxPools"))
}

// currenciesSorted compares raw address bytes for correct ordering.
func currenciesSorted(c0, c1 Currency) bool {
	return bytes.Compare(c0.Address.Bytes(), c1.Address.Bytes()) < 0
}
