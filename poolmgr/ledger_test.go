// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolmgr

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/stretchr/testify/require"

	"github.com/zekiblue/cclo/contracttest"
)

var (
	testRequester = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	testToken1    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testToken2    = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newTestLedger() (*PoolLedger, *contracttest.MockStateDB) {
	return NewPoolLedger(ContractAddress), contracttest.NewMockStateDB()
}

func initTestPool(t *testing.T, pl *PoolLedger, db *contracttest.MockStateDB) PoolKey {
	t.Helper()
	key := testPoolKey()
	require.NoError(t, pl.Initialize(db, key, 0))
	return key
}

func TestInitialize(t *testing.T) {
	pl, db := newTestLedger()
	key := testPoolKey()

	require.NoError(t, pl.Initialize(db, key, 0))

	pool, err := pl.GetPool(db, key)
	require.NoError(t, err)
	require.True(t, pool.Initialized)
	require.Zero(t, pool.Liquidity.Sign())

	// double init rejected
	err = pl.Initialize(db, key, 0)
	require.ErrorIs(t, err, ErrPoolAlreadyInitialized)
}

func TestInitializeValidation(t *testing.T) {
	pl, db := newTestLedger()

	unsorted := testPoolKey()
	unsorted.Currency0, unsorted.Currency1 = unsorted.Currency1, unsorted.Currency0
	require.ErrorIs(t, pl.Initialize(db, unsorted, 0), ErrCurrencyNotSorted)

	badFee := testPoolKey()
	badFee.Fee = FeeMax + 1
	require.ErrorIs(t, pl.Initialize(db, badFee, 0), ErrInvalidFee)

	badSpacing := testPoolKey()
	badSpacing.TickSpacing = 0
	require.ErrorIs(t, pl.Initialize(db, badSpacing, 0), ErrInvalidTickRange)

	key := testPoolKey()
	require.ErrorIs(t, pl.Initialize(db, key, MaxTick+1), ErrTickOutOfRange)
}

func TestInitializeMaxPools(t *testing.T) {
	pl, db := newTestLedger()
	pl.setMaxPools(db, 1)

	require.NoError(t, pl.Initialize(db, testPoolKey(), 0))

	second := testPoolKey()
	second.Fee = Fee100
	require.ErrorIs(t, pl.Initialize(db, second, 0), ErrMaxPoolsReached)
}

func TestModifyLiquidityRequiresUnlock(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	// capture a token, let the session close, then replay it
	var stale *UnlockToken
	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		stale = tok
		return nil
	})
	require.NoError(t, err)

	_, err = pl.ModifyLiquidity(db, stale, key, ModifyLiquidityParams{
		TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(100),
	})
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestModifyLiquidityForeignToken(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	var outer *UnlockToken
	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		outer = tok
		// a nested session supersedes the outer token
		return pl.Unlock(db, testRequester, func(inner *UnlockToken) error {
			_, err := pl.ModifyLiquidity(db, outer, key, ModifyLiquidityParams{
				TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(100),
			})
			require.ErrorIs(t, err, ErrInvalidUnlockToken)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestUnlockUnsettledDelta(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		_, err := pl.ModifyLiquidity(db, tok, key, ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000),
		})
		return err // deltas left unsettled
	})
	require.ErrorIs(t, err, ErrNonZeroDelta)
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	// token book funds for both sides
	pl.CreditToken(db, testToken1, testRequester, big.NewInt(10_000))
	pl.CreditToken(db, testToken2, testRequester, big.NewInt(10_000))

	params := ModifyLiquidityParams{TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000)}

	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		delta, err := pl.ModifyLiquidity(db, tok, key, params)
		require.NoError(t, err)
		require.Equal(t, int64(500), delta.Amount0.Int64())
		require.Equal(t, int64(500), delta.Amount1.Int64())

		require.NoError(t, pl.Settle(db, tok, testRequester, key.Currency0, big.NewInt(500)))
		require.NoError(t, pl.Settle(db, tok, testRequester, key.Currency1, big.NewInt(500)))
		return nil
	})
	require.NoError(t, err)

	pos := pl.GetPosition(db, key, testRequester, -60, 60, [32]byte{})
	require.Equal(t, int64(1000), pos.Liquidity.Int64())

	pool, err := pl.GetPool(db, key)
	require.NoError(t, err)
	require.Equal(t, int64(1000), pool.Liquidity.Int64())

	require.Equal(t, int64(9_500), pl.TokenBalance(db, testToken1, testRequester).Int64())
	require.Equal(t, int64(500), pl.TokenBalance(db, testToken1, ContractAddress).Int64())

	// remove a portion and take the owed amounts back out
	remove := ModifyLiquidityParams{TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(-400)}
	err = pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		delta, err := pl.ModifyLiquidity(db, tok, key, remove)
		require.NoError(t, err)
		require.Equal(t, int64(-200), delta.Amount0.Int64())
		require.Equal(t, int64(-200), delta.Amount1.Int64())

		require.NoError(t, pl.Take(db, tok, testRequester, key.Currency0, big.NewInt(200)))
		require.NoError(t, pl.Take(db, tok, testRequester, key.Currency1, big.NewInt(200)))
		return nil
	})
	require.NoError(t, err)

	pos = pl.GetPosition(db, key, testRequester, -60, 60, [32]byte{})
	require.Equal(t, int64(600), pos.Liquidity.Int64())
	require.Equal(t, int64(9_700), pl.TokenBalance(db, testToken1, testRequester).Int64())
}

func TestRemoveMoreThanPosition(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		_, err := pl.ModifyLiquidity(db, tok, key, ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(-1),
		})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSettleNativeInsufficientBalance(t *testing.T) {
	pl, db := newTestLedger()

	nativeKey := PoolKey{
		Currency0:   NativeCurrency,
		Currency1:   Currency{Address: testToken1},
		Fee:         Fee030,
		TickSpacing: TickSpacing030,
	}
	require.NoError(t, pl.Initialize(db, nativeKey, 0))
	pl.CreditToken(db, testToken1, testRequester, big.NewInt(10_000))

	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		_, err := pl.ModifyLiquidity(db, tok, nativeKey, ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000),
		})
		require.NoError(t, err)

		// requester has no native balance to cover the owed leg
		return pl.Settle(db, tok, testRequester, NativeCurrency, big.NewInt(500))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestSettleNative(t *testing.T) {
	pl, db := newTestLedger()

	nativeKey := PoolKey{
		Currency0:   NativeCurrency,
		Currency1:   Currency{Address: testToken1},
		Fee:         Fee030,
		TickSpacing: TickSpacing030,
	}
	require.NoError(t, pl.Initialize(db, nativeKey, 0))
	db.AddBalance(testRequester, uint256.NewInt(10_000), tracing.BalanceChangeTransfer)
	pl.CreditToken(db, testToken1, testRequester, big.NewInt(10_000))

	err := pl.Unlock(db, testRequester, func(tok *UnlockToken) error {
		_, err := pl.ModifyLiquidity(db, tok, nativeKey, ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000),
		})
		require.NoError(t, err)

		require.NoError(t, pl.Settle(db, tok, testRequester, NativeCurrency, big.NewInt(500)))
		require.NoError(t, pl.Settle(db, tok, testRequester, Currency{Address: testToken1}, big.NewInt(500)))
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, uint64(9_500), db.GetBalance(testRequester).Uint64())
	require.Equal(t, uint64(500), db.GetBalance(ContractAddress).Uint64())
}

func TestQuoteLiquidityReadOnly(t *testing.T) {
	pl, db := newTestLedger()
	key := initTestPool(t, pl, db)

	amount0, amount1, err := pl.QuoteLiquidity(db, key, -60, 60, big.NewInt(-1000))
	require.NoError(t, err)
	require.Equal(t, int64(-500), amount0.Int64())
	require.Equal(t, int64(-500), amount1.Int64())

	// quoting an unknown pool fails
	unknown := testPoolKey()
	unknown.Fee = Fee100
	_, _, err = pl.QuoteLiquidity(db, unknown, -60, 60, big.NewInt(100))
	require.ErrorIs(t, err, ErrPoolNotInitialized)
}
