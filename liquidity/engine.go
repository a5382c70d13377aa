// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/messenger"
	"github.com/zekiblue/cclo/poolmgr"
)

// Orchestrator is the settlement engine behind the precompile. It owns the
// strategy registry, the pending order book, and the access gate, and it is
// the only caller of the pool ledger's liquidity operations: the ledger's
// unlock capability never leaves this package. Dispatched orders leave
// through [transport].
type Orchestrator struct {
	addr      common.Address
	ledger    *poolmgr.PoolLedger
	transport *messenger.WarpTransport
}

// NewOrchestrator creates an orchestrator at [addr] settling against [ledger]
// and dispatching remainder orders through [transport].
func NewOrchestrator(
	addr common.Address,
	ledger *poolmgr.PoolLedger,
	transport *messenger.WarpTransport,
) *Orchestrator {
	return &Orchestrator{addr: addr, ledger: ledger, transport: transport}
}

// Address returns the orchestrator's contract address.
func (o *Orchestrator) Address() common.Address {
	return o.addr
}

// Ledger returns the pool ledger this orchestrator settles against.
func (o *Orchestrator) Ledger() *poolmgr.PoolLedger {
	return o.ledger
}

// ModifyRequest is a liquidity modification routed through the orchestrator.
type ModifyRequest struct {
	PoolKey        poolmgr.PoolKey
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int // Positive = add, negative = remove
	Salt           [32]byte
	StrategyID     common.Hash
}

// ModifyResult reports what a modification actually did locally: the delta
// applied to the ledger (zero when everything was withheld), the settled
// amounts, and the orders recorded for other chains.
type ModifyResult struct {
	AppliedDelta *big.Int
	Delta        poolmgr.BalanceDelta
	Orders       []PendingOrder
}

// ModifyLiquidity applies a liquidity change for [requester].
//
// Additions always apply fully locally, strategy or not. Removals load the
// request's strategy (absent means no splitting), withhold every share whose
// target is not the local chain as a pending order, and apply only the
// remainder. A remainder of zero, or one whose sign flipped, skips the
// ledger entirely and settles nothing.
//
// State is snapshotted up front and reverted on any failure, so a settlement
// shortfall or ledger error leaves no partial writes, including order
// records from earlier loop iterations.
func (o *Orchestrator) ModifyLiquidity(
	stateDB contract.StateDB,
	requester common.Address,
	req ModifyRequest,
	blockTime uint64,
) (ModifyResult, error) {
	snapshot := stateDB.Snapshot()
	res, err := o.modifyLiquidity(stateDB, requester, req, blockTime)
	if err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return ModifyResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) modifyLiquidity(
	stateDB contract.StateDB,
	requester common.Address,
	req ModifyRequest,
	blockTime uint64,
) (ModifyResult, error) {
	delta := req.LiquidityDelta
	if delta == nil || delta.Sign() == 0 {
		return ModifyResult{}, poolmgr.ErrZeroLiquidityDelta
	}

	localDelta := new(big.Int).Set(delta)
	var orders []PendingOrder

	if delta.Sign() < 0 {
		if strategy, ok := o.GetStrategy(stateDB, req.StrategyID); ok {
			var err error
			localDelta, orders, err = o.withholdShares(stateDB, requester, req, strategy, blockTime)
			if err != nil {
				return ModifyResult{}, err
			}
		}
		if localDelta.Sign() >= 0 {
			// Fully withheld: no ledger call, nothing to settle.
			return ModifyResult{
				AppliedDelta: big.NewInt(0),
				Delta:        poolmgr.ZeroBalanceDelta(),
				Orders:       orders,
			}, nil
		}
	}

	var out poolmgr.BalanceDelta
	err := o.ledger.Unlock(stateDB, requester, func(tok *poolmgr.UnlockToken) error {
		d, err := o.ledger.ModifyLiquidity(stateDB, tok, req.PoolKey, poolmgr.ModifyLiquidityParams{
			TickLower:      req.TickLower,
			TickUpper:      req.TickUpper,
			LiquidityDelta: localDelta,
			Salt:           req.Salt,
		})
		if err != nil {
			return err
		}
		out = d
		if err := o.settleSlot(stateDB, tok, requester, req.PoolKey.Currency0, d.Amount0); err != nil {
			return err
		}
		return o.settleSlot(stateDB, tok, requester, req.PoolKey.Currency1, d.Amount1)
	})
	if err != nil {
		return ModifyResult{}, err
	}

	return ModifyResult{AppliedDelta: localDelta, Delta: out, Orders: orders}, nil
}

// withholdShares splits the removal magnitude across the strategy's targets
// and records a pending order for every non-local share. It returns the
// reduced local delta: the requested delta plus everything withheld. Shares
// that floor to zero carry nothing and produce no order; flooring dust stays
// in the local delta.
func (o *Orchestrator) withholdShares(
	stateDB contract.StateDB,
	requester common.Address,
	req ModifyRequest,
	strategy Strategy,
	blockTime uint64,
) (*big.Int, []PendingOrder, error) {
	magnitude := new(big.Int).Abs(req.LiquidityDelta)
	shares := SplitShares(magnitude, strategy.Percentages)
	localChain := o.LocalChainID(stateDB)
	poolId := req.PoolKey.ID()

	localDelta := new(big.Int).Set(req.LiquidityDelta)
	var orders []PendingOrder
	for i, target := range strategy.Targets {
		if target == localChain || shares[i].Sign() == 0 {
			continue
		}

		// Quote what the withheld share would return at current pool state;
		// the order carries the magnitudes for remote application.
		amt0, amt1, err := o.ledger.QuoteLiquidity(
			stateDB, req.PoolKey, req.TickLower, req.TickUpper, new(big.Int).Neg(shares[i]))
		if err != nil {
			return nil, nil, err
		}

		order := o.appendOrder(
			stateDB, poolId, target, requester,
			shares[i], new(big.Int).Abs(amt0), new(big.Int).Abs(amt1),
			req.TickLower, req.TickUpper, blockTime)
		orders = append(orders, order)
		localDelta.Add(localDelta, shares[i])
	}
	return localDelta, orders, nil
}

// settleSlot settles one currency leg of a modification. Amounts owed to the
// pool are paid by the orchestrator itself when it is the configured
// custodial holder, otherwise pulled from the requester; amounts owed by the
// pool always go to the requester. Native legs move StateDB balances, token
// legs move the ledger's book.
func (o *Orchestrator) settleSlot(
	stateDB contract.StateDB,
	tok *poolmgr.UnlockToken,
	requester common.Address,
	currency poolmgr.Currency,
	amount *big.Int,
) error {
	switch {
	case amount == nil || amount.Sign() == 0:
		return nil
	case amount.Sign() > 0:
		payer := requester
		if o.CustodialHolder(stateDB) == o.addr {
			payer = o.addr
		}
		return o.ledger.Settle(stateDB, tok, payer, currency, amount)
	default:
		return o.ledger.Take(stateDB, tok, requester, currency, new(big.Int).Neg(amount))
	}
}
