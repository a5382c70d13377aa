// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/messenger"
)

// DispatchOrder sends a pending order's remainder to its target chain and
// moves it to Dispatched. Dispatch is permissionless: whoever calls pays the
// messenger's send fee. The fee charge, message record, and status change
// happen atomically.
func (o *Orchestrator) DispatchOrder(
	stateDB contract.StateDB,
	blockTime uint64,
	dispatcher common.Address,
	orderId common.Hash,
) (PendingOrder, error) {
	snapshot := stateDB.Snapshot()
	order, err := o.dispatchOrder(stateDB, blockTime, dispatcher, orderId)
	if err != nil {
		stateDB.RevertToSnapshot(snapshot)
		return PendingOrder{}, err
	}
	return order, nil
}

func (o *Orchestrator) dispatchOrder(
	stateDB contract.StateDB,
	blockTime uint64,
	dispatcher common.Address,
	orderId common.Hash,
) (PendingOrder, error) {
	order, err := o.OrderByID(stateDB, orderId)
	if err != nil {
		return PendingOrder{}, err
	}
	if order.Status != OrderPending {
		return PendingOrder{}, ErrOrderNotPending
	}

	body := (&messenger.RemainderOrder{
		OrderID:       order.OrderID,
		PoolID:        order.PoolID,
		SourceChainID: o.LocalChainID(stateDB),
		TargetChainID: order.TargetChainID,
		Requester:     order.Requester,
		Liquidity:     order.Liquidity,
		Amount0:       order.Amount0,
		Amount1:       order.Amount1,
		TickLower:     order.TickLower,
		TickUpper:     order.TickUpper,
	}).Encode()

	sent, err := o.transport.Send(
		stateDB, blockTime, dispatcher,
		order.TargetChainID, order.Requester, messenger.KindRemainderOrder, body)
	if err != nil {
		return PendingOrder{}, err
	}
	return o.markDispatched(stateDB, orderId, sent.MessageID)
}
