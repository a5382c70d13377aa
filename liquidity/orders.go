// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
)

// Pending orders form an append-only, per-pool ordered collection keyed by
// (poolId, sequence). Sequences are allocated from a monotonic per-pool
// counter and records are never overwritten.
//
// Record layout, seven consecutive slots from blake3("ordata"||orderId):
//
//	slot 0: marker(1) || status(1) || targetChain(4) || tickLower(4) ||
//	        tickUpper(4) || pad(2) || sequence(8) || createdAt(8)
//	slot 1: poolId
//	slot 2: requester
//	slot 3: liquidity
//	slot 4: amount0
//	slot 5: amount1
//	slot 6: messageId (zero until dispatched)

// appendOrder records a withheld share as the pool's next pending order and
// returns the stored record.
func (o *Orchestrator) appendOrder(
	stateDB contract.StateDB,
	poolId [32]byte,
	targetChainID uint32,
	requester common.Address,
	liquidity, amount0, amount1 *big.Int,
	tickLower, tickUpper int32,
	createdAt uint64,
) PendingOrder {
	seq := o.PendingOrderCount(stateDB, poolId)
	order := PendingOrder{
		OrderID:       OrderIDFor(poolId, seq),
		PoolID:        poolId,
		Sequence:      seq,
		TargetChainID: targetChainID,
		Requester:     requester,
		Liquidity:     new(big.Int).Set(liquidity),
		Amount0:       new(big.Int).Set(amount0),
		Amount1:       new(big.Int).Set(amount1),
		TickLower:     tickLower,
		TickUpper:     tickUpper,
		Status:        OrderPending,
		CreatedAt:     createdAt,
	}
	o.writeOrder(stateDB, &order)
	o.setPendingOrderCount(stateDB, poolId, seq+1)
	return order
}

// PendingOrderCount returns how many orders have been recorded for [poolId],
// which is also the next sequence number.
func (o *Orchestrator) PendingOrderCount(stateDB contract.StateDB, poolId [32]byte) uint64 {
	val := stateDB.GetState(o.addr, orderSeqKey(poolId))
	return binary.BigEndian.Uint64(val[24:32])
}

func (o *Orchestrator) setPendingOrderCount(stateDB contract.StateDB, poolId [32]byte, count uint64) {
	var val common.Hash
	binary.BigEndian.PutUint64(val[24:32], count)
	stateDB.SetState(o.addr, orderSeqKey(poolId), val)
}

// PendingOrderAt returns the [sequence]-th order recorded for [poolId].
func (o *Orchestrator) PendingOrderAt(
	stateDB contract.StateDB,
	poolId [32]byte,
	sequence uint64,
) (PendingOrder, error) {
	return o.OrderByID(stateDB, OrderIDFor(poolId, sequence))
}

// OrderByID loads an order record by its globally unique ID.
func (o *Orchestrator) OrderByID(stateDB contract.StateDB, orderId common.Hash) (PendingOrder, error) {
	base := orderDataKey(orderId)
	head := stateDB.GetState(o.addr, base)
	if head[0] != 1 {
		return PendingOrder{}, ErrOrderNotFound
	}

	poolSlot := stateDB.GetState(o.addr, slotAdd(base, 1))
	requesterSlot := stateDB.GetState(o.addr, slotAdd(base, 2))
	liqSlot := stateDB.GetState(o.addr, slotAdd(base, 3))
	amt0Slot := stateDB.GetState(o.addr, slotAdd(base, 4))
	amt1Slot := stateDB.GetState(o.addr, slotAdd(base, 5))
	msgSlot := stateDB.GetState(o.addr, slotAdd(base, 6))

	return PendingOrder{
		OrderID:       orderId,
		PoolID:        poolSlot,
		Sequence:      binary.BigEndian.Uint64(head[16:24]),
		TargetChainID: binary.BigEndian.Uint32(head[2:6]),
		Requester:     contract.AddressFromWord(requesterSlot[:]),
		Liquidity:     new(big.Int).SetBytes(liqSlot[:]),
		Amount0:       new(big.Int).SetBytes(amt0Slot[:]),
		Amount1:       new(big.Int).SetBytes(amt1Slot[:]),
		TickLower:     int32(binary.BigEndian.Uint32(head[6:10])),
		TickUpper:     int32(binary.BigEndian.Uint32(head[10:14])),
		Status:        OrderStatus(head[1]),
		CreatedAt:     binary.BigEndian.Uint64(head[24:32]),
		MessageID:     msgSlot,
	}, nil
}

// markDispatched moves a pending order to Dispatched and records the Warp
// message carrying it. Only pending orders can be dispatched.
func (o *Orchestrator) markDispatched(
	stateDB contract.StateDB,
	orderId common.Hash,
	messageID common.Hash,
) (PendingOrder, error) {
	order, err := o.OrderByID(stateDB, orderId)
	if err != nil {
		return PendingOrder{}, err
	}
	if order.Status != OrderPending {
		return PendingOrder{}, ErrOrderNotPending
	}

	order.Status = OrderDispatched
	order.MessageID = messageID

	base := orderDataKey(orderId)
	head := stateDB.GetState(o.addr, base)
	head[1] = byte(OrderDispatched)
	stateDB.SetState(o.addr, base, head)
	stateDB.SetState(o.addr, slotAdd(base, 6), messageID)
	return order, nil
}

func (o *Orchestrator) writeOrder(stateDB contract.StateDB, order *PendingOrder) {
	base := orderDataKey(order.OrderID)

	var head common.Hash
	head[0] = 1
	head[1] = byte(order.Status)
	binary.BigEndian.PutUint32(head[2:6], order.TargetChainID)
	binary.BigEndian.PutUint32(head[6:10], uint32(order.TickLower))
	binary.BigEndian.PutUint32(head[10:14], uint32(order.TickUpper))
	binary.BigEndian.PutUint64(head[16:24], order.Sequence)
	binary.BigEndian.PutUint64(head[24:32], order.CreatedAt)
	stateDB.SetState(o.addr, base, head)

	stateDB.SetState(o.addr, slotAdd(base, 1), order.PoolID)

	var requester common.Hash
	contract.PutAddressWord(requester[:], order.Requester)
	stateDB.SetState(o.addr, slotAdd(base, 2), requester)

	var liq, amt0, amt1 common.Hash
	order.Liquidity.FillBytes(liq[:])
	order.Amount0.FillBytes(amt0[:])
	order.Amount1.FillBytes(amt1[:])
	stateDB.SetState(o.addr, slotAdd(base, 3), liq)
	stateDB.SetState(o.addr, slotAdd(base, 4), amt0)
	stateDB.SetState(o.addr, slotAdd(base, 5), amt1)

	stateDB.SetState(o.addr, slotAdd(base, 6), order.MessageID)
}

func orderDataKey(orderId common.Hash) common.Hash {
	return makeStorageKey(orderDataPrefix, orderId[:])
}

func orderSeqKey(poolId [32]byte) common.Hash {
	return makeStorageKey(orderSeqPrefix, poolId[:])
}
