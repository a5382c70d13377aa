// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/poolmgr"
)

// Method selectors for the orchestrator
const (
	SelectorRegisterStrategy  uint32 = 0x01000000 // registerStrategy(bytes32,uint32[],uint16[])
	SelectorGetStrategy       uint32 = 0x02000000 // getStrategy(bytes32)
	SelectorSetController     uint32 = 0x03000000 // setController(address)
	SelectorController        uint32 = 0x04000000 // controller()
	SelectorModifyLiquidity   uint32 = 0x05000000 // modifyLiquidity(PoolKey,int32,int32,int256,bytes32,bytes32)
	SelectorPendingOrderAt    uint32 = 0x06000000 // pendingOrderAt(bytes32,uint64)
	SelectorPendingOrderCount uint32 = 0x07000000 // pendingOrderCount(bytes32)
	SelectorGetOrder          uint32 = 0x08000000 // order(bytes32)
	SelectorDispatchOrder     uint32 = 0x09000000 // dispatchOrder(bytes32)
)

var orchestratorABI = contract.ParseABI(`[
	{"type":"event","name":"StrategyRegistered","inputs":[
		{"name":"strategyId","type":"bytes32","indexed":true},
		{"name":"targets","type":"uint32[]","indexed":false},
		{"name":"percentages","type":"uint16[]","indexed":false}]},
	{"type":"event","name":"ControllerTransferred","inputs":[
		{"name":"previousController","type":"address","indexed":true},
		{"name":"newController","type":"address","indexed":true}]},
	{"type":"event","name":"LiquidityApplied","inputs":[
		{"name":"poolId","type":"bytes32","indexed":true},
		{"name":"sender","type":"address","indexed":true},
		{"name":"liquidityDelta","type":"int256","indexed":false},
		{"name":"amount0","type":"int256","indexed":false},
		{"name":"amount1","type":"int256","indexed":false}]},
	{"type":"event","name":"RemainderWithheld","inputs":[
		{"name":"poolId","type":"bytes32","indexed":true},
		{"name":"orderId","type":"bytes32","indexed":true},
		{"name":"targetChainId","type":"uint32","indexed":false},
		{"name":"liquidity","type":"uint256","indexed":false}]},
	{"type":"event","name":"OrderDispatched","inputs":[
		{"name":"orderId","type":"bytes32","indexed":true},
		{"name":"messageId","type":"bytes32","indexed":true},
		{"name":"targetChainId","type":"uint32","indexed":false}]}
]`)

// OrchestratorContract exposes the orchestrator over the precompile ABI.
// This is the only liquidity-modification entry point in the suite: the pool
// ledger deliberately has none, so every modification goes through the
// splitting engine.
type OrchestratorContract struct {
	orchestrator *Orchestrator
}

// Run executes the precompile
func (c *OrchestratorContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, contract.ErrInputTooShort
	}

	selector := binary.BigEndian.Uint32(input[:4])
	data := input[4:]

	switch selector {
	case SelectorRegisterStrategy:
		return c.runRegisterStrategy(accessibleState, caller, data, suppliedGas, readOnly)
	case SelectorGetStrategy:
		return c.runGetStrategy(accessibleState, data, suppliedGas)
	case SelectorSetController:
		return c.runSetController(accessibleState, caller, data, suppliedGas, readOnly)
	case SelectorController:
		return c.runController(accessibleState, suppliedGas)
	case SelectorModifyLiquidity:
		return c.runModifyLiquidity(accessibleState, caller, data, suppliedGas, readOnly)
	case SelectorPendingOrderAt:
		return c.runPendingOrderAt(accessibleState, data, suppliedGas)
	case SelectorPendingOrderCount:
		return c.runPendingOrderCount(accessibleState, data, suppliedGas)
	case SelectorGetOrder:
		return c.runGetOrder(accessibleState, data, suppliedGas)
	case SelectorDispatchOrder:
		return c.runDispatchOrder(accessibleState, caller, data, suppliedGas, readOnly)
	default:
		return nil, suppliedGas, fmt.Errorf("unknown method selector: %x", selector)
	}
}

func (c *OrchestratorContract) runRegisterStrategy(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasRegisterStrategy)
	if err != nil {
		return nil, 0, err
	}

	// strategyId (32) + targetsLen (32) + percentagesLen (32) + words
	if len(input) < 96 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	id := common.BytesToHash(input[0:32])
	nTargets := int(contract.Uint32FromWord(input[32:64]))
	nPcts := int(contract.Uint32FromWord(input[64:96]))
	if nTargets > MaxStrategyEntries || nPcts > MaxStrategyEntries {
		return nil, remainingGas, ErrStrategyTooLarge
	}
	if len(input) < 96+32*(nTargets+nPcts) {
		return nil, remainingGas, contract.ErrInputTooShort
	}

	strategy := Strategy{
		Targets:     make([]uint32, nTargets),
		Percentages: make([]uint16, nPcts),
	}
	off := 96
	for i := 0; i < nTargets; i, off = i+1, off+32 {
		strategy.Targets[i] = contract.Uint32FromWord(input[off : off+32])
	}
	for i := 0; i < nPcts; i, off = i+1, off+32 {
		pct := contract.Uint32FromWord(input[off : off+32])
		if pct > 100 {
			return nil, remainingGas, ErrInvalidDistribution
		}
		strategy.Percentages[i] = uint16(pct)
	}

	if err := c.orchestrator.RegisterStrategy(state.GetStateDB(), caller, id, strategy); err != nil {
		return nil, remainingGas, err
	}

	if err := c.emitEvent(state, "StrategyRegistered",
		id, strategy.Targets, strategy.Percentages); err != nil {
		return nil, remainingGas, err
	}
	return []byte{}, remainingGas, nil
}

func (c *OrchestratorContract) runGetStrategy(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasStrategyLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}

	strategy, exists := c.orchestrator.GetStrategy(state.GetStateDB(), common.BytesToHash(input[0:32]))

	// exists (32) + count (32) + targets + percentages
	out := make([]byte, 64+64*len(strategy.Targets))
	if exists {
		out[31] = 1
	}
	binary.BigEndian.PutUint64(out[56:64], uint64(len(strategy.Targets)))
	off := 64
	for _, target := range strategy.Targets {
		contract.PutUint32Word(out[off:off+32], target)
		off += 32
	}
	for _, pct := range strategy.Percentages {
		contract.PutUint32Word(out[off:off+32], uint32(pct))
		off += 32
	}
	return out, remainingGas, nil
}

func (c *OrchestratorContract) runSetController(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasSetController)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	next := contract.AddressFromWord(input[0:32])

	prev, err := c.orchestrator.SetController(state.GetStateDB(), caller, next)
	if err != nil {
		return nil, remainingGas, err
	}

	if err := c.emitEvent(state, "ControllerTransferred", prev, next); err != nil {
		return nil, remainingGas, err
	}
	return []byte{}, remainingGas, nil
}

func (c *OrchestratorContract) runController(
	state contract.AccessibleState,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasControllerLookup)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, 32)
	contract.PutAddressWord(out, c.orchestrator.Controller(state.GetStateDB()))
	return out, remainingGas, nil
}

func (c *OrchestratorContract) runModifyLiquidity(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasModifyLiquidity)
	if err != nil {
		return nil, 0, err
	}

	// PoolKey (160) + tickLower (32) + tickUpper (32) + liquidityDelta (32) +
	// salt (32) + strategyId (32)
	if len(input) < 320 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	key, err := poolmgr.DecodePoolKey(input[:160])
	if err != nil {
		return nil, remainingGas, err
	}
	req := ModifyRequest{
		PoolKey:        key,
		TickLower:      contract.Int32FromWord(input[160:192]),
		TickUpper:      contract.Int32FromWord(input[192:224]),
		LiquidityDelta: contract.SignedFromWord(input[224:256]),
		StrategyID:     common.BytesToHash(input[288:320]),
	}
	copy(req.Salt[:], input[256:288])

	res, err := c.orchestrator.ModifyLiquidity(
		state.GetStateDB(), caller, req, state.GetBlockContext().Timestamp())
	if err != nil {
		return nil, remainingGas, err
	}

	poolId := key.ID()
	for _, order := range res.Orders {
		if err := c.emitEvent(state, "RemainderWithheld",
			poolId, order.OrderID, order.TargetChainID, order.Liquidity); err != nil {
			return nil, remainingGas, err
		}
	}
	if err := c.emitEvent(state, "LiquidityApplied",
		poolId, caller, res.AppliedDelta, res.Delta.Amount0, res.Delta.Amount1); err != nil {
		return nil, remainingGas, err
	}

	out := make([]byte, 64)
	contract.PutSignedWord(out[0:32], res.Delta.Amount0)
	contract.PutSignedWord(out[32:64], res.Delta.Amount1)
	return out, remainingGas, nil
}

func (c *OrchestratorContract) runPendingOrderAt(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasOrderLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 64 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	var poolId [32]byte
	copy(poolId[:], input[0:32])
	sequence := binary.BigEndian.Uint64(input[56:64])

	order, err := c.orchestrator.PendingOrderAt(state.GetStateDB(), poolId, sequence)
	if err != nil {
		return nil, remainingGas, err
	}
	return packOrder(order), remainingGas, nil
}

func (c *OrchestratorContract) runPendingOrderCount(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasOrderCount)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	var poolId [32]byte
	copy(poolId[:], input[0:32])

	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:32], c.orchestrator.PendingOrderCount(state.GetStateDB(), poolId))
	return out, remainingGas, nil
}

func (c *OrchestratorContract) runGetOrder(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasOrderLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	order, err := c.orchestrator.OrderByID(state.GetStateDB(), common.BytesToHash(input[0:32]))
	if err != nil {
		return nil, remainingGas, err
	}
	return packOrder(order), remainingGas, nil
}

func (c *OrchestratorContract) runDispatchOrder(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasDispatchOrder)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	orderId := common.BytesToHash(input[0:32])

	order, err := c.orchestrator.DispatchOrder(
		state.GetStateDB(), state.GetBlockContext().Timestamp(), caller, orderId)
	if err != nil {
		return nil, remainingGas, err
	}

	if err := c.emitEvent(state, "OrderDispatched",
		order.OrderID, order.MessageID, order.TargetChainID); err != nil {
		return nil, remainingGas, err
	}
	return order.MessageID.Bytes(), remainingGas, nil
}

func (c *OrchestratorContract) emitEvent(state contract.AccessibleState, name string, args ...interface{}) error {
	topics, data, err := orchestratorABI.PackEvent(name, args...)
	if err != nil {
		return err
	}
	state.GetStateDB().AddLog(&ethtypes.Log{
		Address:     c.orchestrator.Address(),
		Topics:      topics,
		Data:        data,
		BlockNumber: state.GetBlockContext().Number().Uint64(),
	})
	return nil
}

// packOrder encodes a pending order as thirteen words: orderId, poolId,
// sequence, targetChainId, requester, liquidity, amount0, amount1,
// tickLower, tickUpper, status, createdAt, messageId.
func packOrder(order PendingOrder) []byte {
	out := make([]byte, 416)
	copy(out[0:32], order.OrderID[:])
	copy(out[32:64], order.PoolID[:])
	binary.BigEndian.PutUint64(out[88:96], order.Sequence)
	contract.PutUint32Word(out[96:128], order.TargetChainID)
	contract.PutAddressWord(out[128:160], order.Requester)
	contract.PutBigWord(out[160:192], order.Liquidity)
	contract.PutBigWord(out[192:224], order.Amount0)
	contract.PutBigWord(out[224:256], order.Amount1)
	contract.PutInt32Word(out[256:288], order.TickLower)
	contract.PutInt32Word(out[288:320], order.TickUpper)
	out[351] = byte(order.Status)
	binary.BigEndian.PutUint64(out[376:384], order.CreatedAt)
	copy(out[384:416], order.MessageID[:])
	return out
}
