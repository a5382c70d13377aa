// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"encoding/binary"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
)

// Config slots
func controllerKey() common.Hash {
	return makeStorageKey(configPrefix, []byte("controller"))
}

func localChainKey() common.Hash {
	return makeStorageKey(configPrefix, []byte("localChainId"))
}

func custodialHolderKey() common.Hash {
	return makeStorageKey(configPrefix, []byte("custodialHolder"))
}

// Controller returns the account gating strategy registration and controller
// transfer. The zero address means the gate is unclaimed: every caller
// passes until genesis configuration or a first SetController seeds it.
func (o *Orchestrator) Controller(stateDB contract.StateDB) common.Address {
	val := stateDB.GetState(o.addr, controllerKey())
	return contract.AddressFromWord(val[:])
}

func (o *Orchestrator) requireController(stateDB contract.StateDB, caller common.Address) error {
	ctrl := o.Controller(stateDB)
	if ctrl == (common.Address{}) || ctrl == caller {
		return nil
	}
	return ErrUnauthorized
}

// SetController transfers the gate to [next]. Gated like every other
// privileged operation; returns the previous controller for the event.
func (o *Orchestrator) SetController(
	stateDB contract.StateDB,
	caller common.Address,
	next common.Address,
) (common.Address, error) {
	if err := o.requireController(stateDB, caller); err != nil {
		return common.Address{}, err
	}
	prev := o.Controller(stateDB)
	o.setController(stateDB, next)
	return prev, nil
}

func (o *Orchestrator) setController(stateDB contract.StateDB, ctrl common.Address) {
	var val common.Hash
	contract.PutAddressWord(val[:], ctrl)
	stateDB.SetState(o.addr, controllerKey(), val)
}

// LocalChainID returns the EVM chain ID this orchestrator considers local.
// Strategy entries targeting it are applied in place rather than withheld.
func (o *Orchestrator) LocalChainID(stateDB contract.StateDB) uint32 {
	val := stateDB.GetState(o.addr, localChainKey())
	return binary.BigEndian.Uint32(val[28:32])
}

func (o *Orchestrator) setLocalChainID(stateDB contract.StateDB, chainID uint32) {
	var val common.Hash
	binary.BigEndian.PutUint32(val[28:32], chainID)
	stateDB.SetState(o.addr, localChainKey(), val)
}

// CustodialHolder returns the configured funds holder. When it is the
// orchestrator's own address the engine settles amounts owed to the pool
// from the orchestrator's balance instead of pulling from the requester.
func (o *Orchestrator) CustodialHolder(stateDB contract.StateDB) common.Address {
	val := stateDB.GetState(o.addr, custodialHolderKey())
	return contract.AddressFromWord(val[:])
}

func (o *Orchestrator) setCustodialHolder(stateDB contract.StateDB, holder common.Address) {
	var val common.Hash
	contract.PutAddressWord(val[:], holder)
	stateDB.SetState(o.addr, custodialHolderKey(), val)
}

// =========================================================================
// Strategy registry
// =========================================================================

// RegisterStrategy persists [strategy] under [id]. Registration is
// first-write-wins: an existing strategy is never replaced, not even with
// identical content. All validation happens before the first write, so a
// strategy is either fully readable or absent.
func (o *Orchestrator) RegisterStrategy(
	stateDB contract.StateDB,
	caller common.Address,
	id common.Hash,
	strategy Strategy,
) error {
	if err := o.requireController(stateDB, caller); err != nil {
		return err
	}
	if err := strategy.Validate(); err != nil {
		return err
	}
	if _, exists := o.GetStrategy(stateDB, id); exists {
		return ErrDuplicateStrategy
	}

	header := strategyHeaderKey(id)
	var head common.Hash
	head[0] = 1
	binary.BigEndian.PutUint64(head[24:32], uint64(len(strategy.Targets)))
	stateDB.SetState(o.addr, header, head)

	for i := range strategy.Targets {
		var entry common.Hash
		binary.BigEndian.PutUint32(entry[26:30], strategy.Targets[i])
		binary.BigEndian.PutUint16(entry[30:32], strategy.Percentages[i])
		stateDB.SetState(o.addr, slotAdd(header, uint64(i)+1), entry)
	}
	return nil
}

// GetStrategy loads the strategy stored under [id]. An unknown ID is not an
// error on the read path; the second return reports existence.
func (o *Orchestrator) GetStrategy(stateDB contract.StateDB, id common.Hash) (Strategy, bool) {
	header := strategyHeaderKey(id)
	head := stateDB.GetState(o.addr, header)
	if head[0] != 1 {
		return Strategy{}, false
	}

	count := binary.BigEndian.Uint64(head[24:32])
	strategy := Strategy{
		Targets:     make([]uint32, count),
		Percentages: make([]uint16, count),
	}
	for i := uint64(0); i < count; i++ {
		entry := stateDB.GetState(o.addr, slotAdd(header, i+1))
		strategy.Targets[i] = binary.BigEndian.Uint32(entry[26:30])
		strategy.Percentages[i] = binary.BigEndian.Uint16(entry[30:32])
	}
	return strategy, true
}

func strategyHeaderKey(id common.Hash) common.Hash {
	return makeStorageKey(strategyPrefix, id[:])
}
