// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the execution interfaces stateful precompiles are
// written against: the state they may touch, the block context they run in,
// and the entry points the EVM calls.
package contract

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/zekiblue/cclo/precompileconfig"
)

var (
	ErrOutOfGas        = errors.New("out of gas")
	ErrWriteProtection = errors.New("cannot write in read-only mode")
	ErrInputTooShort   = errors.New("input too short")
)

// StateDB is the subset of the EVM state database precompiles may use.
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
	// SetState stores [value] under [key] and returns the previous value.
	SetState(addr common.Address, key, value common.Hash) common.Hash

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int
	SubBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64, tracing.NonceChangeReason)

	GetBalanceMultiCoin(common.Address, common.Hash) *big.Int
	AddBalanceMultiCoin(common.Address, common.Hash, *big.Int)
	SubBalanceMultiCoin(common.Address, common.Hash, *big.Int)

	CreateAccount(common.Address)
	Exist(common.Address) bool

	AddLog(*ethtypes.Log)
	Logs() []*ethtypes.Log

	// GetPredicateStorageSlots returns the bytes of the [index]th predicate
	// attached to the current transaction for [address], pre-verified by the
	// consensus engine before execution.
	GetPredicateStorageSlots(address common.Address, index int) ([]byte, bool)

	TxHash() common.Hash

	Snapshot() int
	RevertToSnapshot(int)
}

// ConfigurationBlockContext is the block context available while a precompile
// is being configured at its activation boundary.
type ConfigurationBlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// BlockContext is the block context available during execution.
type BlockContext interface {
	ConfigurationBlockContext
}

// AccessibleState is everything a precompile can reach while running.
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
	GetChainConfig() precompileconfig.ChainConfig
}

// StatefulPrecompiledContract is the interface every precompile implements.
type StatefulPrecompiledContract interface {
	// Run executes the precompile with the given input and gas. It returns
	// the output, the gas remaining, and an error if execution failed. State
	// written before a returned error is reverted by the EVM.
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// Configurator installs a precompile's genesis/upgrade config into state.
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		chainConfig precompileconfig.ChainConfig,
		precompileConfig precompileconfig.Config,
		state StateDB,
		blockContext ConfigurationBlockContext,
	) error
}

// DeductGas charges [requiredGas] against [suppliedGas].
func DeductGas(suppliedGas uint64, requiredGas uint64) (uint64, error) {
	if suppliedGas < requiredGas {
		return 0, ErrOutOfGas
	}
	return suppliedGas - requiredGas, nil
}
