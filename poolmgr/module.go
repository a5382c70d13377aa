// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolmgr

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/modules"
	"github.com/zekiblue/cclo/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)
var _ contract.StatefulPrecompiledContract = (*LedgerContract)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "poolLedgerConfig"

// ContractAddress is the pool ledger precompile address (LP-9100).
var ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000009100")

// Ledger is the singleton pool ledger shared by the precompile suite.
var Ledger = NewPoolLedger(ContractAddress)

// LedgerPrecompile is the singleton precompile instance.
var LedgerPrecompile = &LedgerContract{ledger: Ledger}

// Module is the precompile module (pool ledger at LP-9100)
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     LedgerPrecompile,
	Configurator: &configurator{},
}

// Method selectors for the pool ledger
const (
	SelectorInitialize     uint32 = 0x01000000 // initialize(PoolKey,int32)
	SelectorGetPool        uint32 = 0x02000000 // getPool(PoolKey)
	SelectorGetPosition    uint32 = 0x03000000 // getPosition(PoolKey,address,int32,int32,bytes32)
	SelectorQuoteLiquidity uint32 = 0x04000000 // quoteLiquidity(PoolKey,int32,int32,int256)
	SelectorTokenBalance   uint32 = 0x05000000 // tokenBalance(address,address)
)

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T: %v", &Config{}, cfg, cfg)
	}

	if config.MaxPools > 0 {
		Ledger.setMaxPools(state, config.MaxPools)
	}

	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade  precompileconfig.Upgrade `json:"upgrade,omitempty"`
	MaxPools uint64                   `json:"maxPools,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade) && c.MaxPools == other.MaxPools
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	return nil
}

// LedgerContract exposes read and pool-creation operations. Liquidity
// modification is not callable here: it is only reachable through an unlock
// session, which the liquidity orchestrator drives.
type LedgerContract struct {
	ledger *PoolLedger
}

// Run executes the precompile
func (c *LedgerContract) Run(
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
	case SelectorInitialize:
		return c.runInitialize(accessibleState, caller, data, suppliedGas, readOnly)
	case SelectorGetPool:
		return c.runGetPool(accessibleState, data, suppliedGas)
	case SelectorGetPosition:
		return c.runGetPosition(accessibleState, data, suppliedGas)
	case SelectorQuoteLiquidity:
		return c.runQuoteLiquidity(accessibleState, data, suppliedGas)
	case SelectorTokenBalance:
		return c.runTokenBalance(accessibleState, data, suppliedGas)
	default:
		return nil, suppliedGas, fmt.Errorf("unknown method selector: %x", selector)
	}
}

func (c *LedgerContract) runInitialize(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasPoolCreate)
	if err != nil {
		return nil, 0, err
	}

	// PoolKey (160 bytes) + initialTick (32 bytes)
	if len(input) < 192 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	key, err := DecodePoolKey(input[:160])
	if err != nil {
		return nil, remainingGas, err
	}
	initialTick := contract.Int32FromWord(input[160:192])

	if err := c.ledger.Initialize(state.GetStateDB(), key, initialTick); err != nil {
		return nil, remainingGas, err
	}

	poolId := key.ID()
	return poolId[:], remainingGas, nil
}

func (c *LedgerContract) runGetPool(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasPoolLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 160 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	key, err := DecodePoolKey(input[:160])
	if err != nil {
		return nil, remainingGas, err
	}

	pool, err := c.ledger.GetPool(state.GetStateDB(), key)
	if err != nil {
		return nil, remainingGas, err
	}

	// tick (32) + liquidity (32)
	out := make([]byte, 64)
	contract.PutInt32Word(out[0:32], pool.Tick)
	contract.PutBigWord(out[32:64], pool.Liquidity)
	return out, remainingGas, nil
}

func (c *LedgerContract) runGetPosition(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasPositionLookup)
	if err != nil {
		return nil, 0, err
	}
	// PoolKey (160) + owner (32) + tickLower (32) + tickUpper (32) + salt (32)
	if len(input) < 288 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	key, err := DecodePoolKey(input[:160])
	if err != nil {
		return nil, remainingGas, err
	}
	owner := contract.AddressFromWord(input[160:192])
	tickLower := contract.Int32FromWord(input[192:224])
	tickUpper := contract.Int32FromWord(input[224:256])
	var salt [32]byte
	copy(salt[:], input[256:288])

	pos := c.ledger.GetPosition(state.GetStateDB(), key, owner, tickLower, tickUpper, salt)

	out := make([]byte, 32)
	contract.PutBigWord(out, pos.Liquidity)
	return out, remainingGas, nil
}

func (c *LedgerContract) runQuoteLiquidity(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasQuote)
	if err != nil {
		return nil, 0, err
	}
	// PoolKey (160) + tickLower (32) + tickUpper (32) + liquidityDelta (32)
	if len(input) < 256 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	key, err := DecodePoolKey(input[:160])
	if err != nil {
		return nil, remainingGas, err
	}
	tickLower := contract.Int32FromWord(input[160:192])
	tickUpper := contract.Int32FromWord(input[192:224])
	liquidityDelta := contract.SignedFromWord(input[224:256])

	amount0, amount1, err := c.ledger.QuoteLiquidity(state.GetStateDB(), key, tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, remainingGas, err
	}

	out := make([]byte, 64)
	contract.PutSignedWord(out[0:32], amount0)
	contract.PutSignedWord(out[32:64], amount1)
	return out, remainingGas, nil
}

func (c *LedgerContract) runTokenBalance(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasTokenLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 64 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	token := contract.AddressFromWord(input[0:32])
	holder := contract.AddressFromWord(input[32:64])

	bal := c.ledger.TokenBalance(state.GetStateDB(), token, holder)

	out := make([]byte, 32)
	contract.PutBigWord(out, bal)
	return out, remainingGas, nil
}

// DecodePoolKey decodes a PoolKey from five calldata words.
func DecodePoolKey(input []byte) (PoolKey, error) {
	if len(input) < 160 {
		return PoolKey{}, fmt.Errorf("input too short for PoolKey")
	}
	return PoolKey{
		Currency0:   Currency{Address: contract.AddressFromWord(input[0:32])},
		Currency1:   Currency{Address: contract.AddressFromWord(input[32:64])},
		Fee:         contract.Uint32FromWord(input[64:96]),
		TickSpacing: contract.Int32FromWord(input[96:128]),
		Hooks:       contract.AddressFromWord(input[128:160]),
	}, nil
}

// EncodePoolKey encodes a PoolKey into five calldata words.
func EncodePoolKey(key PoolKey) []byte {
	out := make([]byte, 160)
	contract.PutAddressWord(out[0:32], key.Currency0.Address)
	contract.PutAddressWord(out[32:64], key.Currency1.Address)
	contract.PutUint32Word(out[64:96], key.Fee)
	contract.PutInt32Word(out[96:128], key.TickSpacing)
	contract.PutAddressWord(out[128:160], key.Hooks)
	return out
}
