// Copyright (C) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contracttest provides shared mocks for precompile tests.
package contracttest

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/precompileconfig"
)

var (
	_ contract.StateDB         = (*MockStateDB)(nil)
	_ contract.AccessibleState = (*MockAccessibleState)(nil)
)

// MockStateDB implements contract.StateDB backed by plain maps. Snapshot and
// RevertToSnapshot are functional so tests can exercise rollback paths.
type MockStateDB struct {
	storage    map[common.Address]map[common.Hash]common.Hash
	balances   map[common.Address]*uint256.Int
	nonces     map[common.Address]uint64
	logs       []*ethtypes.Log
	predicates map[common.Address][][]byte
	txHash     common.Hash
	snapshots  []stateSnapshot
}

type stateSnapshot struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	logCount int
}

func NewMockStateDB() *MockStateDB {
	return &MockStateDB{
		storage:    make(map[common.Address]map[common.Hash]common.Hash),
		balances:   make(map[common.Address]*uint256.Int),
		nonces:     make(map[common.Address]uint64),
		logs:       make([]*ethtypes.Log, 0),
		predicates: make(map[common.Address][][]byte),
	}
}

func (m *MockStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if m.storage[addr] == nil {
		return common.Hash{}
	}
	return m.storage[addr][key]
}

func (m *MockStateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	prev := m.storage[addr][key]
	m.storage[addr][key] = value
	return prev
}

func (m *MockStateDB) GetBalance(addr common.Address) *uint256.Int {
	if bal, ok := m.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (m *MockStateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	prev := m.balances[addr].Clone()
	m.balances[addr] = new(uint256.Int).Add(m.balances[addr], amount)
	return *prev
}

func (m *MockStateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	prev := m.balances[addr].Clone()
	m.balances[addr] = new(uint256.Int).Sub(m.balances[addr], amount)
	return *prev
}

func (m *MockStateDB) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	m.nonces[addr] = nonce
}

func (m *MockStateDB) GetNonce(addr common.Address) uint64 {
	return m.nonces[addr]
}

func (m *MockStateDB) GetBalanceMultiCoin(common.Address, common.Hash) *big.Int {
	return big.NewInt(0)
}

func (m *MockStateDB) AddBalanceMultiCoin(common.Address, common.Hash, *big.Int) {}
func (m *MockStateDB) SubBalanceMultiCoin(common.Address, common.Hash, *big.Int) {}
func (m *MockStateDB) CreateAccount(common.Address)                              {}
func (m *MockStateDB) Exist(common.Address) bool                                 { return true }
func (m *MockStateDB) AddLog(log *ethtypes.Log)                                  { m.logs = append(m.logs, log) }
func (m *MockStateDB) Logs() []*ethtypes.Log                                     { return m.logs }

// SetPredicate attaches pre-verified predicate bytes for [addr] at [index].
func (m *MockStateDB) SetPredicate(addr common.Address, index int, b []byte) {
	slots := m.predicates[addr]
	for len(slots) <= index {
		slots = append(slots, nil)
	}
	slots[index] = b
	m.predicates[addr] = slots
}

func (m *MockStateDB) GetPredicateStorageSlots(addr common.Address, index int) ([]byte, bool) {
	slots, ok := m.predicates[addr]
	if !ok || index >= len(slots) || slots[index] == nil {
		return nil, false
	}
	return slots[index], true
}

func (m *MockStateDB) SetTxHash(h common.Hash) { m.txHash = h }
func (m *MockStateDB) TxHash() common.Hash     { return m.txHash }

func (m *MockStateDB) Snapshot() int {
	snap := stateSnapshot{
		storage:  make(map[common.Address]map[common.Hash]common.Hash, len(m.storage)),
		balances: make(map[common.Address]*uint256.Int, len(m.balances)),
		nonces:   make(map[common.Address]uint64, len(m.nonces)),
		logCount: len(m.logs),
	}
	for addr, slots := range m.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		snap.storage[addr] = cp
	}
	for addr, bal := range m.balances {
		snap.balances[addr] = bal.Clone()
	}
	for addr, nonce := range m.nonces {
		snap.nonces[addr] = nonce
	}
	m.snapshots = append(m.snapshots, snap)
	return len(m.snapshots) - 1
}

func (m *MockStateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	snap := m.snapshots[id]
	m.storage = snap.storage
	m.balances = snap.balances
	m.nonces = snap.nonces
	m.logs = m.logs[:snap.logCount]
	m.snapshots = m.snapshots[:id]
}

// MockChainConfig implements precompileconfig.ChainConfig.
type MockChainConfig struct {
	EVMChainID *big.Int
}

func (c MockChainConfig) ChainID() *big.Int {
	if c.EVMChainID == nil {
		return big.NewInt(1)
	}
	return c.EVMChainID
}

// MockBlockContext implements contract.BlockContext.
type MockBlockContext struct {
	BlockNumber *big.Int
	Time        uint64
}

func (b MockBlockContext) Number() *big.Int {
	if b.BlockNumber == nil {
		return big.NewInt(0)
	}
	return b.BlockNumber
}

func (b MockBlockContext) Timestamp() uint64 { return b.Time }

// MockAccessibleState bundles the mocks into a contract.AccessibleState.
type MockAccessibleState struct {
	DB          *MockStateDB
	Block       MockBlockContext
	ChainConfig MockChainConfig
}

func NewMockAccessibleState() *MockAccessibleState {
	return &MockAccessibleState{DB: NewMockStateDB()}
}

func (a *MockAccessibleState) GetStateDB() contract.StateDB { return a.DB }

func (a *MockAccessibleState) GetBlockContext() contract.BlockContext { return a.Block }

func (a *MockAccessibleState) GetChainConfig() precompileconfig.ChainConfig { return a.ChainConfig }
