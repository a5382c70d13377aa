// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/zekiblue/cclo/contracttest"
	"github.com/zekiblue/cclo/messenger"
	"github.com/zekiblue/cclo/poolmgr"
)

var (
	testController = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	testStranger   = common.HexToAddress("0x00000000000000000000000000000000000000C2")
	testProvider   = common.HexToAddress("0x00000000000000000000000000000000000000AA")
)

func newTestOrchestrator() (*Orchestrator, *contracttest.MockStateDB) {
	ledger := poolmgr.NewPoolLedger(poolmgr.ContractAddress)
	transport := messenger.NewWarpTransport(messenger.ContractAddress)
	return NewOrchestrator(ContractAddress, ledger, transport), contracttest.NewMockStateDB()
}

func testStrategyID(b byte) common.Hash {
	return common.Hash{0x57, b}
}

func TestRegisterAndGetStrategy(t *testing.T) {
	o, db := newTestOrchestrator()
	id := testStrategyID(1)

	strategy := Strategy{
		Targets:     []uint32{messenger.ChainLux, messenger.ChainZoo, messenger.ChainETH},
		Percentages: []uint16{33, 33, 34},
	}
	require.NoError(t, o.RegisterStrategy(db, testController, id, strategy))

	got, ok := o.GetStrategy(db, id)
	require.True(t, ok)
	require.Equal(t, strategy.Targets, got.Targets)
	require.Equal(t, strategy.Percentages, got.Percentages)

	_, ok = o.GetStrategy(db, testStrategyID(99))
	require.False(t, ok)
}

func TestRegisterStrategyDuplicate(t *testing.T) {
	o, db := newTestOrchestrator()
	id := testStrategyID(1)

	first := Strategy{Targets: []uint32{messenger.ChainLux}, Percentages: []uint16{100}}
	require.NoError(t, o.RegisterStrategy(db, testController, id, first))

	// identical content is still a duplicate
	err := o.RegisterStrategy(db, testController, id, first)
	require.ErrorIs(t, err, ErrDuplicateStrategy)

	// and so is different content under the same ID
	second := Strategy{Targets: []uint32{messenger.ChainZoo, messenger.ChainETH}, Percentages: []uint16{50, 50}}
	err = o.RegisterStrategy(db, testController, id, second)
	require.ErrorIs(t, err, ErrDuplicateStrategy)

	// the first registration is untouched
	got, ok := o.GetStrategy(db, id)
	require.True(t, ok)
	require.Equal(t, first.Targets, got.Targets)
}

func TestRegisterStrategyValidation(t *testing.T) {
	o, db := newTestOrchestrator()

	tests := []struct {
		name     string
		strategy Strategy
		wantErr  error
	}{
		{"empty", Strategy{}, ErrLengthMismatch},
		{"length mismatch", Strategy{
			Targets:     []uint32{1, 2},
			Percentages: []uint16{100},
		}, ErrLengthMismatch},
		{"zero percentage", Strategy{
			Targets:     []uint32{1, 2},
			Percentages: []uint16{0, 100},
		}, ErrInvalidDistribution},
		{"percentage above 100", Strategy{
			Targets:     []uint32{1},
			Percentages: []uint16{101},
		}, ErrInvalidDistribution},
		{"sum below 100", Strategy{
			Targets:     []uint32{1, 2},
			Percentages: []uint16{40, 50},
		}, ErrInvalidDistribution},
		{"sum above 100", Strategy{
			Targets:     []uint32{1, 2},
			Percentages: []uint16{60, 50},
		}, ErrInvalidDistribution},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := o.RegisterStrategy(db, testController, testStrategyID(byte(i)), tt.strategy)
			require.ErrorIs(t, err, tt.wantErr)

			// failed registrations leave nothing behind
			_, ok := o.GetStrategy(db, testStrategyID(byte(i)))
			require.False(t, ok)
		})
	}
}

func TestRegisterStrategyTooLarge(t *testing.T) {
	o, db := newTestOrchestrator()

	oversized := Strategy{
		Targets:     make([]uint32, MaxStrategyEntries+1),
		Percentages: make([]uint16, MaxStrategyEntries+1),
	}
	for i := range oversized.Targets {
		oversized.Targets[i] = uint32(i + 1)
		oversized.Percentages[i] = 1
	}
	err := o.RegisterStrategy(db, testController, testStrategyID(1), oversized)
	require.ErrorIs(t, err, ErrStrategyTooLarge)
}

func TestControllerGate(t *testing.T) {
	o, db := newTestOrchestrator()

	// unclaimed gate: anyone passes
	require.Equal(t, common.Address{}, o.Controller(db))
	id := testStrategyID(1)
	strategy := Strategy{Targets: []uint32{messenger.ChainLux}, Percentages: []uint16{100}}
	require.NoError(t, o.RegisterStrategy(db, testStranger, id, strategy))

	// claim it
	prev, err := o.SetController(db, testController, testController)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, prev)
	require.Equal(t, testController, o.Controller(db))

	// claimed gate rejects everyone else
	err = o.RegisterStrategy(db, testStranger, testStrategyID(2), strategy)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = o.SetController(db, testStranger, testStranger)
	require.ErrorIs(t, err, ErrUnauthorized)

	// but still admits the controller
	require.NoError(t, o.RegisterStrategy(db, testController, testStrategyID(2), strategy))

	// transfers hand over the gate and report the previous holder
	prev, err = o.SetController(db, testController, testStranger)
	require.NoError(t, err)
	require.Equal(t, testController, prev)
	require.Equal(t, testStranger, o.Controller(db))
}

func TestLocalChainAndHolderConfig(t *testing.T) {
	o, db := newTestOrchestrator()

	require.Zero(t, o.LocalChainID(db))
	o.setLocalChainID(db, messenger.ChainLux)
	require.Equal(t, messenger.ChainLux, o.LocalChainID(db))

	require.Equal(t, common.Address{}, o.CustodialHolder(db))
	o.setCustodialHolder(db, ContractAddress)
	require.Equal(t, ContractAddress, o.CustodialHolder(db))
}
