// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/zekiblue/cclo/liquidity"
	"github.com/zekiblue/cclo/messenger"
	"github.com/zekiblue/cclo/poolmgr"
)

func TestAddressForLP(t *testing.T) {
	tests := []struct {
		lp   uint16
		want string
	}{
		{6100, "0x0000000000000000000000000000000000006100"},
		{9100, "0x0000000000000000000000000000000000009100"},
		{9110, "0x0000000000000000000000000000000000009110"},
		{42, "0x0000000000000000000000000000000000000042"},
		{9999, "0x0000000000000000000000000000000000009999"},
		{10000, "0x0000000000000000000000000000000000000000"},
	}
	for _, tt := range tests {
		if got := AddressForLP(tt.lp); got != common.HexToAddress(tt.want) {
			t.Errorf("AddressForLP(%d) = %s, want %s", tt.lp, got.Hex(), tt.want)
		}
	}
}

// The table must agree with the addresses and config keys the modules
// actually register under.
func TestDeployedMatchesModules(t *testing.T) {
	require.Equal(t, messenger.ContractAddress, AddressForLP(MessengerLP))
	require.Equal(t, poolmgr.ContractAddress, AddressForLP(PoolLedgerLP))
	require.Equal(t, liquidity.ContractAddress, AddressForLP(OrchestratorLP))

	byKey := map[string]common.Address{
		messenger.ConfigKey: messenger.ContractAddress,
		poolmgr.ConfigKey:   poolmgr.ContractAddress,
		liquidity.ConfigKey: liquidity.ContractAddress,
	}
	require.Len(t, Deployed, len(byKey))
	for _, p := range Deployed {
		addr, ok := byKey[p.ConfigKey]
		require.True(t, ok, "unknown config key %q", p.ConfigKey)
		require.Equal(t, addr, p.Address, p.Name)
	}
}

func TestLPForAddress(t *testing.T) {
	for _, p := range Deployed {
		lp, ok := LPForAddress(p.Address)
		require.True(t, ok, p.Name)
		require.Equal(t, p.LP, lp, p.Name)
	}

	// leading zeros are fine
	lp, ok := LPForAddress(common.HexToAddress("0x0000000000000000000000000000000000000042"))
	require.True(t, ok)
	require.Equal(t, uint16(42), lp)

	for _, bad := range []string{
		"0x0000000000000000000000000000000000000000", // zero address
		"0x000000000000000000000000000000000000910A", // hex nibble
		"0x00000000000000000000000000000000000F9110", // nonzero prefix
		"0xAB00000000000000000000000000000000009110", // not trailing-significant
	} {
		if _, ok := LPForAddress(common.HexToAddress(bad)); ok {
			t.Errorf("LPForAddress(%s) unexpectedly matched", bad)
		}
	}
}

func TestLookups(t *testing.T) {
	info, ok := ByLP(OrchestratorLP)
	require.True(t, ok)
	require.Equal(t, "LIQUIDITY_ORCHESTRATOR", info.Name)
	_, ok = ByLP(1234)
	require.False(t, ok)

	info, ok = ByAddress(messenger.ContractAddress)
	require.True(t, ok)
	require.Equal(t, MessengerLP, info.LP)
	_, ok = ByAddress(common.HexToAddress("0x1234"))
	require.False(t, ok)

	require.Equal(t, poolmgr.ContractAddress, GetPrecompileAddress("POOL_LEDGER"))
	require.Equal(t, common.Address{}, GetPrecompileAddress("NOT_A_THING"))
}

func TestFamily(t *testing.T) {
	tests := []struct {
		lp   uint16
		want string
	}{
		{MessengerLP, "bridges"},
		{PoolLedgerLP, "markets"},
		{OrchestratorLP, "markets"},
		{5200, "threshold"},
		{2203, "pq-identity"},
		{1000, ""},
		{8000, ""},
	}
	for _, tt := range tests {
		if got := Family(tt.lp); got != tt.want {
			t.Errorf("Family(%d) = %q, want %q", tt.lp, got, tt.want)
		}
	}
}
