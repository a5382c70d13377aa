// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry documents the LP address scheme the liquidity suite
// deploys under and provides the lookup table relayers and tooling use.
package registry

import (
	"fmt"

	"github.com/luxfi/geth/common"
)

// Lux-native precompiles use trailing-significant 20-byte addresses: the four
// decimal digits of the LP number become the final four hex nibbles, so
// LP-9110 is deployed at 0x0000000000000000000000000000000000009110 on every
// chain that enables it. The thousands digit is the family page:
//
//	LP-2xxx  PQ identity
//	LP-3xxx  EVM/crypto
//	LP-4xxx  privacy/ZK
//	LP-5xxx  threshold/MPC
//	LP-6xxx  bridges and messaging
//	LP-7xxx  AI
//	LP-9xxx  DEX/markets
//
// This suite occupies three slots: the warp messenger on the bridge page and
// the pool ledger plus liquidity orchestrator on the markets page. Deploying
// at the same address on every chain is what lets a strategy name a target
// chain without carrying remote addresses.
const (
	MessengerLP    uint16 = 6100 // cross-chain order transport
	PoolLedgerLP   uint16 = 9100 // singleton pool accounting
	OrchestratorLP uint16 = 9110 // strategy-split liquidity hook
)

// PrecompileInfo describes one deployed precompile.
type PrecompileInfo struct {
	LP          uint16
	Address     common.Address
	Name        string
	ConfigKey   string
	Description string
}

// Deployed lists the suite's precompiles in LP order.
var Deployed = []PrecompileInfo{
	{MessengerLP, AddressForLP(MessengerLP), "WARP_MESSENGER", "warpMessengerConfig", "Warp transport, fees, received-message log"},
	{PoolLedgerLP, AddressForLP(PoolLedgerLP), "POOL_LEDGER", "poolLedgerConfig", "Pool bookkeeping with unlock-token settlement"},
	{OrchestratorLP, AddressForLP(OrchestratorLP), "LIQUIDITY_ORCHESTRATOR", "liquidityOrchestratorConfig", "Strategy registry, split engine, order tracker"},
}

// AddressForLP renders an LP number as its deployed address. LP numbers
// above 9999 do not fit the scheme and map to the zero address.
func AddressForLP(lp uint16) common.Address {
	if lp > 9999 {
		return common.Address{}
	}
	return common.HexToAddress(fmt.Sprintf("0x%04d", lp))
}

// LPForAddress recovers the LP number from a deployed address. Only
// trailing-significant addresses whose final four nibbles are decimal digits
// qualify.
func LPForAddress(addr common.Address) (uint16, bool) {
	if addr == (common.Address{}) {
		return 0, false
	}
	for _, b := range addr[:18] {
		if b != 0 {
			return 0, false
		}
	}
	var lp uint16
	for _, nibble := range []byte{addr[18] >> 4, addr[18] & 0x0F, addr[19] >> 4, addr[19] & 0x0F} {
		if nibble > 9 {
			return 0, false
		}
		lp = lp*10 + uint16(nibble)
	}
	return lp, true
}

// Family names the LP range a number belongs to, or "" outside the scheme.
func Family(lp uint16) string {
	switch lp / 1000 {
	case 2:
		return "pq-identity"
	case 3:
		return "crypto"
	case 4:
		return "privacy"
	case 5:
		return "threshold"
	case 6:
		return "bridges"
	case 7:
		return "ai"
	case 9:
		return "markets"
	default:
		return ""
	}
}

// ByLP finds a deployed precompile by LP number.
func ByLP(lp uint16) (PrecompileInfo, bool) {
	for _, p := range Deployed {
		if p.LP == lp {
			return p, true
		}
	}
	return PrecompileInfo{}, false
}

// ByAddress finds a deployed precompile by address.
func ByAddress(addr common.Address) (PrecompileInfo, bool) {
	for _, p := range Deployed {
		if p.Address == addr {
			return p, true
		}
	}
	return PrecompileInfo{}, false
}

// GetPrecompileAddress returns the address for a precompile by name, or the
// zero address when the name is unknown.
func GetPrecompileAddress(name string) common.Address {
	for _, p := range Deployed {
		if p.Name == name {
			return p.Address
		}
	}
	return common.Address{}
}
