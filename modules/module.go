// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules is the registry of stateful precompiles. Each precompile
// registers itself in an init() and the VM iterates the registry in
// deterministic (address-sorted) order when activating configs.
package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
)

// Module wires a precompile's config key and address to its implementation.
type Module struct {
	// ConfigKey is the key this precompile's config is stored under in the
	// genesis/upgrade JSON.
	ConfigKey string
	// Address the precompile is callable at.
	Address common.Address
	// Contract executes calls to [Address].
	Contract contract.StatefulPrecompiledContract
	// Configurator installs this precompile's config at activation.
	Configurator contract.Configurator
}

type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
