// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/messenger"
	"github.com/zekiblue/cclo/modules"
	"github.com/zekiblue/cclo/poolmgr"
	"github.com/zekiblue/cclo/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)
var _ contract.StatefulPrecompiledContract = (*OrchestratorContract)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "liquidityOrchestratorConfig"

// ContractAddress is the liquidity orchestrator precompile address (LP-9110).
var ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000009110")

// Hook is the singleton orchestrator, bound to the pool ledger and the Warp
// transport the same way the deployed suite wires them.
var Hook = NewOrchestrator(ContractAddress, poolmgr.Ledger, messenger.Transport)

// OrchestratorPrecompile is the singleton precompile instance.
var OrchestratorPrecompile = &OrchestratorContract{orchestrator: Hook}

// Module is the precompile module (liquidity orchestrator at LP-9110)
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     OrchestratorPrecompile,
	Configurator: &configurator{},
}

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

	if config.Controller != (common.Address{}) {
		Hook.setController(state, config.Controller)
	}

	localChainID := config.LocalChainID
	if localChainID == 0 && chainConfig != nil && chainConfig.ChainID() != nil {
		localChainID = uint32(chainConfig.ChainID().Uint64())
	}
	Hook.setLocalChainID(state, localChainID)

	holder := config.CustodialHolder
	if holder == (common.Address{}) {
		holder = ContractAddress
	}
	Hook.setCustodialHolder(state, holder)

	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty"`

	// Controller seeds the registration gate. Zero leaves the gate unclaimed.
	Controller common.Address `json:"controller,omitempty"`

	// LocalChainID overrides the chain ID used to classify strategy targets
	// as local. Zero falls back to the configured EVM chain ID.
	LocalChainID uint32 `json:"localChainId,omitempty"`

	// CustodialHolder selects whose balance settles amounts owed to the pool.
	// Zero defaults to the orchestrator itself (custodial mode).
	CustodialHolder common.Address `json:"custodialHolder,omitempty"`
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
	return c.Upgrade.Equal(&other.Upgrade) &&
		c.Controller == other.Controller &&
		c.LocalChainID == other.LocalChainID &&
		c.CustodialHolder == other.CustodialHolder
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	return nil
}
