// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration surface shared by all
// stateful precompiles. Each precompile ships a Config implementation that is
// parsed out of the chain's genesis (or upgrade) JSON under the precompile's
// config key and handed to its Configurator when the activation timestamp is
// reached.
package precompileconfig

import (
	"math/big"
)

// Config is implemented by every precompile config. Key must be constant per
// precompile and unique across the registry.
type Config interface {
	// Key returns the JSON key used to configure this precompile.
	Key() string
	// Timestamp returns the activation time, or nil if never active.
	Timestamp() *uint64
	// IsDisabled returns true if this config disables the precompile.
	IsDisabled() bool
	// Equal reports whether the provided config is equivalent.
	Equal(Config) bool
	// Verify checks the config is well formed before it is committed.
	Verify(ChainConfig) error
}

// ChainConfig exposes the subset of chain rules a precompile config may
// consult while verifying or configuring itself.
type ChainConfig interface {
	// ChainID returns the EVM chain ID of the chain being configured.
	ChainID() *big.Int
}

// Upgrade is embedded in every precompile config and carries the shared
// activation fields.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the timestamp this upgrade goes into effect.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// IsDisabled returns true if the upgrade deactivates the precompile.
func (u *Upgrade) IsDisabled() bool {
	return u.Disable
}

// Equal returns true iff [other] has the same activation semantics.
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	return u.Disable == other.Disable && bigEqualUint64(u.BlockTimestamp, other.BlockTimestamp)
}

func bigEqualUint64(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
