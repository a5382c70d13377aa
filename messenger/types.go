// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package messenger implements the Warp messenger precompile: fee-charged
// outbound cross-chain messages and replay-protected delivery of inbound,
// predicate-verified ones. It carries the orchestrator's remainder orders
// between chains but knows nothing about pools; payloads are opaque
// envelopes keyed for idempotent application.
package messenger

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Gas costs for messenger operations
const (
	GasSendMessage    uint64 = 35_000 // Fee transfer + record + warp build
	GasReceiveMessage uint64 = 30_000 // Predicate read + parse + record
	GasMessageLookup  uint64 = 200    // Sent/received record read
	GasFeeQuote       uint64 = 100    // Fee computation
	GasRouteLookup    uint64 = 100    // Route table read
)

// feeDenominator is the basis-point denominator for the value-proportional
// fee component.
const feeDenominator = 10_000

// Errors - send path
var (
	ErrInsufficientFee = errors.New("insufficient balance for message fee")
	ErrUnknownChain    = errors.New("no route for chain")
	ErrNoLocalRoute    = errors.New("local chain has no route entry")
	ErrInvalidEnvelope = errors.New("invalid message envelope")
)

// Errors - delivery path
var (
	ErrDuplicateMessage = errors.New("message already received")
	ErrMissingPredicate = errors.New("no warp predicate at index")
	ErrWrongNetwork     = errors.New("message from wrong network")
	ErrWrongDestination = errors.New("message not addressed to this chain")
	ErrMessageNotFound  = errors.New("message not found")
)

// Supported chains (EVM chain IDs)
const (
	ChainLux   uint32 = 96369  // Lux mainnet
	ChainHanzo uint32 = 36963  // Hanzo chain
	ChainZoo   uint32 = 200200 // Zoo chain
	ChainSPC   uint32 = 36911  // SPC chain
	ChainETH   uint32 = 1      // Ethereum mainnet
	ChainArb   uint32 = 42161  // Arbitrum One
	ChainOP    uint32 = 10     // Optimism
	ChainBase  uint32 = 8453   // Base
	ChainPoly  uint32 = 137    // Polygon
	ChainBSC   uint32 = 56     // BNB Chain
	ChainAvax  uint32 = 43114  // Avalanche C-Chain
)

// ChainRoute maps an EVM chain ID to the Warp blockchain ID messages for it
// travel under.
type ChainRoute struct {
	ChainID      uint32 `json:"chainID"`
	BlockchainID ids.ID `json:"blockchainID"`
}

// SentMessage records an outbound message.
type SentMessage struct {
	MessageID          common.Hash
	DestinationChainID uint32
	Sender             common.Address
	Nonce              uint64
	Fee                *big.Int
	SentAt             uint64
}

// ReceivedMessage records a delivered inbound message. OrderID is set for
// remainder-order payloads and is the idempotence key remote application
// would use; other kinds leave it zero.
type ReceivedMessage struct {
	MessageID     common.Hash
	SourceChainID uint32
	Sender        common.Address
	OrderID       common.Hash
	Kind          uint8
	Index         uint64
	ReceivedAt    uint64
}
