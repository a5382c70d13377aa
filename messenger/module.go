// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/luxfi/ids"

	"github.com/zekiblue/cclo/contract"
	"github.com/zekiblue/cclo/modules"
	"github.com/zekiblue/cclo/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)
var _ contract.StatefulPrecompiledContract = (*MessengerContract)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "warpMessengerConfig"

// ContractAddress is the warp messenger precompile address (LP-6100).
var ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000006100")

// Transport is the singleton messenger engine shared by the precompile suite.
var Transport = NewWarpTransport(ContractAddress)

// MessengerPrecompile is the singleton precompile instance.
var MessengerPrecompile = &MessengerContract{transport: Transport}

// Module is the precompile module (warp messenger at LP-6100)
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     MessengerPrecompile,
	Configurator: &configurator{},
}

// Method selectors for the messenger
const (
	SelectorSendMessage     uint32 = 0x01000000 // sendMessage(uint32,address,uint8,bytes)
	SelectorReceiveMessage  uint32 = 0x02000000 // receiveMessage(uint32)
	SelectorReceivedMessage uint32 = 0x03000000 // receivedMessage(bytes32)
	SelectorReceivedAt      uint32 = 0x04000000 // receivedMessageAt(uint64)
	SelectorLastReceived    uint32 = 0x05000000 // lastReceivedMessage()
	SelectorReceivedCount   uint32 = 0x06000000 // receivedCount()
	SelectorQuoteFee        uint32 = 0x07000000 // quoteFee(uint256)
	SelectorGetRoute        uint32 = 0x08000000 // route(uint32)
)

var messengerABI = contract.ParseABI(`[
	{"type":"event","name":"MessageSent","inputs":[
		{"name":"messageId","type":"bytes32","indexed":true},
		{"name":"destinationChainId","type":"uint32","indexed":true},
		{"name":"sender","type":"address","indexed":false},
		{"name":"nonce","type":"uint256","indexed":false}]},
	{"type":"event","name":"MessageReceived","inputs":[
		{"name":"messageId","type":"bytes32","indexed":true},
		{"name":"sourceChainId","type":"uint32","indexed":true},
		{"name":"index","type":"uint64","indexed":false}]}
]`)

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

	var word common.Hash
	binary.BigEndian.PutUint32(word[28:32], config.NetworkID)
	Transport.setConfigWord(state, "networkID", word)

	var collector common.Hash
	contract.PutAddressWord(collector[:], config.FeeCollector)
	Transport.setConfigWord(state, "feeCollector", collector)

	setFeeWord := func(name string, v *big.Int) {
		var w common.Hash
		if v != nil {
			v.FillBytes(w[:])
		}
		Transport.setConfigWord(state, name, w)
	}
	setFeeWord("baseFee", config.BaseFee)
	setFeeWord("minFee", config.MinFee)
	setFeeWord("maxFee", config.MaxFee)

	var bp common.Hash
	binary.BigEndian.PutUint64(bp[24:32], config.FeeBP)
	Transport.setConfigWord(state, "feeBP", bp)

	// The chain learns its own identity here: inbound envelopes must be
	// addressed to this chain ID, and the matching route entry stamps
	// outbound messages with the local blockchain ID.
	var localChainID uint32
	if chainConfig != nil && chainConfig.ChainID() != nil {
		localChainID = uint32(chainConfig.ChainID().Uint64())
	}
	var local common.Hash
	binary.BigEndian.PutUint32(local[28:32], localChainID)
	Transport.setConfigWord(state, "localChainId", local)

	for _, route := range config.Routes {
		Transport.setRoute(state, route)
		if route.ChainID == localChainID {
			Transport.setConfigWord(state, "sourceBlockchain", common.Hash(route.BlockchainID))
		}
	}

	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade      precompileconfig.Upgrade `json:"upgrade,omitempty"`
	NetworkID    uint32                   `json:"networkID,omitempty"`
	FeeCollector common.Address           `json:"feeCollector,omitempty"`
	BaseFee      *big.Int                 `json:"baseFee,omitempty"`
	FeeBP        uint64                   `json:"feeBP,omitempty"`
	MinFee       *big.Int                 `json:"minFee,omitempty"`
	MaxFee       *big.Int                 `json:"maxFee,omitempty"`
	Routes       []ChainRoute             `json:"routes,omitempty"`
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
	if !c.Upgrade.Equal(&other.Upgrade) ||
		c.NetworkID != other.NetworkID ||
		c.FeeCollector != other.FeeCollector ||
		c.FeeBP != other.FeeBP ||
		!bigEqual(c.BaseFee, other.BaseFee) ||
		!bigEqual(c.MinFee, other.MinFee) ||
		!bigEqual(c.MaxFee, other.MaxFee) ||
		len(c.Routes) != len(other.Routes) {
		return false
	}
	for i, route := range c.Routes {
		if route != other.Routes[i] {
			return false
		}
	}
	return true
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	for _, v := range []*big.Int{c.BaseFee, c.MinFee, c.MaxFee} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("negative fee parameter: %s", v)
		}
	}
	if c.MinFee != nil && c.MaxFee != nil && c.MaxFee.Sign() > 0 && c.MinFee.Cmp(c.MaxFee) > 0 {
		return fmt.Errorf("minFee %s exceeds maxFee %s", c.MinFee, c.MaxFee)
	}

	seen := make(map[uint32]bool, len(c.Routes))
	for _, route := range c.Routes {
		if route.ChainID == 0 {
			return fmt.Errorf("route with zero chain ID")
		}
		if route.BlockchainID == ids.Empty {
			return fmt.Errorf("route for chain %d has empty blockchain ID", route.ChainID)
		}
		if seen[route.ChainID] {
			return fmt.Errorf("duplicate route for chain %d", route.ChainID)
		}
		seen[route.ChainID] = true
	}
	return nil
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

// MessengerContract exposes the messenger over the precompile ABI.
type MessengerContract struct {
	transport *WarpTransport
}

// Run executes the precompile
func (c *MessengerContract) Run(
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
	case SelectorSendMessage:
		return c.runSendMessage(accessibleState, caller, data, suppliedGas, readOnly)
	case SelectorReceiveMessage:
		return c.runReceiveMessage(accessibleState, data, suppliedGas, readOnly)
	case SelectorReceivedMessage:
		return c.runReceivedMessage(accessibleState, data, suppliedGas)
	case SelectorReceivedAt:
		return c.runReceivedAt(accessibleState, data, suppliedGas)
	case SelectorLastReceived:
		return c.runLastReceived(accessibleState, suppliedGas)
	case SelectorReceivedCount:
		return c.runReceivedCount(accessibleState, suppliedGas)
	case SelectorQuoteFee:
		return c.runQuoteFee(accessibleState, data, suppliedGas)
	case SelectorGetRoute:
		return c.runGetRoute(accessibleState, data, suppliedGas)
	default:
		return nil, suppliedGas, fmt.Errorf("unknown method selector: %x", selector)
	}
}

func (c *MessengerContract) runSendMessage(
	state contract.AccessibleState,
	caller common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasSendMessage)
	if err != nil {
		return nil, 0, err
	}

	// destChain (32) + recipient (32) + kind (32) + bodyLen (32) + body
	if len(input) < 128 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	destChainID := contract.Uint32FromWord(input[0:32])
	recipient := contract.AddressFromWord(input[32:64])
	kind := uint8(contract.Uint32FromWord(input[64:96]))
	bodyLen := int(contract.Uint32FromWord(input[96:128]))
	if len(input) < 128+bodyLen {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	body := input[128 : 128+bodyLen]

	msg, err := c.transport.Send(
		state.GetStateDB(), state.GetBlockContext().Timestamp(),
		caller, destChainID, recipient, kind, body)
	if err != nil {
		return nil, remainingGas, err
	}

	if err := c.emitEvent(state, "MessageSent",
		msg.MessageID, msg.DestinationChainID, msg.Sender,
		new(big.Int).SetUint64(msg.Nonce)); err != nil {
		return nil, remainingGas, err
	}
	return msg.MessageID.Bytes(), remainingGas, nil
}

func (c *MessengerContract) runReceiveMessage(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remainingGas, err := contract.DeductGas(suppliedGas, GasReceiveMessage)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	predicateIndex := int(contract.Uint32FromWord(input[0:32]))

	rec, _, err := c.transport.Receive(
		state.GetStateDB(), state.GetBlockContext().Timestamp(), predicateIndex)
	if err != nil {
		return nil, remainingGas, err
	}

	if err := c.emitEvent(state, "MessageReceived",
		rec.MessageID, rec.SourceChainID, rec.Index); err != nil {
		return nil, remainingGas, err
	}
	return rec.MessageID.Bytes(), remainingGas, nil
}

func (c *MessengerContract) runReceivedMessage(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasMessageLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	rec, err := c.transport.GetReceivedMessage(state.GetStateDB(), common.BytesToHash(input[0:32]))
	if err != nil {
		return nil, remainingGas, err
	}
	return packReceivedMessage(rec), remainingGas, nil
}

func (c *MessengerContract) runReceivedAt(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasMessageLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	index := contract.BigFromWord(input[0:32])
	if !index.IsUint64() {
		return nil, remainingGas, ErrMessageNotFound
	}
	rec, err := c.transport.GetReceivedMessageAt(state.GetStateDB(), index.Uint64())
	if err != nil {
		return nil, remainingGas, err
	}
	return packReceivedMessage(rec), remainingGas, nil
}

func (c *MessengerContract) runLastReceived(
	state contract.AccessibleState,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasMessageLookup)
	if err != nil {
		return nil, 0, err
	}
	rec, err := c.transport.GetLastReceivedMessage(state.GetStateDB())
	if err != nil {
		return nil, remainingGas, err
	}
	return packReceivedMessage(rec), remainingGas, nil
}

func (c *MessengerContract) runReceivedCount(
	state contract.AccessibleState,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasMessageLookup)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:32], c.transport.ReceivedCount(state.GetStateDB()))
	return out, remainingGas, nil
}

func (c *MessengerContract) runQuoteFee(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasFeeQuote)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	fee := c.transport.QuoteFee(state.GetStateDB(), contract.BigFromWord(input[0:32]))

	out := make([]byte, 32)
	contract.PutBigWord(out, fee)
	return out, remainingGas, nil
}

func (c *MessengerContract) runGetRoute(
	state contract.AccessibleState,
	input []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	remainingGas, err := contract.DeductGas(suppliedGas, GasRouteLookup)
	if err != nil {
		return nil, 0, err
	}
	if len(input) < 32 {
		return nil, remainingGas, contract.ErrInputTooShort
	}
	chainID := contract.Uint32FromWord(input[0:32])
	blockchainID, ok := c.transport.Route(state.GetStateDB(), chainID)
	if !ok {
		return nil, remainingGas, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return blockchainID[:], remainingGas, nil
}

func (c *MessengerContract) emitEvent(state contract.AccessibleState, name string, args ...interface{}) error {
	topics, data, err := messengerABI.PackEvent(name, args...)
	if err != nil {
		return err
	}
	state.GetStateDB().AddLog(&ethtypes.Log{
		Address:     c.transport.Address(),
		Topics:      topics,
		Data:        data,
		BlockNumber: state.GetBlockContext().Number().Uint64(),
	})
	return nil
}

// packReceivedMessage encodes a received record as seven words:
// messageId, sourceChainId, sender, orderId, kind, index, receivedAt.
func packReceivedMessage(rec ReceivedMessage) []byte {
	out := make([]byte, 224)
	copy(out[0:32], rec.MessageID[:])
	contract.PutUint32Word(out[32:64], rec.SourceChainID)
	contract.PutAddressWord(out[64:96], rec.Sender)
	copy(out[96:128], rec.OrderID[:])
	contract.PutUint32Word(out[128:160], uint32(rec.Kind))
	binary.BigEndian.PutUint64(out[184:192], rec.Index)
	binary.BigEndian.PutUint64(out[216:224], rec.ReceivedAt)
	return out
}
