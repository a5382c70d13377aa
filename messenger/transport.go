// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/ids"
	"github.com/luxfi/warp"
	"github.com/luxfi/warp/payload"
	"github.com/zeebo/blake3"

	"github.com/zekiblue/cclo/contract"
)

// WarpTransport is the messenger engine: routes, fees, the outbound record
// book, and the append-only received log, all in state under the messenger's
// address.
type WarpTransport struct {
	addr common.Address
}

// NewWarpTransport creates a transport rooted at [addr].
func NewWarpTransport(addr common.Address) *WarpTransport {
	return &WarpTransport{addr: addr}
}

// Address returns the messenger's contract address.
func (wt *WarpTransport) Address() common.Address {
	return wt.addr
}

// Storage key prefixes
var (
	routePrefix        = []byte("route")   // chainID -> blockchainID
	reverseRoutePrefix = []byte("rroute")  // blockchainID -> chainID
	sentPrefix         = []byte("sentmsg") // outbound records
	recvPrefix         = []byte("recvmsg") // received records
	recvIndexPrefix    = []byte("recvidx") // arrival position -> messageID
	configPrefix       = []byte("conf")    // fees, network, chain identity
)

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	copy(key[:], h.Sum(nil))
	return key
}

// slotAdd returns the storage slot [offset] words after [base].
func slotAdd(base common.Hash, offset uint64) common.Hash {
	n := new(big.Int).SetBytes(base[:])
	n.Add(n, new(big.Int).SetUint64(offset))
	return common.BigToHash(n)
}

// =========================================================================
// Routes and configuration state
// =========================================================================

// Route returns the Warp blockchain ID registered for [chainID].
func (wt *WarpTransport) Route(stateDB contract.StateDB, chainID uint32) (ids.ID, bool) {
	val := stateDB.GetState(wt.addr, routeKey(chainID))
	id := ids.ID(val)
	return id, id != ids.Empty
}

// ChainFor reverse-maps a Warp blockchain ID to its EVM chain ID.
func (wt *WarpTransport) ChainFor(stateDB contract.StateDB, blockchainID ids.ID) (uint32, bool) {
	val := stateDB.GetState(wt.addr, reverseRouteKey(blockchainID))
	if val[0] != 1 {
		return 0, false
	}
	return binary.BigEndian.Uint32(val[28:32]), true
}

func (wt *WarpTransport) setRoute(stateDB contract.StateDB, route ChainRoute) {
	stateDB.SetState(wt.addr, routeKey(route.ChainID), common.Hash(route.BlockchainID))

	var reverse common.Hash
	reverse[0] = 1
	binary.BigEndian.PutUint32(reverse[28:32], route.ChainID)
	stateDB.SetState(wt.addr, reverseRouteKey(route.BlockchainID), reverse)
}

// NetworkID returns the Warp network this messenger stamps on messages.
func (wt *WarpTransport) NetworkID(stateDB contract.StateDB) uint32 {
	val := wt.configWord(stateDB, "networkID")
	return binary.BigEndian.Uint32(val[28:32])
}

// LocalChainID returns the EVM chain ID inbound envelopes must be
// addressed to.
func (wt *WarpTransport) LocalChainID(stateDB contract.StateDB) uint32 {
	val := wt.configWord(stateDB, "localChainId")
	return binary.BigEndian.Uint32(val[28:32])
}

// SourceBlockchainID returns the Warp blockchain ID outbound messages are
// stamped with: the local chain's own route entry.
func (wt *WarpTransport) SourceBlockchainID(stateDB contract.StateDB) ids.ID {
	return ids.ID(wt.configWord(stateDB, "sourceBlockchain"))
}

// FeeCollector returns the account send fees accrue to.
func (wt *WarpTransport) FeeCollector(stateDB contract.StateDB) common.Address {
	val := wt.configWord(stateDB, "feeCollector")
	return contract.AddressFromWord(val[:])
}

func (wt *WarpTransport) configWord(stateDB contract.StateDB, name string) common.Hash {
	return stateDB.GetState(wt.addr, makeStorageKey(configPrefix, []byte(name)))
}

func (wt *WarpTransport) setConfigWord(stateDB contract.StateDB, name string, val common.Hash) {
	stateDB.SetState(wt.addr, makeStorageKey(configPrefix, []byte(name)), val)
}

func (wt *WarpTransport) feeParam(stateDB contract.StateDB, name string) *big.Int {
	val := wt.configWord(stateDB, name)
	return new(big.Int).SetBytes(val[:])
}

// QuoteFee computes the send fee for a message moving [value]: base fee plus
// the basis-point cut of the value, clamped to the configured floor and cap.
// A zero cap means uncapped.
func (wt *WarpTransport) QuoteFee(stateDB contract.StateDB, value *big.Int) *big.Int {
	fee := wt.feeParam(stateDB, "baseFee")
	if value != nil && value.Sign() > 0 {
		if bp := wt.feeParam(stateDB, "feeBP"); bp.Sign() > 0 {
			cut := new(big.Int).Mul(value, bp)
			cut.Quo(cut, big.NewInt(feeDenominator))
			fee.Add(fee, cut)
		}
	}
	if min := wt.feeParam(stateDB, "minFee"); fee.Cmp(min) < 0 {
		fee.Set(min)
	}
	if max := wt.feeParam(stateDB, "maxFee"); max.Sign() > 0 && fee.Cmp(max) > 0 {
		fee.Set(max)
	}
	return fee
}

// =========================================================================
// Outbound
// =========================================================================

// Send fee-checks, records, and wraps an outbound message for [destChainID].
// The fee is charged before anything is recorded: a sender who cannot cover
// it leaves no trace. The returned record's MessageID is the Warp unsigned
// message ID, a content hash, so resending identical content yields the same
// ID and cannot double-deliver.
func (wt *WarpTransport) Send(
	stateDB contract.StateDB,
	blockTime uint64,
	sender common.Address,
	destChainID uint32,
	recipient common.Address,
	kind uint8,
	body []byte,
) (SentMessage, error) {
	if _, ok := wt.Route(stateDB, destChainID); !ok {
		return SentMessage{}, fmt.Errorf("%w: %d", ErrUnknownChain, destChainID)
	}
	srcBlockchainID := wt.SourceBlockchainID(stateDB)
	if srcBlockchainID == ids.Empty {
		return SentMessage{}, ErrNoLocalRoute
	}

	// Transferred value determines the proportional fee component; outbound
	// payloads are validated here so malformed envelopes never leave.
	value := big.NewInt(0)
	switch kind {
	case KindRemainderOrder:
		if _, err := DecodeRemainderOrder(body); err != nil {
			return SentMessage{}, err
		}
	case KindAssetTransfer:
		transfers, err := DecodeAssetTransfers(body)
		if err != nil {
			return SentMessage{}, err
		}
		for _, t := range transfers {
			value.Add(value, t.Amount)
		}
	default:
		return SentMessage{}, fmt.Errorf("%w: kind %d", ErrInvalidEnvelope, kind)
	}

	fee := wt.QuoteFee(stateDB, value)
	if err := wt.chargeFee(stateDB, sender, fee); err != nil {
		return SentMessage{}, err
	}

	unsigned, err := WireMessage(
		wt.NetworkID(stateDB), srcBlockchainID, sender, kind, destChainID, recipient, body)
	if err != nil {
		return SentMessage{}, err
	}

	msg := SentMessage{
		MessageID:          common.Hash(unsigned.ID()),
		DestinationChainID: destChainID,
		Sender:             sender,
		Nonce:              wt.nextNonce(stateDB),
		Fee:                fee,
		SentAt:             blockTime,
	}
	wt.writeSent(stateDB, &msg)
	return msg, nil
}

func (wt *WarpTransport) chargeFee(stateDB contract.StateDB, sender common.Address, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	feeU256, overflow := uint256.FromBig(fee)
	if overflow || stateDB.GetBalance(sender).Cmp(feeU256) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientFee, sender.Hex())
	}
	stateDB.SubBalance(sender, feeU256, tracing.BalanceChangeTransfer)
	stateDB.AddBalance(wt.FeeCollector(stateDB), feeU256, tracing.BalanceChangeTransfer)
	return nil
}

func (wt *WarpTransport) nextNonce(stateDB contract.StateDB) uint64 {
	key := makeStorageKey(configPrefix, []byte("nonce"))
	val := stateDB.GetState(wt.addr, key)
	nonce := binary.BigEndian.Uint64(val[24:32])

	var next common.Hash
	binary.BigEndian.PutUint64(next[24:32], nonce+1)
	stateDB.SetState(wt.addr, key, next)
	return nonce
}

// =========================================================================
// Inbound
// =========================================================================

// Receive delivers the [predicateIndex]-th pre-verified Warp message attached
// to the current transaction. Signature verification happened at predicate
// check time, before execution; here the message only has to parse, come from
// a routed chain on the right network, be addressed to this chain, and not
// have been delivered before. Accepted messages append to the received log.
func (wt *WarpTransport) Receive(
	stateDB contract.StateDB,
	blockTime uint64,
	predicateIndex int,
) (ReceivedMessage, Envelope, error) {
	predicateBytes, ok := stateDB.GetPredicateStorageSlots(wt.addr, predicateIndex)
	if !ok {
		return ReceivedMessage{}, Envelope{}, fmt.Errorf("%w: %d", ErrMissingPredicate, predicateIndex)
	}
	raw, err := UnpackPredicate(predicateBytes)
	if err != nil {
		return ReceivedMessage{}, Envelope{}, err
	}
	unsigned, err := warp.ParseUnsignedMessage(raw)
	if err != nil {
		return ReceivedMessage{}, Envelope{}, err
	}

	msgID := common.Hash(unsigned.ID())
	if wt.receivedExists(stateDB, msgID) {
		return ReceivedMessage{}, Envelope{}, fmt.Errorf("%w: %s", ErrDuplicateMessage, msgID)
	}
	if unsigned.NetworkID != wt.NetworkID(stateDB) {
		return ReceivedMessage{}, Envelope{}, fmt.Errorf("%w: network %d", ErrWrongNetwork, unsigned.NetworkID)
	}
	srcChain, ok := wt.ChainFor(stateDB, unsigned.SourceChainID)
	if !ok {
		return ReceivedMessage{}, Envelope{}, fmt.Errorf("%w: source %s", ErrUnknownChain, unsigned.SourceChainID)
	}

	addressedCall, err := payload.ParseAddressedCall(unsigned.Payload)
	if err != nil {
		return ReceivedMessage{}, Envelope{}, err
	}
	env, err := UnpackEnvelope(addressedCall.Payload)
	if err != nil {
		return ReceivedMessage{}, Envelope{}, err
	}
	if env.DestinationChainID != wt.LocalChainID(stateDB) {
		return ReceivedMessage{}, Envelope{}, fmt.Errorf("%w: destined for %d", ErrWrongDestination, env.DestinationChainID)
	}

	// Remainder orders stay record-and-event only: the order ID is logged as
	// the idempotence key, no pool state is touched on delivery.
	var orderID common.Hash
	if env.Kind == KindRemainderOrder {
		order, err := DecodeRemainderOrder(env.Body)
		if err != nil {
			return ReceivedMessage{}, Envelope{}, err
		}
		orderID = order.OrderID
	}

	index := wt.ReceivedCount(stateDB)
	rec := ReceivedMessage{
		MessageID:     msgID,
		SourceChainID: srcChain,
		Sender:        common.BytesToAddress(addressedCall.SourceAddress),
		OrderID:       orderID,
		Kind:          env.Kind,
		Index:         index,
		ReceivedAt:    blockTime,
	}
	wt.writeReceived(stateDB, &rec)
	stateDB.SetState(wt.addr, recvIndexKey(index), msgID)
	wt.setReceivedCount(stateDB, index+1)
	return rec, env, nil
}

// =========================================================================
// Record books
// =========================================================================

// GetSentMessage loads an outbound record by message ID.
func (wt *WarpTransport) GetSentMessage(stateDB contract.StateDB, msgID common.Hash) (SentMessage, error) {
	base := sentMsgKey(msgID)
	head := stateDB.GetState(wt.addr, base)
	if head[0] != 1 {
		return SentMessage{}, ErrMessageNotFound
	}
	senderSlot := stateDB.GetState(wt.addr, slotAdd(base, 1))
	feeSlot := stateDB.GetState(wt.addr, slotAdd(base, 2))
	return SentMessage{
		MessageID:          msgID,
		DestinationChainID: binary.BigEndian.Uint32(head[2:6]),
		Sender:             contract.AddressFromWord(senderSlot[:]),
		Nonce:              binary.BigEndian.Uint64(head[16:24]),
		Fee:                new(big.Int).SetBytes(feeSlot[:]),
		SentAt:             binary.BigEndian.Uint64(head[24:32]),
	}, nil
}

// GetReceivedMessage loads a delivered record by message ID.
func (wt *WarpTransport) GetReceivedMessage(stateDB contract.StateDB, msgID common.Hash) (ReceivedMessage, error) {
	base := recvMsgKey(msgID)
	head := stateDB.GetState(wt.addr, base)
	if head[0] != 1 {
		return ReceivedMessage{}, ErrMessageNotFound
	}
	senderSlot := stateDB.GetState(wt.addr, slotAdd(base, 1))
	orderSlot := stateDB.GetState(wt.addr, slotAdd(base, 2))
	return ReceivedMessage{
		MessageID:     msgID,
		SourceChainID: binary.BigEndian.Uint32(head[2:6]),
		Sender:        contract.AddressFromWord(senderSlot[:]),
		OrderID:       orderSlot,
		Kind:          head[1],
		Index:         binary.BigEndian.Uint64(head[16:24]),
		ReceivedAt:    binary.BigEndian.Uint64(head[24:32]),
	}, nil
}

// GetReceivedMessageAt loads a delivered record by arrival position.
func (wt *WarpTransport) GetReceivedMessageAt(stateDB contract.StateDB, index uint64) (ReceivedMessage, error) {
	if index >= wt.ReceivedCount(stateDB) {
		return ReceivedMessage{}, ErrMessageNotFound
	}
	msgID := stateDB.GetState(wt.addr, recvIndexKey(index))
	return wt.GetReceivedMessage(stateDB, msgID)
}

// GetLastReceivedMessage loads the most recently delivered record.
func (wt *WarpTransport) GetLastReceivedMessage(stateDB contract.StateDB) (ReceivedMessage, error) {
	count := wt.ReceivedCount(stateDB)
	if count == 0 {
		return ReceivedMessage{}, ErrMessageNotFound
	}
	return wt.GetReceivedMessageAt(stateDB, count-1)
}

// ReceivedCount returns how many messages have been delivered.
func (wt *WarpTransport) ReceivedCount(stateDB contract.StateDB) uint64 {
	val := stateDB.GetState(wt.addr, recvCountKey())
	return binary.BigEndian.Uint64(val[24:32])
}

func (wt *WarpTransport) setReceivedCount(stateDB contract.StateDB, count uint64) {
	var val common.Hash
	binary.BigEndian.PutUint64(val[24:32], count)
	stateDB.SetState(wt.addr, recvCountKey(), val)
}

func (wt *WarpTransport) receivedExists(stateDB contract.StateDB, msgID common.Hash) bool {
	head := stateDB.GetState(wt.addr, recvMsgKey(msgID))
	return head[0] == 1
}

func (wt *WarpTransport) writeSent(stateDB contract.StateDB, msg *SentMessage) {
	base := sentMsgKey(msg.MessageID)

	var head common.Hash
	head[0] = 1
	binary.BigEndian.PutUint32(head[2:6], msg.DestinationChainID)
	binary.BigEndian.PutUint64(head[16:24], msg.Nonce)
	binary.BigEndian.PutUint64(head[24:32], msg.SentAt)
	stateDB.SetState(wt.addr, base, head)

	var sender common.Hash
	contract.PutAddressWord(sender[:], msg.Sender)
	stateDB.SetState(wt.addr, slotAdd(base, 1), sender)

	var fee common.Hash
	msg.Fee.FillBytes(fee[:])
	stateDB.SetState(wt.addr, slotAdd(base, 2), fee)
}

func (wt *WarpTransport) writeReceived(stateDB contract.StateDB, rec *ReceivedMessage) {
	base := recvMsgKey(rec.MessageID)

	var head common.Hash
	head[0] = 1
	head[1] = rec.Kind
	binary.BigEndian.PutUint32(head[2:6], rec.SourceChainID)
	binary.BigEndian.PutUint64(head[16:24], rec.Index)
	binary.BigEndian.PutUint64(head[24:32], rec.ReceivedAt)
	stateDB.SetState(wt.addr, base, head)

	var sender common.Hash
	contract.PutAddressWord(sender[:], rec.Sender)
	stateDB.SetState(wt.addr, slotAdd(base, 1), sender)

	stateDB.SetState(wt.addr, slotAdd(base, 2), rec.OrderID)
}

func routeKey(chainID uint32) common.Hash {
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], chainID)
	return makeStorageKey(routePrefix, id[:])
}

func reverseRouteKey(blockchainID ids.ID) common.Hash {
	return makeStorageKey(reverseRoutePrefix, blockchainID[:])
}

func sentMsgKey(msgID common.Hash) common.Hash {
	return makeStorageKey(sentPrefix, msgID[:])
}

func recvMsgKey(msgID common.Hash) common.Hash {
	return makeStorageKey(recvPrefix, msgID[:])
}

func recvIndexKey(index uint64) common.Hash {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], index)
	return makeStorageKey(recvIndexPrefix, id[:])
}

func recvCountKey() common.Hash {
	return makeStorageKey(recvPrefix, []byte("count"))
}
