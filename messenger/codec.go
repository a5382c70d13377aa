// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/warp"
	"github.com/luxfi/warp/payload"
)

// Envelope is the versioned payload carried inside a Warp addressed call.
// Message IDs are content hashes, so an envelope carries no nonce: sending
// the same logical payload twice yields the same message ID and the second
// delivery is rejected as a duplicate. Remainder orders are already unique
// through their order ID.
const EnvelopeVersion = uint8(1)

// Envelope kinds
const (
	KindRemainderOrder uint8 = 1 // Withheld liquidity to apply remotely
	KindAssetTransfer  uint8 = 2 // Token movements between chains
)

// Envelope header: version(1) || kind(1) || destChain(4) || recipient(20) || bodyLen(4)
const envelopeHeaderLen = 30

// Envelope is a decoded cross-chain payload.
type Envelope struct {
	Version            uint8
	Kind               uint8
	DestinationChainID uint32
	Recipient          common.Address
	Body               []byte
}

// PackEnvelope serializes an envelope at the current version.
func PackEnvelope(kind uint8, destChainID uint32, recipient common.Address, body []byte) []byte {
	out := make([]byte, envelopeHeaderLen+len(body))
	out[0] = EnvelopeVersion
	out[1] = kind
	binary.BigEndian.PutUint32(out[2:6], destChainID)
	copy(out[6:26], recipient.Bytes())
	binary.BigEndian.PutUint32(out[26:30], uint32(len(body)))
	copy(out[envelopeHeaderLen:], body)
	return out
}

// UnpackEnvelope deserializes an envelope, rejecting unknown versions and
// length mismatches.
func UnpackEnvelope(raw []byte) (Envelope, error) {
	if len(raw) < envelopeHeaderLen {
		return Envelope{}, fmt.Errorf("%w: %d byte header", ErrInvalidEnvelope, len(raw))
	}
	if raw[0] != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("%w: version %d", ErrInvalidEnvelope, raw[0])
	}
	bodyLen := binary.BigEndian.Uint32(raw[26:30])
	if uint32(len(raw)-envelopeHeaderLen) != bodyLen {
		return Envelope{}, fmt.Errorf("%w: body length %d, header says %d",
			ErrInvalidEnvelope, len(raw)-envelopeHeaderLen, bodyLen)
	}
	return Envelope{
		Version:            raw[0],
		Kind:               raw[1],
		DestinationChainID: binary.BigEndian.Uint32(raw[2:6]),
		Recipient:          common.BytesToAddress(raw[6:26]),
		Body:               raw[envelopeHeaderLen:],
	}, nil
}

// =========================================================================
// Remainder order payload
// =========================================================================

// RemainderOrder is the cross-chain form of a withheld liquidity share. It
// mirrors the orchestrator's pending order record; OrderID makes repeated
// application idempotent on the target chain.
type RemainderOrder struct {
	OrderID       common.Hash
	PoolID        [32]byte
	SourceChainID uint32
	TargetChainID uint32
	Requester     common.Address
	Liquidity     *big.Int
	Amount0       *big.Int
	Amount1       *big.Int
	TickLower     int32
	TickUpper     int32
}

// orderID(32) || poolID(32) || srcChain(4) || dstChain(4) || requester(20) ||
// liquidity(32) || amount0(32) || amount1(32) || tickLower(4) || tickUpper(4)
const remainderOrderLen = 196

// Encode serializes the order. Liquidity and amounts must be non-negative
// magnitudes.
func (r *RemainderOrder) Encode() []byte {
	out := make([]byte, remainderOrderLen)
	copy(out[0:32], r.OrderID[:])
	copy(out[32:64], r.PoolID[:])
	binary.BigEndian.PutUint32(out[64:68], r.SourceChainID)
	binary.BigEndian.PutUint32(out[68:72], r.TargetChainID)
	copy(out[72:92], r.Requester.Bytes())
	r.Liquidity.FillBytes(out[92:124])
	r.Amount0.FillBytes(out[124:156])
	r.Amount1.FillBytes(out[156:188])
	binary.BigEndian.PutUint32(out[188:192], uint32(r.TickLower))
	binary.BigEndian.PutUint32(out[192:196], uint32(r.TickUpper))
	return out
}

// DecodeRemainderOrder deserializes a remainder order body.
func DecodeRemainderOrder(data []byte) (*RemainderOrder, error) {
	if len(data) != remainderOrderLen {
		return nil, fmt.Errorf("%w: remainder order is %d bytes, want %d",
			ErrInvalidEnvelope, len(data), remainderOrderLen)
	}
	r := &RemainderOrder{
		SourceChainID: binary.BigEndian.Uint32(data[64:68]),
		TargetChainID: binary.BigEndian.Uint32(data[68:72]),
		Requester:     common.BytesToAddress(data[72:92]),
		Liquidity:     new(big.Int).SetBytes(data[92:124]),
		Amount0:       new(big.Int).SetBytes(data[124:156]),
		Amount1:       new(big.Int).SetBytes(data[156:188]),
		TickLower:     int32(binary.BigEndian.Uint32(data[188:192])),
		TickUpper:     int32(binary.BigEndian.Uint32(data[192:196])),
	}
	copy(r.OrderID[:], data[0:32])
	copy(r.PoolID[:], data[32:64])
	return r, nil
}

// =========================================================================
// Asset transfer payload
// =========================================================================

// AssetTransfer describes one token movement inside a transfer envelope.
type AssetTransfer struct {
	Token  common.Address
	Amount *big.Int
}

// count(2) || count * (token(20) || amount(32))
const assetTransferEntryLen = 52

// EncodeAssetTransfers serializes a transfer list.
func EncodeAssetTransfers(transfers []AssetTransfer) []byte {
	out := make([]byte, 2+len(transfers)*assetTransferEntryLen)
	binary.BigEndian.PutUint16(out[0:2], uint16(len(transfers)))
	for i, t := range transfers {
		off := 2 + i*assetTransferEntryLen
		copy(out[off:off+20], t.Token.Bytes())
		t.Amount.FillBytes(out[off+20 : off+52])
	}
	return out
}

// DecodeAssetTransfers deserializes a transfer list body.
func DecodeAssetTransfers(data []byte) ([]AssetTransfer, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: short transfer list", ErrInvalidEnvelope)
	}
	count := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) != 2+count*assetTransferEntryLen {
		return nil, fmt.Errorf("%w: transfer list is %d bytes, want %d",
			ErrInvalidEnvelope, len(data), 2+count*assetTransferEntryLen)
	}
	transfers := make([]AssetTransfer, count)
	for i := 0; i < count; i++ {
		off := 2 + i*assetTransferEntryLen
		transfers[i] = AssetTransfer{
			Token:  common.BytesToAddress(data[off : off+20]),
			Amount: new(big.Int).SetBytes(data[off+20 : off+52]),
		}
	}
	return transfers, nil
}

// =========================================================================
// Wire construction
// =========================================================================

// WireMessage wraps an envelope into the canonical Warp unsigned message: an
// addressed call from [sender] carrying the packed envelope, stamped with
// [networkID] and [sourceBlockchainID]. Senders and relayers build messages
// through the same path, so the content-addressed message ID comes out
// identical everywhere.
func WireMessage(
	networkID uint32,
	sourceBlockchainID ids.ID,
	sender common.Address,
	kind uint8,
	destChainID uint32,
	recipient common.Address,
	body []byte,
) (*warp.UnsignedMessage, error) {
	envelope := PackEnvelope(kind, destChainID, recipient, body)
	addressedCall, err := payload.NewAddressedCall(sender.Bytes(), envelope)
	if err != nil {
		return nil, err
	}
	return warp.NewUnsignedMessage(networkID, sourceBlockchainID, addressedCall.Bytes())
}
