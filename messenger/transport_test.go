// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/zekiblue/cclo/contracttest"
)

const testNetworkID uint32 = 1

var (
	testCollector       = common.HexToAddress("0x00000000000000000000000000000000000000FC")
	luxTestBlockchainID = ids.ID{0xAA, 0x01}
	zooTestBlockchainID = ids.ID{0xBB, 0x02}
)

// setupTransport seeds a transport whose local chain is Lux, with routes for
// Lux and Zoo and zeroed fees.
func setupTransport() (*WarpTransport, *contracttest.MockStateDB) {
	wt := NewWarpTransport(ContractAddress)
	db := contracttest.NewMockStateDB()

	wt.setRoute(db, ChainRoute{ChainID: ChainLux, BlockchainID: luxTestBlockchainID})
	wt.setRoute(db, ChainRoute{ChainID: ChainZoo, BlockchainID: zooTestBlockchainID})

	var word common.Hash
	binary.BigEndian.PutUint32(word[28:32], testNetworkID)
	wt.setConfigWord(db, "networkID", word)

	var local common.Hash
	binary.BigEndian.PutUint32(local[28:32], ChainLux)
	wt.setConfigWord(db, "localChainId", local)
	wt.setConfigWord(db, "sourceBlockchain", common.Hash(luxTestBlockchainID))

	var collector common.Hash
	copy(collector[12:32], testCollector.Bytes())
	wt.setConfigWord(db, "feeCollector", collector)
	return wt, db
}

func setFeeParam(wt *WarpTransport, db *contracttest.MockStateDB, name string, v int64) {
	var word common.Hash
	big.NewInt(v).FillBytes(word[:])
	wt.setConfigWord(db, name, word)
}

// buildInbound packs a predicate carrying an envelope from [source],
// returning the message ID it will register under.
func buildInbound(t *testing.T, network uint32, source ids.ID, kind uint8, dest uint32, body []byte) (common.Hash, []byte) {
	t.Helper()
	wire, err := WireMessage(network, source, testSender, kind, dest, testRecipient, body)
	require.NoError(t, err)
	return common.Hash(wire.ID()), PackPredicate(wire.Bytes())
}

func TestRoutes(t *testing.T) {
	wt, db := setupTransport()

	blockchainID, ok := wt.Route(db, ChainZoo)
	require.True(t, ok)
	require.Equal(t, zooTestBlockchainID, blockchainID)

	chainID, ok := wt.ChainFor(db, zooTestBlockchainID)
	require.True(t, ok)
	require.Equal(t, ChainZoo, chainID)

	_, ok = wt.Route(db, ChainETH)
	require.False(t, ok)
	_, ok = wt.ChainFor(db, ids.ID{0xEE})
	require.False(t, ok)
}

func TestQuoteFee(t *testing.T) {
	wt, db := setupTransport()

	// everything zero: free
	require.Zero(t, wt.QuoteFee(db, big.NewInt(1_000_000)).Sign())

	setFeeParam(wt, db, "baseFee", 100)
	require.Equal(t, int64(100), wt.QuoteFee(db, nil).Int64())

	// 25 bps of 1,000,000 = 2,500
	setFeeParam(wt, db, "feeBP", 25)
	require.Equal(t, int64(2_600), wt.QuoteFee(db, big.NewInt(1_000_000)).Int64())
	// value ignores the proportional cut when zero
	require.Equal(t, int64(100), wt.QuoteFee(db, big.NewInt(0)).Int64())

	setFeeParam(wt, db, "minFee", 500)
	require.Equal(t, int64(500), wt.QuoteFee(db, nil).Int64())

	setFeeParam(wt, db, "maxFee", 1_000)
	require.Equal(t, int64(1_000), wt.QuoteFee(db, big.NewInt(1_000_000)).Int64())
}

func TestSendRecordsMessage(t *testing.T) {
	wt, db := setupTransport()
	body := testRemainderOrder().Encode()

	msg, err := wt.Send(db, 5_000, testSender, ChainZoo, testRecipient, KindRemainderOrder, body)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, msg.MessageID)
	require.Equal(t, ChainZoo, msg.DestinationChainID)
	require.Equal(t, uint64(0), msg.Nonce)

	stored, err := wt.GetSentMessage(db, msg.MessageID)
	require.NoError(t, err)
	require.Equal(t, msg.MessageID, stored.MessageID)
	require.Equal(t, ChainZoo, stored.DestinationChainID)
	require.Equal(t, testSender, stored.Sender)
	require.Equal(t, uint64(5_000), stored.SentAt)
	require.Zero(t, stored.Fee.Sign())

	// a different payload gets a different ID and the next nonce
	second := testRemainderOrder()
	second.OrderID = common.Hash{0x44}
	msg2, err := wt.Send(db, 5_001, testSender, ChainZoo, testRecipient, KindRemainderOrder, second.Encode())
	require.NoError(t, err)
	require.NotEqual(t, msg.MessageID, msg2.MessageID)
	require.Equal(t, uint64(1), msg2.Nonce)
}

func TestSendValidation(t *testing.T) {
	wt, db := setupTransport()
	body := testRemainderOrder().Encode()

	// no route for the destination
	_, err := wt.Send(db, 1, testSender, ChainETH, testRecipient, KindRemainderOrder, body)
	require.ErrorIs(t, err, ErrUnknownChain)

	// a chain with no identity of its own cannot send
	bare := NewWarpTransport(ContractAddress)
	db2 := contracttest.NewMockStateDB()
	bare.setRoute(db2, ChainRoute{ChainID: ChainZoo, BlockchainID: zooTestBlockchainID})
	_, err = bare.Send(db2, 1, testSender, ChainZoo, testRecipient, KindRemainderOrder, body)
	require.ErrorIs(t, err, ErrNoLocalRoute)

	// unknown payload kind
	_, err = wt.Send(db, 1, testSender, ChainZoo, testRecipient, 99, body)
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	// malformed remainder body
	_, err = wt.Send(db, 1, testSender, ChainZoo, testRecipient, KindRemainderOrder, body[:50])
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestSendFee(t *testing.T) {
	wt, db := setupTransport()
	setFeeParam(wt, db, "baseFee", 100)
	body := testRemainderOrder().Encode()

	// insufficient balance: nothing happens
	_, err := wt.Send(db, 1, testSender, ChainZoo, testRecipient, KindRemainderOrder, body)
	require.ErrorIs(t, err, ErrInsufficientFee)
	wire, err := WireMessage(testNetworkID, luxTestBlockchainID, testSender, KindRemainderOrder, ChainZoo, testRecipient, body)
	require.NoError(t, err)
	_, err = wt.GetSentMessage(db, common.Hash(wire.ID()))
	require.ErrorIs(t, err, ErrMessageNotFound)

	db.AddBalance(testSender, uint256.NewInt(1_000), tracing.BalanceChangeTransfer)
	msg, err := wt.Send(db, 1, testSender, ChainZoo, testRecipient, KindRemainderOrder, body)
	require.NoError(t, err)
	require.Equal(t, int64(100), msg.Fee.Int64())
	require.Equal(t, uint64(900), db.GetBalance(testSender).Uint64())
	require.Equal(t, uint64(100), db.GetBalance(testCollector).Uint64())

	// asset transfers pay the proportional component on the moved value
	setFeeParam(wt, db, "feeBP", 100) // 1%
	transfers := EncodeAssetTransfers([]AssetTransfer{
		{Token: testRecipient, Amount: big.NewInt(10_000)},
	})
	msg, err = wt.Send(db, 2, testSender, ChainZoo, testRecipient, KindAssetTransfer, transfers)
	require.NoError(t, err)
	require.Equal(t, int64(200), msg.Fee.Int64()) // 100 base + 1% of 10,000
}

func TestReceiveAppendsLog(t *testing.T) {
	wt, db := setupTransport()

	body := testRemainderOrder().Encode()
	msgID, predicate := buildInbound(t, testNetworkID, zooTestBlockchainID, KindRemainderOrder, ChainLux, body)
	db.SetPredicate(ContractAddress, 0, predicate)

	rec, env, err := wt.Receive(db, 9_000, 0)
	require.NoError(t, err)
	require.Equal(t, msgID, rec.MessageID)
	require.Equal(t, ChainZoo, rec.SourceChainID)
	require.Equal(t, testSender, rec.Sender)
	require.Equal(t, testRemainderOrder().OrderID, rec.OrderID)
	require.Equal(t, KindRemainderOrder, rec.Kind)
	require.Equal(t, uint64(0), rec.Index)
	require.Equal(t, uint64(9_000), rec.ReceivedAt)
	require.Equal(t, ChainLux, env.DestinationChainID)
	require.Equal(t, body, env.Body)

	// the log answers by ID, by position, and by recency
	byID, err := wt.GetReceivedMessage(db, msgID)
	require.NoError(t, err)
	require.Equal(t, rec, byID)
	at, err := wt.GetReceivedMessageAt(db, 0)
	require.NoError(t, err)
	require.Equal(t, rec, at)
	last, err := wt.GetLastReceivedMessage(db)
	require.NoError(t, err)
	require.Equal(t, rec, last)
	require.Equal(t, uint64(1), wt.ReceivedCount(db))

	// a second message appends without touching the first
	other := testRemainderOrder()
	other.OrderID = common.Hash{0x77}
	msgID2, predicate2 := buildInbound(t, testNetworkID, zooTestBlockchainID, KindRemainderOrder, ChainLux, other.Encode())
	db.SetPredicate(ContractAddress, 1, predicate2)

	rec2, _, err := wt.Receive(db, 9_001, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec2.Index)
	require.Equal(t, uint64(2), wt.ReceivedCount(db))

	at, err = wt.GetReceivedMessageAt(db, 0)
	require.NoError(t, err)
	require.Equal(t, msgID, at.MessageID)
	last, err = wt.GetLastReceivedMessage(db)
	require.NoError(t, err)
	require.Equal(t, msgID2, last.MessageID)
}

func TestReceiveDuplicate(t *testing.T) {
	wt, db := setupTransport()

	_, predicate := buildInbound(t, testNetworkID, zooTestBlockchainID, KindRemainderOrder, ChainLux, testRemainderOrder().Encode())
	db.SetPredicate(ContractAddress, 0, predicate)
	db.SetPredicate(ContractAddress, 1, predicate)

	_, _, err := wt.Receive(db, 1, 0)
	require.NoError(t, err)

	_, _, err = wt.Receive(db, 2, 1)
	require.ErrorIs(t, err, ErrDuplicateMessage)
	require.Equal(t, uint64(1), wt.ReceivedCount(db))
}

func TestReceiveRejects(t *testing.T) {
	wt, db := setupTransport()
	body := testRemainderOrder().Encode()

	// no predicate attached
	_, _, err := wt.Receive(db, 1, 0)
	require.ErrorIs(t, err, ErrMissingPredicate)

	// undecodable predicate contents
	db.SetPredicate(ContractAddress, 0, PackPredicate([]byte{0x01, 0x02}))
	_, _, err = wt.Receive(db, 1, 0)
	require.Error(t, err)

	// wrong network
	_, predicate := buildInbound(t, testNetworkID+1, zooTestBlockchainID, KindRemainderOrder, ChainLux, body)
	db.SetPredicate(ContractAddress, 1, predicate)
	_, _, err = wt.Receive(db, 1, 1)
	require.ErrorIs(t, err, ErrWrongNetwork)

	// unrouted source chain
	_, predicate = buildInbound(t, testNetworkID, ids.ID{0xEE}, KindRemainderOrder, ChainLux, body)
	db.SetPredicate(ContractAddress, 2, predicate)
	_, _, err = wt.Receive(db, 1, 2)
	require.ErrorIs(t, err, ErrUnknownChain)

	// addressed to a different chain
	_, predicate = buildInbound(t, testNetworkID, zooTestBlockchainID, KindRemainderOrder, ChainETH, body)
	db.SetPredicate(ContractAddress, 3, predicate)
	_, _, err = wt.Receive(db, 1, 3)
	require.ErrorIs(t, err, ErrWrongDestination)

	// nothing was logged along the way
	require.Zero(t, wt.ReceivedCount(db))
}

func TestReceiveAssetTransferLeavesOrderIDZero(t *testing.T) {
	wt, db := setupTransport()

	body := EncodeAssetTransfers([]AssetTransfer{{Token: testRecipient, Amount: big.NewInt(5)}})
	_, predicate := buildInbound(t, testNetworkID, zooTestBlockchainID, KindAssetTransfer, ChainLux, body)
	db.SetPredicate(ContractAddress, 0, predicate)

	rec, _, err := wt.Receive(db, 1, 0)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, rec.OrderID)
	require.Equal(t, KindAssetTransfer, rec.Kind)
}

func TestLookupsOnEmptyLog(t *testing.T) {
	wt, db := setupTransport()

	_, err := wt.GetReceivedMessageAt(db, 0)
	require.ErrorIs(t, err, ErrMessageNotFound)
	_, err = wt.GetLastReceivedMessage(db)
	require.ErrorIs(t, err, ErrMessageNotFound)
	_, err = wt.GetReceivedMessage(db, common.Hash{0x01})
	require.ErrorIs(t, err, ErrMessageNotFound)
	_, err = wt.GetSentMessage(db, common.Hash{0x01})
	require.ErrorIs(t, err, ErrMessageNotFound)
}
