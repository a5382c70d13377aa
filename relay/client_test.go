// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"math/big"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/zekiblue/cclo/messenger"
)

func testOrder(b byte) *messenger.RemainderOrder {
	return &messenger.RemainderOrder{
		OrderID:       common.Hash{0x0F, b},
		PoolID:        [32]byte{0xAB, 0xCD},
		SourceChainID: messenger.ChainLux,
		TargetChainID: messenger.ChainZoo,
		Requester:     common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		Liquidity:     big.NewInt(600),
		Amount0:       big.NewInt(300),
		Amount1:       big.NewInt(300),
		TickLower:     -887_220,
		TickUpper:     887_220,
	}
}

func TestDisabledClient(t *testing.T) {
	c := New(nil)

	require.ErrorIs(t, c.RecordOrder(testOrder(1)), ErrDisabled)
	_, err := c.Order(common.Hash{0x01})
	require.ErrorIs(t, err, ErrDisabled)
	_, err = c.Orders([32]byte{0x01})
	require.ErrorIs(t, err, ErrDisabled)
	require.ErrorIs(t, c.MarkDispatched(common.Hash{0x01}, common.Hash{0x02}), ErrDisabled)
	require.ErrorIs(t, c.MarkFulfilled(common.Hash{0x01}), ErrDisabled)
}

func TestRecordAndLookup(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	order := testOrder(1)
	require.NoError(t, c.RecordOrder(order))

	entry, err := c.Order(order.OrderID)
	require.NoError(t, err)
	require.Equal(t, StatePending, entry.State)
	require.Equal(t, common.Hash{}, entry.MessageID)
	require.Equal(t, order, entry.Order)

	_, err = c.Order(common.Hash{0xEE})
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestRecordOrderIdempotent(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	order := testOrder(1)
	require.NoError(t, c.RecordOrder(order))
	require.NoError(t, c.MarkDispatched(order.OrderID, common.Hash{0xD1}))

	// re-scanning history replays the record without resetting progress
	require.NoError(t, c.RecordOrder(order))
	entry, err := c.Order(order.OrderID)
	require.NoError(t, err)
	require.Equal(t, StateDispatched, entry.State)
	require.Equal(t, common.Hash{0xD1}, entry.MessageID)
}

func TestRecordOrderInvalid(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	require.ErrorIs(t, c.RecordOrder(nil), ErrInvalidOrder)

	blank := testOrder(1)
	blank.OrderID = common.Hash{}
	require.ErrorIs(t, c.RecordOrder(blank), ErrInvalidOrder)

	noAmounts := testOrder(2)
	noAmounts.Liquidity = nil
	require.ErrorIs(t, c.RecordOrder(noAmounts), ErrInvalidOrder)
}

func TestOrdersByPool(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	first := testOrder(1)
	second := testOrder(2)
	other := testOrder(3)
	other.PoolID = [32]byte{0xEE}

	// insert out of key order; listing sorts by order ID
	require.NoError(t, c.RecordOrder(second))
	require.NoError(t, c.RecordOrder(first))
	require.NoError(t, c.RecordOrder(other))

	entries, err := c.Orders(first.PoolID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, first.OrderID, entries[0].Order.OrderID)
	require.Equal(t, second.OrderID, entries[1].Order.OrderID)

	entries, err = c.Orders(other.PoolID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, other.OrderID, entries[0].Order.OrderID)

	entries, err = c.Orders([32]byte{0x99})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMarkDispatched(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	order := testOrder(1)
	msgID := common.Hash{0xD1}
	require.NoError(t, c.RecordOrder(order))
	require.NoError(t, c.MarkDispatched(order.OrderID, msgID))

	entry, err := c.Order(order.OrderID)
	require.NoError(t, err)
	require.Equal(t, StateDispatched, entry.State)
	require.Equal(t, msgID, entry.MessageID)

	// same dispatch again is fine, a different message is not
	require.NoError(t, c.MarkDispatched(order.OrderID, msgID))
	require.ErrorIs(t, c.MarkDispatched(order.OrderID, common.Hash{0xD2}), ErrWrongState)

	require.ErrorIs(t, c.MarkDispatched(common.Hash{0xEE}, msgID), database.ErrNotFound)
}

func TestMarkFulfilled(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	// fulfillment observed for an order another relayer dispatched
	direct := testOrder(1)
	require.NoError(t, c.RecordOrder(direct))
	require.NoError(t, c.MarkFulfilled(direct.OrderID))
	entry, err := c.Order(direct.OrderID)
	require.NoError(t, err)
	require.Equal(t, StateFulfilled, entry.State)
	require.Equal(t, common.Hash{}, entry.MessageID)

	// the usual pipeline keeps the dispatch message bound
	tracked := testOrder(2)
	msgID := common.Hash{0xD1}
	require.NoError(t, c.RecordOrder(tracked))
	require.NoError(t, c.MarkDispatched(tracked.OrderID, msgID))
	require.NoError(t, c.MarkFulfilled(tracked.OrderID))
	entry, err = c.Order(tracked.OrderID)
	require.NoError(t, err)
	require.Equal(t, StateFulfilled, entry.State)
	require.Equal(t, msgID, entry.MessageID)

	// terminal and idempotent
	require.NoError(t, c.MarkFulfilled(tracked.OrderID))
	require.ErrorIs(t, c.MarkDispatched(tracked.OrderID, msgID), ErrWrongState)

	require.ErrorIs(t, c.MarkFulfilled(common.Hash{0xEE}), database.ErrNotFound)
}

func TestCorruptEntry(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	c := New(db)

	orderID := common.Hash{0x01}
	require.NoError(t, db.Put(orderKey(orderID), []byte{0x00, 0x01}))
	_, err := c.Order(orderID)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestOrderStateString(t *testing.T) {
	tests := []struct {
		state OrderState
		want  string
	}{
		{StatePending, "pending"},
		{StateDispatched, "dispatched"},
		{StateFulfilled, "fulfilled"},
		{OrderState(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("OrderState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
