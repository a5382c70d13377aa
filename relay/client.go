// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay is the off-chain half of remainder settlement. A relayer
// daemon embeds Client to archive withheld orders durably as it scans
// orchestrator events, then tracks each order through dispatch and remote
// fulfillment so restarts never lose or double-handle one.
package relay

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/zekiblue/cclo/messenger"
)

// Relay errors
var (
	ErrDisabled     = errors.New("relay client disabled")
	ErrInvalidOrder = errors.New("invalid order")
	ErrWrongState   = errors.New("order in wrong state")
	ErrCorruptEntry = errors.New("corrupt archive entry")
)

// OrderState tracks an archived order through the relay pipeline.
type OrderState uint8

const (
	StatePending    OrderState = iota // archived, not yet sent
	StateDispatched                   // carried by a warp message
	StateFulfilled                    // delivery observed on the target chain
)

func (s OrderState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StateFulfilled:
		return "fulfilled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Key prefixes
var (
	orderPrefix = []byte("order/") // orderID -> entry
	poolPrefix  = []byte("pool/")  // poolID || orderID -> orderID
)

// Entry is an archived order plus its relay progress.
type Entry struct {
	Order     *messenger.RemainderOrder
	State     OrderState
	MessageID common.Hash // warp message carrying the order, set on dispatch
}

// Client archives remainder orders over a luxfi database. A client built on
// a nil database is disabled: every operation returns ErrDisabled.
type Client struct {
	log log.Logger
	db  database.Database
}

// New creates a relay client over [db].
func New(db database.Database) *Client {
	return NewWithLogger(db, log.NewTestLogger(log.InfoLevel))
}

// NewWithLogger creates a relay client with the caller's logger.
func NewWithLogger(db database.Database, logger log.Logger) *Client {
	return &Client{log: logger, db: db}
}

// RecordOrder archives [order] as pending. Seeing the same order again, as a
// daemon re-scanning chain history will, is a no-op.
func (c *Client) RecordOrder(order *messenger.RemainderOrder) error {
	if c.db == nil {
		return ErrDisabled
	}
	if order == nil || order.OrderID == (common.Hash{}) {
		return fmt.Errorf("%w: missing order ID", ErrInvalidOrder)
	}
	if order.Liquidity == nil || order.Amount0 == nil || order.Amount1 == nil {
		return fmt.Errorf("%w: nil amounts", ErrInvalidOrder)
	}

	key := orderKey(order.OrderID)
	ok, err := c.db.Has(key)
	if err != nil {
		return err
	}
	if ok {
		c.log.Debug("order already archived", "order", order.OrderID)
		return nil
	}

	if err := c.db.Put(key, encodeEntry(StatePending, common.Hash{}, order)); err != nil {
		return err
	}
	if err := c.db.Put(poolKey(order.PoolID, order.OrderID), order.OrderID[:]); err != nil {
		return err
	}
	c.log.Info("order archived",
		"order", order.OrderID,
		"pool", common.Hash(order.PoolID),
		"target", order.TargetChainID,
		"liquidity", order.Liquidity)
	return nil
}

// Order loads an archived order by ID. Unknown IDs surface the database's
// not-found error.
func (c *Client) Order(orderID common.Hash) (Entry, error) {
	if c.db == nil {
		return Entry{}, ErrDisabled
	}
	value, err := c.db.Get(orderKey(orderID))
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(value)
}

// Orders returns every archived order for [poolID], ordered by order ID.
func (c *Client) Orders(poolID [32]byte) ([]Entry, error) {
	if c.db == nil {
		return nil, ErrDisabled
	}
	prefix := append(append([]byte{}, poolPrefix...), poolID[:]...)
	it := c.db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	var entries []Entry
	for it.Next() {
		entry, err := c.Order(common.BytesToHash(it.Value()))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, it.Error()
}

// MarkDispatched advances a pending order to dispatched, binding the warp
// message that carries it. Replaying the same dispatch is a no-op.
func (c *Client) MarkDispatched(orderID common.Hash, messageID common.Hash) error {
	if c.db == nil {
		return ErrDisabled
	}
	entry, err := c.Order(orderID)
	if err != nil {
		return err
	}
	switch {
	case entry.State == StatePending:
	case entry.State == StateDispatched && entry.MessageID == messageID:
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrWrongState, orderID, entry.State)
	}

	if err := c.db.Put(orderKey(orderID), encodeEntry(StateDispatched, messageID, entry.Order)); err != nil {
		return err
	}
	c.log.Info("order dispatched", "order", orderID, "message", messageID)
	return nil
}

// MarkFulfilled records that the target chain delivered the order. Fulfilled
// is terminal and idempotent; a fulfillment can land before our own dispatch
// record when another relayer carried the order.
func (c *Client) MarkFulfilled(orderID common.Hash) error {
	if c.db == nil {
		return ErrDisabled
	}
	entry, err := c.Order(orderID)
	if err != nil {
		return err
	}
	if entry.State == StateFulfilled {
		return nil
	}

	if err := c.db.Put(orderKey(orderID), encodeEntry(StateFulfilled, entry.MessageID, entry.Order)); err != nil {
		return err
	}
	c.log.Info("order fulfilled", "order", orderID, "message", entry.MessageID)
	return nil
}

// entry value: state(1) || messageID(32) || encoded order
func encodeEntry(state OrderState, messageID common.Hash, order *messenger.RemainderOrder) []byte {
	body := order.Encode()
	out := make([]byte, 0, 33+len(body))
	out = append(out, byte(state))
	out = append(out, messageID[:]...)
	return append(out, body...)
}

func decodeEntry(value []byte) (Entry, error) {
	if len(value) < 33 {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrCorruptEntry, len(value))
	}
	order, err := messenger.DecodeRemainderOrder(value[33:])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return Entry{
		Order:     order,
		State:     OrderState(value[0]),
		MessageID: common.BytesToHash(value[1:33]),
	}, nil
}

func orderKey(orderID common.Hash) []byte {
	return append(append([]byte{}, orderPrefix...), orderID[:]...)
}

func poolKey(poolID [32]byte, orderID common.Hash) []byte {
	key := append(append([]byte{}, poolPrefix...), poolID[:]...)
	return append(key, orderID[:]...)
}
