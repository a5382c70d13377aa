// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
)

// Predicates ride in transaction access lists as 32-byte storage slots, so
// the raw message bytes are delimited with a trailing 0xff and zero-padded
// up to the next slot boundary.

// predicateEndByte marks the end of the message inside the padded slots.
const predicateEndByte = byte(0xff)

var (
	ErrAllZeroPredicate    = errors.New("predicate is all zero bytes")
	ErrBadPredicatePadding = errors.New("predicate has invalid padding")
	ErrBadPredicateEnd     = errors.New("predicate missing end delimiter")
)

// PackPredicate appends the end delimiter to [msg] and pads the result to a
// 32-byte boundary.
func PackPredicate(msg []byte) []byte {
	delimited := append(msg, predicateEndByte)
	padded := make([]byte, (len(delimited)+31)/32*32)
	copy(padded, delimited)
	return padded
}

// UnpackPredicate strips the zero padding and end delimiter from packed
// predicate bytes, returning the original message.
func UnpackPredicate(padded []byte) ([]byte, error) {
	trimmed := common.TrimRightZeroes(padded)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: 0x%x", ErrAllZeroPredicate, padded)
	}
	if want := (len(trimmed) + 31) / 32 * 32; want != len(padded) {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadPredicatePadding, len(padded), want)
	}
	if trimmed[len(trimmed)-1] != predicateEndByte {
		return nil, ErrBadPredicateEnd
	}
	return trimmed[:len(trimmed)-1], nil
}
